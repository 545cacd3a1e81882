package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"waiver-trend-alerts/internal/app"
	"waiver-trend-alerts/internal/detector"
)

var (
	simulatePlayer    string
	simulateTeamPos   string
	simulateKind      string
	simulateAddDelta  int
	simulateDropDelta int
	simulateDtMinutes float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "组装一条合成告警并触发投递",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePlayer == "" {
			return errors.New("--player 不能为空")
		}
		if simulateKind != detector.KindAdd && simulateKind != detector.KindDrop {
			return errors.New("--kind 必须为 add 或 drop")
		}

		opts := app.SimulateAlertOptions{
			Player:    simulatePlayer,
			TeamPos:   simulateTeamPos,
			Kind:      simulateKind,
			AddDelta:  simulateAddDelta,
			DropDelta: simulateDropDelta,
			DtMinutes: simulateDtMinutes,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePlayer, "player", "", "球员名称")
	simulateCmd.Flags().StringVar(&simulateTeamPos, "team-pos", "", "球队/位置，例如 KC - WR")
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "add", "告警类型 (add|drop)")
	simulateCmd.Flags().IntVar(&simulateAddDelta, "add-delta", 0, "add 变化量")
	simulateCmd.Flags().IntVar(&simulateDropDelta, "drop-delta", 0, "drop 变化量")
	simulateCmd.Flags().Float64Var(&simulateDtMinutes, "dt-minutes", 5, "变化所跨的分钟数")
}
