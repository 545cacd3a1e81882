package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"waiver-trend-alerts/internal/detector"
)

// SimulateAlertOptions describe the synthetic alert to compose.
type SimulateAlertOptions struct {
	Player    string
	TeamPos   string
	Kind      string
	AddDelta  int
	DropDelta int
	DtMinutes float64
}

// SimulateAlert 组装一条合成告警并走真实投递链路，用于校验 webhook 配置。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateAlertOptions) error {
	if opts.DtMinutes <= 0 {
		opts.DtMinutes = 1
	}
	dt := decimal.NewFromFloat(opts.DtMinutes)

	alert := detector.Alert{
		ID:         uuid.New(),
		PlayerName: opts.Player,
		TeamPos:    opts.TeamPos,
		AddDelta:   opts.AddDelta,
		DropDelta:  opts.DropDelta,
		AddRate:    decimal.NewFromInt(int64(opts.AddDelta)).Div(dt),
		DropRate:   decimal.NewFromInt(int64(opts.DropDelta)).Div(dt),
		Kind:       opts.Kind,
		Observed:   time.Now().UTC(),
	}

	return a.newNotifier().Notify(ctx, alert)
}
