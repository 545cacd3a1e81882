package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"waiver-trend-alerts/internal/alerting"
	"waiver-trend-alerts/internal/config"
	"waiver-trend-alerts/internal/detector"
	"waiver-trend-alerts/internal/fetcher"
	"waiver-trend-alerts/internal/metrics"
	"waiver-trend-alerts/internal/scheduler"
	"waiver-trend-alerts/internal/state"
	"waiver-trend-alerts/internal/storage"
)

// ErrDeliveryFailed marks a cycle whose detection completed but whose
// alert delivery exhausted retries for at least one alert. State already
// mutated in the cycle is never rolled back; the run loop logs and moves
// on to the next cycle.
var ErrDeliveryFailed = errors.New("alert delivery failed")

// Service orchestrates fetching, evaluation, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	trends     fetcher.TrendFetcher
	state      *state.State
	thresholds detector.Thresholds
	notifier   alerting.Notifier
	cycleStore storage.CycleStore
	alertStore storage.AlertStore
	logger     zerolog.Logger

	dateOverride string
}

// New constructs the monitoring service. The state aggregate is owned
// here for the lifetime of one run and discarded with it.
func New(cfg *config.Config, sched *scheduler.Scheduler, trends fetcher.TrendFetcher, cycleStore storage.CycleStore, alertStore storage.AlertStore, notifier alerting.Notifier, dateOverride string, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		trends:    trends,
		state:     state.New(cfg.Detector.SmoothingWindow),
		thresholds: detector.ThresholdsFromFloats(
			cfg.Detector.AddRateThreshold,
			cfg.Detector.DropRateThreshold,
			cfg.Detector.MinAbsAddDelta,
			cfg.Detector.MinAbsDropDelta,
			cfg.Detector.MaxAlertsPerPlayer,
		),
		notifier:     notifier,
		cycleStore:   cycleStore,
		alertStore:   alertStore,
		logger:       logger.With().Str("component", "service").Logger(),
		dateOverride: dateOverride,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle 执行单个轮询周期：抓取 → 求值 → 落库 → 投递。
// 抓取失败令本周期失败（状态未被触碰）；投递失败在状态落定之后发生，
// 以 ErrDeliveryFailed 上抛，由运行循环决定记日志继续。
func (s *Service) ProcessCycle(ctx context.Context, bucket time.Time) error {
	metrics.CyclesTotal.Inc()

	rows, err := s.trends.FetchTrends(ctx, s.dateOverride)
	if err != nil {
		metrics.CycleFailuresTotal.WithLabelValues("fetch").Inc()
		s.persistCycle(ctx, bucket, 0, 0, "errored", err)
		return fmt.Errorf("fetch trends: %w", err)
	}
	metrics.RowsFetchedTotal.Add(float64(len(rows)))

	now := time.Now().UTC()
	baseline := s.state.TrackedPlayers() == 0

	alerts := detector.Evaluate(s.state, rows, now, s.thresholds)
	metrics.TrackedPlayers.Set(float64(s.state.TrackedPlayers()))
	for _, a := range alerts {
		metrics.AlertsEmittedTotal.WithLabelValues(a.Kind).Inc()
	}

	s.persistCycle(ctx, bucket, len(rows), len(alerts), "complete", nil)
	s.persistAlerts(ctx, alerts)

	s.logger.Info().Time("bucket", bucket).
		Int("rows", len(rows)).
		Int("alerts", len(alerts)).
		Int("players", s.state.TrackedPlayers()).
		Msg("cycle evaluated")

	if len(alerts) == 0 {
		if baseline && len(rows) > 0 {
			s.logger.Info().Msg("baseline established; subsequent cycles will detect changes")
		}
		return nil
	}

	failed := s.deliver(ctx, alerts)
	if failed > 0 {
		metrics.CycleFailuresTotal.WithLabelValues("delivery").Inc()
		return fmt.Errorf("%w: %d of %d alerts undelivered", ErrDeliveryFailed, failed, len(alerts))
	}
	return nil
}

// deliver pushes alerts one at a time, isolating failures so one bad
// delivery never blocks the rest of the batch.
func (s *Service) deliver(ctx context.Context, alerts []detector.Alert) int {
	if s.notifier == nil {
		return 0
	}

	failed := 0
	for _, alert := range alerts {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			failed++
			metrics.DeliveryFailuresTotal.Inc()
			s.logger.Error().Err(err).
				Str("alert_id", alert.ID.String()).
				Str("player", alert.PlayerName).
				Str("kind", alert.Kind).
				Msg("failed to dispatch alert")
		}
	}
	return failed
}

func (s *Service) persistCycle(ctx context.Context, bucket time.Time, rows, alerts int, status string, cause error) {
	if s.cycleStore == nil {
		return
	}

	sample := storage.CycleSample{
		Bucket:        bucket,
		RowsFetched:   rows,
		AlertsEmitted: alerts,
		Status:        status,
	}
	if cause != nil {
		msg := cause.Error()
		sample.Error = &msg
	}

	if err := s.cycleStore.UpsertCycle(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to upsert cycle sample")
	}
}

func (s *Service) persistAlerts(ctx context.Context, alerts []detector.Alert) {
	if s.alertStore == nil {
		return
	}

	for _, a := range alerts {
		rec := storage.AlertRecord{
			ID:        a.ID,
			Player:    a.PlayerName,
			TeamPos:   a.TeamPos,
			Kind:      a.Kind,
			AddDelta:  a.AddDelta,
			DropDelta: a.DropDelta,
			AddRate:   a.AddRate,
			DropRate:  a.DropRate,
			Observed:  a.Observed,
		}
		if err := s.alertStore.InsertAlert(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("failed to persist alert record")
		}
	}
}
