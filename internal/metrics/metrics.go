package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waiverwatch_cycles_total",
			Help: "Total number of polling cycles executed",
		},
	)

	CycleFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiverwatch_cycle_failures_total",
			Help: "Total number of failed cycles",
		},
		[]string{"stage"}, // stage: fetch, delivery
	)

	RowsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waiverwatch_rows_fetched_total",
			Help: "Total number of leaderboard rows fetched",
		},
	)

	// Alert metrics
	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiverwatch_alerts_emitted_total",
			Help: "Total number of alerts emitted by kind",
		},
		[]string{"kind"}, // kind: add, drop
	)

	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waiverwatch_delivery_failures_total",
			Help: "Total number of alerts whose delivery exhausted retries",
		},
	)

	TrackedPlayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waiverwatch_tracked_players",
			Help: "Number of distinct players currently held in state",
		},
	)
)

// Serve exposes /metrics on addr until the context is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	log := logger.With().Str("component", "metrics").Logger()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics listener failed")
	}
}
