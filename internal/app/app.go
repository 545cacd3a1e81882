package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"waiver-trend-alerts/internal/alerting"
	"waiver-trend-alerts/internal/config"
	"waiver-trend-alerts/internal/fetcher"
	"waiver-trend-alerts/internal/metrics"
	"waiver-trend-alerts/internal/scheduler"
	"waiver-trend-alerts/internal/service"
	"waiver-trend-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.TrendFetcher {
	return fetcher.NewBuzz(fetcher.BuzzOptions{
		BaseURL:   a.Config.Source.BaseURL,
		UserAgent: a.Config.Source.UserAgent,
		Timeout:   a.Config.Source.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	return alerting.NewDiscordNotifier(alerting.DiscordOptions{
		WebhookURL:  cfg.Discord.WebhookURL,
		DryRun:      cfg.DryRun,
		MaxRetries:  cfg.Discord.MaxRetries,
		BackoffBase: cfg.Discord.BackoffBase,
		BackoffCap:  cfg.Discord.BackoffCap,
		Timeout:     cfg.Discord.Timeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// RunOptions select the run mode: a single cycle, a bounded number of
// cycles, or an indefinite loop, optionally against a historical date.
type RunOptions struct {
	Once     bool
	Cycles   int
	Interval time.Duration
	Date     string
}

// Run executes the monitoring loop per the requested mode.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; audit persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if a.Config.Metrics.Enabled {
		go metrics.Serve(ctx, a.Config.Metrics.ListenAddr, a.Logger)
	}

	var cycleStore storage.CycleStore
	var alertStore storage.AlertStore
	if store != nil {
		cycleStore = store
		alertStore = store
	}

	trends := a.newFetcher()
	notifier := a.newNotifier()

	if opts.Once {
		svc := service.New(a.Config, nil, trends, cycleStore, alertStore, notifier, opts.Date, a.Logger)
		return a.runOnce(ctx, svc)
	}

	interval := a.Config.Scheduler.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		MaxCycles:    opts.Cycles,
	}, a.Logger)

	svc := service.New(a.Config, sched, trends, cycleStore, alertStore, notifier, opts.Date, a.Logger)

	a.Logger.Info().Dur("interval", interval).Int("max_cycles", opts.Cycles).Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// runOnce executes exactly one cycle. A fetch failure exits non-zero; a
// delivery failure is logged, since state already advanced correctly.
func (a *App) runOnce(ctx context.Context, svc *service.Service) error {
	err := svc.ProcessCycle(ctx, time.Now().UTC())
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrDeliveryFailed) {
		a.Logger.Warn().Err(err).Msg("cycle completed but some alerts were not delivered")
		return nil
	}
	return err
}

// ExportOptions hold parameters for exporting stored alerts.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
