package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"flowstore/internal/alerting"
	"flowstore/internal/config"
	"flowstore/internal/eventbus"
	"flowstore/internal/scheduler"
	"flowstore/internal/storage"
	"flowstore/internal/symbols"
	"flowstore/internal/timeseries"
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

// Repos bundles the wired repositories over one connection pool.
type Repos struct {
	TimeAndSale     *storage.TimeAndSaleRepo
	Quotes          *storage.QuoteRepo
	Trades          *storage.TradeRepo
	PowerAlerts     *storage.PowerAlertRepo
	Volume          *storage.VolumeRepo
	SignaturePrints *storage.SignaturePrintStore
}

func (a *App) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.Config.Database.DSN == "" {
		return nil, errors.New("database.dsn is not configured")
	}
	return storage.NewPool(ctx, a.Config.Database)
}

func (a *App) rollbackPolicy() (timeseries.RollbackPolicy, error) {
	loc, err := a.Config.Rollback.Location()
	if err != nil {
		return timeseries.RollbackPolicy{}, err
	}
	return timeseries.RollbackPolicy{
		Lookback: a.Config.Rollback.Lookback,
		Location: loc,
	}, nil
}

// buildRepos wires every repository over the pool. pub may be nil for
// read-only commands; repositories then skip broadcasting.
func (a *App) buildRepos(pool *pgxpool.Pool, pub timeseries.Publisher) (*Repos, error) {
	policy, err := a.rollbackPolicy()
	if err != nil {
		return nil, err
	}

	tasStore := storage.NewTimeAndSaleStore(pool)

	// Quote rollback defers to the print stream: when prints are already
	// current for today's session, an empty quote window is fresh silence,
	// not missing history.
	quotePolicy := policy
	quotePolicy.Guard = timeseries.SiblingCatchUpGuard(
		tasStore,
		a.Config.Rollback.SessionHour,
		a.Config.Rollback.SessionMinute,
		policy.Location,
		nil,
	)

	return &Repos{
		TimeAndSale:     storage.NewTimeAndSaleRepo(tasStore, pub, policy, a.Logger),
		Quotes:          storage.NewQuoteRepo(storage.NewQuoteStore(pool), quotePolicy, a.Logger),
		Trades:          storage.NewTradeRepo(storage.NewTradeStore(pool), pub, policy, a.Logger),
		PowerAlerts:     storage.NewPowerAlertRepo(storage.NewPowerAlertStore(pool), pub, policy, a.Config.Broadcast.PowerAlertsOnSet, a.Logger),
		Volume:          storage.NewVolumeRepo(storage.NewVolumeStore(pool), pub, policy, a.Logger),
		SignaturePrints: storage.NewSignaturePrintStore(pool),
	}, nil
}

// startBus builds the broadcast bus, attaches the configured sinks, and
// starts the workers. The returned closer releases sink resources; call it
// after Stop so the drain can still deliver.
func (a *App) startBus() (*eventbus.Bus, func()) {
	bus := eventbus.New(eventbus.Config{
		Workers:   a.Config.Broadcast.Workers,
		QueueSize: a.Config.Broadcast.QueueSize,
	}, a.Logger)

	var closers []func()

	if a.Config.Broadcast.Kafka.Enabled {
		forwarder := eventbus.NewKafkaForwarder(eventbus.KafkaConfig{
			Enabled:      true,
			Brokers:      a.Config.Broadcast.Kafka.Brokers,
			Topic:        a.Config.Broadcast.Kafka.Topic,
			WriteTimeout: a.Config.Broadcast.Kafka.WriteTimeout,
		}, a.Logger)
		bus.Subscribe(forwarder.Handle)
		closers = append(closers, func() { _ = forwarder.Close() })
		a.Logger.Info().
			Strs("brokers", a.Config.Broadcast.Kafka.Brokers).
			Str("topic", a.Config.Broadcast.Kafka.Topic).
			Msg("kafka mirror enabled")
	}

	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		tg := a.Config.Alerting.Telegram
		notifier := alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, a.Config.Alerting.Timeout, a.Logger)
		bus.Subscribe(alerting.BusHandler(notifier, a.Config.Alerting.MinStrength, a.Config.Alerting.Timeout, a.Logger))
		a.Logger.Info().Int("min_strength", a.Config.Alerting.MinStrength).Msg("telegram alerting enabled")
	}

	bus.Start()
	return bus, func() {
		for _, c := range closers {
			c()
		}
	}
}

// Run starts the long-running service: the broadcast bus with its optional
// Kafka mirror, plus the retention sweeper when enabled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	bus, closeSinks := a.startBus()
	defer closeSinks()
	defer bus.Stop()

	repos, err := a.buildRepos(pool, bus)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.Config.Retention.Enabled {
		pruner := storage.NewPruner(pool, a.Logger)
		sweep := scheduler.New(scheduler.Options{
			Interval:     a.Config.Retention.SweepInterval,
			AlignToStart: true,
		}, a.Logger)
		lockKey := a.Config.Retention.AdvisoryLockKey
		group.Go(func() error {
			return sweep.Run(ctx, func(ctx context.Context, _ time.Time) error {
				if lockKey != 0 {
					unlock, acquired, err := storage.TryAdvisoryLock(ctx, pool, lockKey)
					if err != nil {
						return err
					}
					if !acquired {
						a.Logger.Debug().Msg("skip sweep; advisory lock held elsewhere")
						return nil
					}
					defer unlock()
				}
				cutoff := time.Now().UTC().Add(-a.Config.Retention.MaxAge)
				_, err := pruner.PruneBefore(ctx, cutoff)
				return err
			})
		})
	}

	group.Go(func() error {
		return a.logFreshness(ctx, repos)
	})

	a.Logger.Info().Msg("flowstore service started")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("flowstore service stopped")
	return nil
}

// logFreshness periodically reports how far behind the print stream is.
func (a *App) logFreshness(ctx context.Context, repos *Repos) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		since := time.Now().UTC().Add(-timeseries.DefaultLookback)
		max, err := repos.TimeAndSale.Store().MaxTimestamp(ctx, since)
		if err != nil {
			a.Logger.Error().Err(err).Msg("freshness probe failed")
			continue
		}
		evt := a.Logger.Info()
		if max.IsZero() {
			evt.Msg("no prints inside lookback horizon")
			continue
		}
		evt.Time("latest_print", max).
			Dur("lag", time.Since(max)).
			Msg("print stream freshness")
	}
}

// ExportOptions hold parameters for exporting quote history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Dataset     string
	Symbols     symbols.Filter
	From        *time.Time
	To          *time.Time
	Limit       int
	MinStrength int
	Rollback    bool
}

// IngestOptions configure the ingest command.
type IngestOptions struct {
	Dataset string
	Path    string
}
