package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/config"
	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/database"
	"github.com/xavierca1/leadflow/internal/infra/integration/monday"
	"github.com/xavierca1/leadflow/internal/infra/integration/whatsapp"
	"github.com/xavierca1/leadflow/internal/infra/queue"
	"github.com/xavierca1/leadflow/internal/infra/worker"
	"github.com/xavierca1/leadflow/internal/usecase"
)

// app holds the wired dependency graph shared by serve and run.
type app struct {
	store     entity.LeadRepositoryInterface
	crm       *monday.Client
	messenger *whatsapp.Client
	broker    *queue.RabbitMQ
	lifecycle *usecase.LeadLifecycle
	sync      *usecase.LeadSync
	scheduler *worker.Scheduler
	location  *time.Location

	closers []func()
}

type appOptions struct {
	autoMigrate bool
	withBroker  bool
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	if err := cfg.ValidateGateways(); err != nil {
		return nil, err
	}

	a := &app{}

	window, err := worker.NewSendWindow(cfg.Scheduler.WindowStartHour, cfg.Scheduler.WindowEndHour, cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}
	a.location = window.Location

	if opts.autoMigrate {
		if err := migrateUp(ctx, cfg.Store, log); err != nil {
			return nil, err
		}
	}

	if err := a.openStore(ctx, cfg.Store); err != nil {
		a.Close()
		return nil, err
	}

	var events usecase.QueueProducerInterface
	if opts.withBroker && cfg.RabbitMQ.Enabled() {
		broker, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.broker = broker
		a.closers = append(a.closers, func() { broker.Close() })
		events = queue.NewProducer(broker.Ch)
		log.Info("rabbitmq_connected", zap.String("exchange", queue.ExchangeName))
	}

	a.crm = monday.NewClient(monday.Config{
		APIToken:       cfg.Monday.APIKey,
		BaseURL:        cfg.Monday.APIURL,
		BoardID:        cfg.Monday.BoardID,
		PhoneColumnID:  cfg.Monday.PhoneColumnID,
		StatusColumnID: cfg.Monday.StatusColumnID,
	}, cfg.Monday.Timeout, log.Named("monday"))

	a.messenger = whatsapp.NewClient(whatsapp.Config{
		AccessToken:     cfg.Meta.APIToken,
		PhoneNumberID:   cfg.Meta.PhoneID,
		BaseURL:         cfg.Meta.APIURL,
		DefaultLanguage: cfg.Lifecycle.TemplateLanguage,
		RatePerSecond:   cfg.Meta.RatePerSecond,
	}, cfg.Meta.Timeout, log.Named("whatsapp"))

	a.lifecycle = usecase.NewLeadLifecycle(usecase.LifecycleDeps{
		Repo:      a.store,
		CRM:       a.crm,
		Messenger: a.messenger,
		Events:    events,
		Clock:     time.Now,
		Logger:    log.Named("lifecycle"),
	}, usecase.LifecycleConfig{
		InitialDelay:     cfg.Lifecycle.InitialDelay,
		FollowupDelay:    cfg.Lifecycle.FollowupDelay,
		WelcomeTemplate:  cfg.Lifecycle.WelcomeTemplate,
		FollowupTemplate: cfg.Lifecycle.FollowupTemplate,
		TemplateLanguage: cfg.Lifecycle.TemplateLanguage,
		PhoneRegion:      cfg.Lifecycle.PhoneRegion,
		ClaimTTL:         cfg.Lifecycle.ClaimTTL,
		RetryBackoff:     cfg.Lifecycle.RetryBackoff,
		RetryBackoffMax:  cfg.Lifecycle.RetryBackoffMax,
	})

	a.sync = usecase.NewLeadSync(a.crm, a.lifecycle, log.Named("sync"))

	a.scheduler = worker.NewScheduler(a.store, a.lifecycle, worker.Config{
		Interval:   cfg.Scheduler.Interval,
		BatchLimit: cfg.Scheduler.BatchLimit,
		Window:     window,
	}, time.Now, log.Named("scheduler"))

	return a, nil
}

func (a *app) openStore(ctx context.Context, sc config.StoreConfig) error {
	switch sc.Driver {
	case database.DriverPostgres:
		pool, err := database.NewPool(ctx, sc.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.store = database.NewLeadRepository(pool)
	case database.DriverSQLite:
		if err := ensureSQLiteDir(sc.DatabaseURL); err != nil {
			return err
		}
		db, err := database.NewSQLiteDB(sc.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.store = database.NewSQLiteLeadRepository(db)
	default:
		return eris.Errorf("unknown store driver %q", sc.Driver)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func migrateUp(ctx context.Context, sc config.StoreConfig, log *zap.Logger) error {
	if sc.Driver == database.DriverSQLite {
		if err := ensureSQLiteDir(sc.DatabaseURL); err != nil {
			return err
		}
	}
	db, err := database.OpenMigrationDB(sc.Driver, sc.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, sc.Driver); err != nil {
		return err
	}
	version, err := database.MigrationVersion(ctx, db, sc.Driver)
	if err != nil {
		return err
	}
	log.Info("migrations_applied", zap.String("driver", sc.Driver), zap.Int64("version", version))
	return nil
}

// ensureSQLiteDir creates the parent directory of a file DSN such as
// "file:./data/leads.db?_pragma=..." so the first start does not fail.
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create sqlite directory %s", dir)
	}
	return nil
}
