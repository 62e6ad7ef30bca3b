// Package bootstrap assembles the trace pipeline from configuration. The server
// and the operator CLI share it so both see the same store, schema and sinks.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/diagnostics/kafkasink"
	"tracekeeper/internal/dispatcher"
	"tracekeeper/internal/lookup"
	"tracekeeper/internal/migrator"
	"tracekeeper/internal/migrator/lock"
	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/kafka"
	"tracekeeper/internal/platform/logger"
	"tracekeeper/internal/platform/metrics"
	platformmongo "tracekeeper/internal/platform/mongo"
	"tracekeeper/internal/platform/postgres"
	platformredis "tracekeeper/internal/platform/redis"
	"tracekeeper/internal/quality"
	"tracekeeper/internal/schema"
	"tracekeeper/internal/trace/ports"
	"tracekeeper/internal/trace/store/memory"
	mongostore "tracekeeper/internal/trace/store/mongo"
	pgstore "tracekeeper/internal/trace/store/postgres"
	"tracekeeper/internal/validator"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// App holds the wired services and the resources they depend on.
type App struct {
	Config   config.Server
	Pipeline config.Pipeline
	Logger   *slog.Logger

	Store    ports.TraceStore
	Schema   *schema.Registry
	Recorder *diagnostics.Recorder
	Sink     ports.DiagnosticSink

	PromRegistry *prometheus.Registry
	Metrics      *metrics.Metrics

	Validator  *validator.Service
	Dispatcher *dispatcher.Service
	Migrator   *migrator.Service
	Auditor    *quality.Service
	Lookup     *lookup.Service
	Regions    *dispatcher.StatusChecker

	// Health maps dependency names to their reachability checks.
	Health map[string]func(context.Context) error

	kafka   *kgo.Client
	closers []func() error
}

// New connects to the configured backends and builds every service.
// Callers must Close the returned App. On failure everything opened so far is
// released before the error is returned.
func New(ctx context.Context, cfg config.Server, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	pipeline, err := config.LoadPipeline(cfg.PipelineConfigPath)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Pipeline: pipeline,
		Logger:   log,
		Health:   make(map[string]func(context.Context) error),
	}
	if err := app.build(ctx); err != nil {
		return nil, app.abort(err)
	}
	return app, nil
}

// abort closes whatever build opened and returns err joined with any close failure.
func (a *App) abort(err error) error {
	if cerr := a.Close(); cerr != nil {
		return errors.Join(err, fmt.Errorf("release after failed start: %w", cerr))
	}
	return err
}

func (a *App) build(ctx context.Context) error {
	var err error
	if a.Schema, err = schema.FromPipeline(a.Pipeline); err != nil {
		return fmt.Errorf("build schema registry: %w", err)
	}
	if err = a.openStore(ctx); err != nil {
		return err
	}
	if err = a.Store.EnsureIndexes(ctx, a.Schema.Known()); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	a.Health["store"] = a.Store.Ping

	if err = a.openDiagnostics(); err != nil {
		return err
	}

	a.PromRegistry = metrics.NewRegistry()
	a.Metrics = metrics.New(a.PromRegistry)

	a.Validator = validator.New(
		validator.WithLogger(a.Logger),
		validator.WithDiagnostics(a.Sink),
		validator.WithMetrics(a.Metrics),
	)

	regions, err := dispatcher.RegionsFromPipeline(a.Pipeline)
	if err != nil {
		return fmt.Errorf("build regions: %w", err)
	}
	if a.Dispatcher, err = dispatcher.New(a.Store, regions, a.Schema.Current(),
		dispatcher.WithLogger(a.Logger),
		dispatcher.WithDiagnostics(a.Sink),
		dispatcher.WithMetrics(a.Metrics),
		dispatcher.WithValidator(a.Validator),
	); err != nil {
		return err
	}
	a.registerRegionChecks(regions)

	jobLock, err := a.openJobLock(ctx)
	if err != nil {
		return err
	}
	if a.Migrator, err = migrator.New(a.Store, a.Schema,
		migrator.WithLogger(a.Logger),
		migrator.WithDiagnostics(a.Sink),
		migrator.WithMetrics(a.Metrics),
		migrator.WithMaxWorkers(maxWorkers(a.Config, a.Pipeline)),
		migrator.WithJobLock(jobLock, a.Pipeline.Migration.LockTTL),
	); err != nil {
		return err
	}

	if a.Auditor, err = quality.New(a.Store, quality.ThresholdsFromPipeline(a.Pipeline),
		quality.WithLogger(a.Logger),
		quality.WithDiagnostics(a.Sink),
		quality.WithMetrics(a.Metrics),
	); err != nil {
		return err
	}

	if a.Lookup, err = lookup.New(a.Store, a.Schema,
		lookup.WithLogger(a.Logger),
		lookup.WithMetrics(a.Metrics),
	); err != nil {
		return err
	}
	return nil
}

// registerRegionChecks adds a health check per region that publishes a status URL.
func (a *App) registerRegionChecks(regions *dispatcher.RegionSet) {
	a.Regions = dispatcher.NewStatusChecker(regions, nil, a.Metrics, a.Logger)
	for _, id := range a.Regions.Monitored() {
		a.Health["region:"+id] = func(ctx context.Context) error {
			return a.Regions.CheckRegion(ctx, id).Check()
		}
	}
}

// Close releases every opened resource in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case "", DriverMemory:
		a.Store = memory.New()
	case DriverPostgres:
		db, err := postgres.Open(ctx, a.Config.Store.PostgresDSN)
		if err != nil {
			return err
		}
		a.onClose(db.Close)
		a.Store = pgstore.New(db)
	case DriverMongo:
		client, err := platformmongo.Connect(ctx, a.Config.Store.MongoURI)
		if err != nil {
			return err
		}
		a.onClose(func() error { return client.Disconnect(context.Background()) })
		a.Store = mongostore.New(client.Database(a.Config.Store.MongoDatabase))
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.Store.Driver)
	}
	a.Logger.Info("trace store ready", "driver", a.Config.Store.Driver)
	return nil
}

// openDiagnostics tees entries to the diagnostic file, the in-memory tail and,
// when brokers are configured, a Kafka topic.
func (a *App) openDiagnostics() error {
	a.Recorder = diagnostics.NewRecorder(a.Config.DiagnosticsBuffer)
	tee := diagnostics.Tee{a.Recorder}

	if path := a.Config.DiagnosticLogPath; path != "" {
		f, err := logger.OpenDiagnosticFile(path)
		if err != nil {
			return err
		}
		a.onClose(f.Close)
		tee = append(tee, diagnostics.NewSlogSink(logger.New(f, "debug")))
	}

	client, err := kafka.New(a.Config.Kafka)
	if err != nil {
		return err
	}
	if client != nil {
		a.kafka = client
		a.onClose(func() error { client.Close(); return nil })
		tee = append(tee, kafkasink.New(client, a.Config.Kafka.DiagnosticsTopic, kafkasink.WithLogger(a.Logger)))
		a.Health["kafka"] = func(ctx context.Context) error { return client.Ping(ctx) }
	}

	a.Sink = tee
	return nil
}

// EnsureDiagnosticsTopic creates the diagnostics topic when Kafka is configured.
func (a *App) EnsureDiagnosticsTopic(ctx context.Context) error {
	if a.kafka == nil {
		return nil
	}
	return kafka.EnsureTopic(ctx, a.kafka, a.Config.Kafka.DiagnosticsTopic, 1, 1)
}

func (a *App) openJobLock(ctx context.Context) (ports.JobLock, error) {
	client, err := platformredis.Open(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return lock.NewMemory(), nil
	}
	a.onClose(client.Close)
	a.Health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return lock.NewRedis(client), nil
}

func maxWorkers(cfg config.Server, pipeline config.Pipeline) int {
	if cfg.MigrationMaxWorkers > 0 {
		return cfg.MigrationMaxWorkers
	}
	return pipeline.Migration.MaxWorkers
}
