package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tracekeeper/internal/bootstrap"
	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/httpserver"
	"tracekeeper/internal/platform/logger"
	httptransport "tracekeeper/internal/transport/http"
)

// main wires the pipeline, exposes the HTTP router and keeps the server lifecycle
// small. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start tracekeeper", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("failed to release resources", "error", err)
		}
	}()
	if err := app.EnsureDiagnosticsTopic(ctx); err != nil {
		log.Warn("diagnostics topic unavailable", "error", err)
	}

	health := make(map[string]httptransport.HealthCheck, len(app.Health))
	for name, check := range app.Health {
		health[name] = check
	}
	handler := httptransport.New(app.Dispatcher, app.Migrator, app.Auditor, app.Schema, app.Recorder, log, app.Pipeline.Migration.BatchSize,
		httptransport.WithFinder(app.Lookup),
		httptransport.WithRegionChecker(app.Regions),
	)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Handler:    handler,
		Logger:     log,
		Metrics:    app.Metrics,
		Registry:   app.PromRegistry,
		AdminToken: cfg.AdminToken,
		Health:     health,
	})

	log.Info("starting tracekeeper", "addr", cfg.Addr, "store", cfg.Store.Driver)
	if err := httpserver.Serve(ctx, httpserver.New(cfg.Addr, router), log); err != nil {
		log.Error("server error", "error", err)
	}
}
