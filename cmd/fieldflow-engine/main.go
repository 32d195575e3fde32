// Fieldflow Engine — диспетчер событий и исполнитель workflows.
//
// Engine:
//   - Получает события из events.incoming и создаёт execution logs
//   - Выполняет logs из executions.pending
//   - Опросом подбирает пропущенные pending logs и возобновляет
//     приостановленные по resume_at
//
// Без RabbitMQ работает только опросом.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/app"
	"github.com/shaiso/Fieldflow/internal/config"
	"github.com/shaiso/Fieldflow/internal/executor"
	"github.com/shaiso/Fieldflow/internal/telemetry"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(telemetry.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("starting fieldflow-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer, shutdownTracing, err := telemetry.SetupTracing(ctx, "fieldflow-engine", cfg.Tracing.Enabled)
	if err != nil {
		logger.Error("failed to setup tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	store, err := app.OpenStore(ctx, &cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	deduper, closeDedupe := app.NewDeduper(ctx, &cfg, logger)
	defer closeDedupe()

	catalog := trigger.DefaultCatalog()
	registry := actions.DefaultRegistry(actions.Deps{
		Messages: store,
		Backend:  app.NewBackend(&cfg, logger),
	})
	logger.Info("catalog loaded", "triggers", len(catalog.Types()), "actions", registry.Count())

	dispatcherCfg := trigger.Config{
		Store:   store,
		Catalog: catalog,
		Deduper: deduper,
		Logger:  logger,
		Tracer:  tracer,
	}

	// RabbitMQ
	conn, publisher := app.ConnectMQ(ctx, &cfg, "fieldflow-engine", logger)
	checks := []app.Check{store.Check}
	if conn != nil {
		defer conn.Close()
		checks = append(checks, app.MQCheck(conn))
		dispatcherCfg.Handoff = publisher
	}

	exec := executor.New(executor.Config{
		Store:       store,
		Actions:     registry,
		Catalog:     catalog,
		BatchSize:   cfg.Engine.BatchSize,
		StepTimeout: cfg.Engine.StepTimeout,
		Logger:      logger,
		Tracer:      tracer,
	})

	svc := executor.NewService(executor.ServiceConfig{
		Executor:     exec,
		Dispatcher:   trigger.NewDispatcher(dispatcherCfg),
		Conn:         conn,
		PollInterval: cfg.Engine.PollInterval,
		Logger:       logger,
	})

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if err := app.Serve(ctx, ":"+cfg.Engine.Port, app.OpsMux(startTime, checks...), logger); err != nil {
		logger.Error("http server error", "error", err)
		cancel()
	}

	svc.Stop()
	logger.Info("fieldflow-engine stopped")
}
