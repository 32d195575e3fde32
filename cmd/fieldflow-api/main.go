// Fieldflow API — HTTP API для workflows, execution logs,
// очереди сообщений и приёма событий.
//
// POST /api/v1/events публикуется в RabbitMQ, если брокер доступен,
// иначе обрабатывается диспетчером синхронно.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/api"
	"github.com/shaiso/Fieldflow/internal/app"
	"github.com/shaiso/Fieldflow/internal/config"
	"github.com/shaiso/Fieldflow/internal/consumer"
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
	logger.Info("starting fieldflow-api")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer, shutdownTracing, err := telemetry.SetupTracing(ctx, "fieldflow-api", cfg.Tracing.Enabled)
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

	dispatcherCfg := trigger.Config{
		Store:   store,
		Catalog: catalog,
		Deduper: deduper,
		Logger:  logger,
		Tracer:  tracer,
	}

	handlerCfg := api.Config{
		Store:   store,
		Catalog: catalog,
		Actions: registry,
		// Reprocess только меняет статус, провайдер не нужен
		Messages: consumer.New(consumer.Config{Store: store, Logger: logger, Tracer: tracer}),
		Logger:   logger,
	}

	// RabbitMQ
	conn, publisher := app.ConnectMQ(ctx, &cfg, "fieldflow-api", logger)
	checks := []app.Check{store.Check}
	if conn != nil {
		defer conn.Close()
		checks = append(checks, app.MQCheck(conn))
		dispatcherCfg.Handoff = publisher
		handlerCfg.Events = publisher
	}
	handlerCfg.Dispatcher = trigger.NewDispatcher(dispatcherCfg)

	handler := api.NewHandler(handlerCfg)

	mux := app.OpsMux(startTime, checks...)
	handler.RegisterRoutes(mux)

	if err := app.Serve(ctx, ":"+cfg.API.Port, mux, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("fieldflow-api stopped")
}
