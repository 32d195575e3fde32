// Fieldflow Consumer — отправка сообщений из очереди.
//
// По расписанию CONSUMER_SCHEDULE забирает сообщения с наступившим
// scheduled_at и отправляет их провайдерам каналов. По FALLBACK_SCHEDULE
// ставит в очередь резервные сообщения для неотправленных основных.
//
// Использование:
//
//	fieldflow-consumer          # по расписанию до SIGTERM
//	fieldflow-consumer --once   # один проход и выход (cron, k8s CronJob)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fieldflow/internal/app"
	"github.com/shaiso/Fieldflow/internal/channel"
	"github.com/shaiso/Fieldflow/internal/config"
	"github.com/shaiso/Fieldflow/internal/consumer"
	"github.com/shaiso/Fieldflow/internal/scheduler"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var once bool

	rootCmd := &cobra.Command{
		Use:           "fieldflow-consumer",
		Short:         "Send due queued messages and enqueue channel fallbacks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), once)
		},
	}
	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single send and fallback pass, then exit")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(telemetry.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("starting fieldflow-consumer", "once", once)

	tracer, shutdownTracing, err := telemetry.SetupTracing(ctx, "fieldflow-consumer", cfg.Tracing.Enabled)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	store, err := app.OpenStore(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// RabbitMQ нужен только провайдерам вида amqp
	var outbound channel.OutboundPublisher
	conn, publisher := app.ConnectMQ(ctx, &cfg, "fieldflow-consumer", logger)
	checks := []app.Check{store.Check}
	if conn != nil {
		defer conn.Close()
		checks = append(checks, app.MQCheck(conn))
		outbound = publisher
	}

	router, err := app.NewRouter(&cfg, outbound, logger)
	if err != nil {
		return err
	}

	cons := consumer.New(consumer.Config{
		Store:       store,
		Provider:    router,
		BatchSize:   cfg.Consumer.BatchSize,
		SendTimeout: cfg.Consumer.SendTimeout,
		Logger:      logger,
		Tracer:      tracer,
	})

	runner := scheduler.NewRunner(scheduler.RunnerConfig{Logger: logger})

	err = runner.Add("send", cfg.Consumer.Schedule, func(ctx context.Context) error {
		_, err := cons.Pass(ctx, time.Now())
		return err
	})
	if err != nil {
		return err
	}

	err = runner.Add("fallback", cfg.Consumer.FallbackSchedule, func(ctx context.Context) error {
		_, err := cons.FallbackCheck(ctx, time.Now())
		return err
	})
	if err != nil {
		return err
	}

	if once {
		return runner.RunOnce(ctx)
	}

	go func() {
		if err := app.Serve(ctx, ":"+cfg.Consumer.Port, app.OpsMux(started, checks...), logger); err != nil {
			logger.Error("http server error", "error", err)
		}
	}()

	return runner.Run(ctx)
}
