// Package app собирает общие зависимости процессов Fieldflow:
// хранилище, RabbitMQ, backend и служебный HTTP (/healthz, /metrics).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/config"
	"github.com/shaiso/Fieldflow/internal/gateway"
	"github.com/shaiso/Fieldflow/internal/memstore"
	"github.com/shaiso/Fieldflow/internal/mq"
	"github.com/shaiso/Fieldflow/internal/repo"
)

// Store — открытое хранилище процесса.
type Store struct {
	gateway.Store

	// Check — проверка для /readyz.
	Check Check

	// Close закрывает пул (для memory — no-op).
	Close func()
}

// OpenStore открывает хранилище по cfg.Store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is not shared between processes")
		return &Store{
			Store: memstore.New(),
			Check: Check{Name: "store", Ready: func(context.Context) error { return nil }},
			Close: func() {},
		}, nil
	}

	pool, err := repo.NewPool(ctx, repo.PoolConfig{
		DSN:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("database connected")

	if cfg.Database.Migrate {
		if err := repo.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	return &Store{
		Store: repo.NewStore(pool),
		Check: Check{Name: "postgres", Ready: pool.Ping},
		Close: pool.Close,
	}, nil
}

// ConnectMQ подключается к RabbitMQ и создаёт топологию.
// Недоступный брокер — не ошибка: процессы работают опросом БД.
func ConnectMQ(ctx context.Context, cfg *config.Config, name string, logger *slog.Logger) (*mq.Connection, *mq.Publisher) {
	conn, err := mq.NewConnection(mq.ConnConfig{URL: cfg.RabbitMQ.URL, Name: name, Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		return nil, nil
	}
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	} else {
		logger.Debug(mq.TopologyInfo())
	}

	return conn, mq.NewPublisher(conn, logger)
}

// NewBackend создаёт backend для делегируемых действий.
// Пустой URL — операции только логируются.
func NewBackend(cfg *config.Config, logger *slog.Logger) actions.Backend {
	if cfg.Backend.URL == "" {
		logger.Warn("BACKEND_URL not set, delegated actions are logged only")
		return actions.NewLogBackend(logger)
	}
	return actions.NewHTTPBackend(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout)
}

// Check — проверка готовости зависимости для /readyz.
type Check struct {
	Name  string
	Ready func(ctx context.Context) error
}

// OpsMux возвращает mux с /healthz, /readyz и /metrics.
//
// /healthz отвечает, пока процесс жив; /readyz — 503, если какая-то
// из checks не прошла.
func OpsMux(started time.Time, checks ...Check) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(started).Round(time.Second))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		var report strings.Builder
		for _, c := range checks {
			if err := c.Ready(ctx); err != nil {
				status = http.StatusServiceUnavailable
				fmt.Fprintf(&report, "%s: %v\n", c.Name, err)
				continue
			}
			fmt.Fprintf(&report, "%s: ok\n", c.Name)
		}

		w.WriteHeader(status)
		fmt.Fprint(w, report.String())
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// MQCheck проверяет соединение с RabbitMQ.
func MQCheck(conn *mq.Connection) Check {
	return Check{Name: "rabbitmq", Ready: func(context.Context) error { return conn.Ready() }}
}

// Serve запускает HTTP-сервер и останавливает его при отмене ctx.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
