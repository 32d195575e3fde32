package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/mq"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPrefetch     = 10
	defaultConcurrency  = 4
)

// ServiceConfig — конфигурация Service.
type ServiceConfig struct {
	Executor   *Executor
	Dispatcher *trigger.Dispatcher

	// Conn — соединение с RabbitMQ. Без него Service работает только опросом.
	Conn *mq.Connection

	// PollInterval — интервал опроса pending и приостановленных logs (default: 10s).
	PollInterval time.Duration

	Logger *slog.Logger
}

// Service — долгоживущий процесс fieldflow-engine.
//
// Запускает:
//   - Consumer для events.incoming (Trigger Dispatcher)
//   - Consumer для executions.pending (Executor.Run)
//   - Polling горутину: PollPending и ResumeDue
type Service struct {
	executor     *Executor
	dispatcher   *trigger.Dispatcher
	conn         *mq.Connection
	pollInterval time.Duration
	logger       *slog.Logger

	eventConsumer *mq.Consumer
	execConsumer  *mq.Consumer

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewService создаёт Service.
func NewService(cfg ServiceConfig) *Service {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		executor:     cfg.Executor,
		dispatcher:   cfg.Dispatcher,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		logger:       logger.With("component", "engine"),
	}
}

// Start запускает consumers и polling.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting engine", "poll_interval", s.pollInterval)

	if s.conn != nil {
		if s.dispatcher != nil {
			s.eventConsumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
				Queue:       mq.QueueEventsIncoming,
				Handler:     s.handleEvent,
				Prefetch:    defaultPrefetch,
				Concurrency: defaultConcurrency,
			})
			s.startConsumer(ctx, s.eventConsumer, "event")
		}

		s.execConsumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
			Queue:       mq.QueueExecutionsPending,
			Handler:     s.handleExecutionPending,
			Prefetch:    defaultPrefetch,
			Concurrency: defaultConcurrency,
		})
		s.startConsumer(ctx, s.execConsumer, "execution")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()

	s.logger.Info("engine started")
	return nil
}

func (s *Service) startConsumer(ctx context.Context, c *mq.Consumer, name string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("consumer error", "consumer", name, "error", err)
		}
	}()
}

// Stop останавливает consumers и ждёт завершения горутин.
func (s *Service) Stop() {
	s.logger.Info("stopping engine...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.eventConsumer != nil {
		s.eventConsumer.Stop()
	}
	if s.execConsumer != nil {
		s.execConsumer.Stop()
	}

	s.wg.Wait()
	s.logger.Info("engine stopped")
}

// handleEvent обрабатывает event.received.
func (s *Service) handleEvent(ctx context.Context, delivery *mq.Delivery) error {
	event, err := mq.ParsePayload[domain.Event](&delivery.Message)
	if err != nil {
		s.logger.Error("failed to parse event payload", "error", err)
		return mq.Permanent(err)
	}
	if event.ID == "" {
		event.ID = delivery.Message.ID
	}

	result, err := s.dispatcher.Dispatch(ctx, event)
	if err != nil {
		if errors.Is(err, trigger.ErrInvalidEvent) {
			return mq.Permanent(err)
		}
		return err
	}

	s.logger.Debug("event dispatched",
		"event_type", event.EventType,
		"matched", result.Matched(),
	)
	return nil
}

// handleExecutionPending обрабатывает execution.pending.
func (s *Service) handleExecutionPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ExecutionPendingPayload](&delivery.Message)
	if err != nil {
		s.logger.Error("failed to parse execution.pending payload", "error", err)
		return mq.Permanent(err)
	}

	if _, err := s.executor.Run(ctx, payload.ExecutionID); err != nil {
		if errors.Is(err, ErrNotPending) || errors.Is(err, ErrExecutionNotFound) {
			s.logger.Debug("execution not processed",
				"execution_id", payload.ExecutionID,
				"reason", err,
			)
			return nil
		}
		return err
	}
	return nil
}

// pollLoop — цикл polling для fallback.
func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем logs, созданные пока были выключены)
	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (s *Service) poll(ctx context.Context) {
	now := s.executor.now()

	if n, err := s.executor.PollPending(ctx, now); err != nil {
		s.logger.Error("failed to poll pending executions", "error", err)
	} else if n > 0 {
		s.logger.Info("ran pending executions from poll", "count", n)
	}

	if n, err := s.executor.ResumeDue(ctx, now); err != nil {
		s.logger.Error("failed to resume executions", "error", err)
	} else if n > 0 {
		s.logger.Info("resumed suspended executions", "count", n)
	}
}
