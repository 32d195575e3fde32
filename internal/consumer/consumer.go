package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Fieldflow/internal/channel"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultBatchSize   = 100
	defaultSendTimeout = 15 * time.Second
)

// Store — то, что consumer'у нужно от хранилища.
type Store interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	gateway.MessageStore
}

// Config — конфигурация Consumer.
type Config struct {
	Store    Store
	Provider channel.Provider

	// BatchSize — сколько сообщений брать за проход (default: 100).
	BatchSize int

	// SendTimeout — ограничение одного вызова провайдера (default: 15s).
	SendTimeout time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Consumer отправляет сообщения, у которых наступило время.
type Consumer struct {
	store       Store
	provider    channel.Provider
	batchSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// New создаёт Consumer.
func New(cfg Config) *Consumer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Consumer{
		store:       cfg.Store,
		provider:    cfg.Provider,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		logger:      logger.With("component", "consumer"),
		tracer:      telemetry.Tracer(cfg.Tracer),
		now:         now,
	}
}

// PassStats — итог одного прохода.
type PassStats struct {
	// Due — сколько сообщений выбрано.
	Due int `json:"due"`

	// Sent — доставлено провайдеру.
	Sent int `json:"sent"`

	// Failed — провайдер вернул ошибку или не уложился во время.
	Failed int `json:"failed"`

	// Skipped — сообщения неактивных или удалённых workflows.
	Skipped int `json:"skipped"`

	// Lost — строку уже взял другой проход.
	Lost int `json:"lost"`
}

// Pass выполняет один проход по очереди.
//
// Ошибка возвращается, только если не удалось прочитать очередь;
// сбои отдельных сообщений записываются в сами сообщения.
func (c *Consumer) Pass(ctx context.Context, now time.Time) (stats PassStats, err error) {
	ctx, span := telemetry.StartSpan(ctx, c.tracer, "consumer.pass")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("consumer pass panicked", "panic", r)
			err = fmt.Errorf("consumer pass panicked: %v", r)
		}
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
		}
		telemetry.ConsumerPasses.WithLabelValues("send", result).Inc()
	}()

	due, err := c.store.ListDueMessages(ctx, now.UTC(), c.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list due messages: %w", err)
	}
	stats.Due = len(due)

	active := newWorkflowCache(c.store)

	for i := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		msg := &due[i]

		ok, err := active.isActive(ctx, msg.WorkflowID)
		if err != nil {
			c.logger.Error("failed to load workflow for message",
				"message_id", msg.ID,
				"workflow_id", msg.WorkflowID,
				"error", err,
			)
			stats.Skipped++
			continue
		}
		if !ok {
			stats.Skipped++
			continue
		}

		switch c.deliver(ctx, msg) {
		case deliverySent:
			stats.Sent++
		case deliveryFailed:
			stats.Failed++
		case deliveryLost:
			stats.Lost++
		}
	}

	if stats.Due > 0 {
		c.logger.Info("consumer pass finished",
			"due", stats.Due,
			"sent", stats.Sent,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"lost", stats.Lost,
		)
	}

	return stats, nil
}

type delivery int

const (
	deliverySent delivery = iota
	deliveryFailed
	deliveryLost
)

// deliver захватывает сообщение и отправляет его провайдеру.
func (c *Consumer) deliver(ctx context.Context, msg *domain.QueuedMessage) delivery {
	logger := c.logger.With(telemetry.MessageAttr(msg.ID))

	claimed, err := c.store.ClaimMessage(ctx, msg.ID)
	if err != nil {
		logger.Error("failed to claim message", "error", err)
		return deliveryLost
	}
	if !claimed {
		logger.Debug("message already claimed")
		return deliveryLost
	}

	ctx, span := telemetry.StartSpan(ctx, c.tracer, "consumer.send",
		telemetry.AttrMessageID.String(msg.ID.String()),
		telemetry.AttrWorkflowID.String(msg.WorkflowID.String()),
		telemetry.AttrChannel.String(string(msg.MessageType)),
	)
	defer span.End()

	result, sendErr := c.send(ctx, msg)

	// статус пишем и после отмены ctx прохода: строка уже в processing
	storeCtx := context.WithoutCancel(ctx)

	if sendErr != nil {
		span.RecordError(sendErr)
		errMsg := fmt.Errorf("%w: %v", ErrDispatch, sendErr).Error()
		if err := c.store.MarkFailed(storeCtx, msg.ID, errMsg); err != nil {
			logger.Error("failed to mark message failed", "error", err)
		}
		telemetry.MessagesDispatched.WithLabelValues(string(msg.MessageType), string(domain.MessageStatusFailed)).Inc()
		logger.Warn("message dispatch failed",
			"channel", msg.MessageType,
			"error", sendErr,
		)
		return deliveryFailed
	}

	if err := c.store.MarkSent(storeCtx, msg.ID, result.ProviderMessageID, c.now().UTC()); err != nil {
		logger.Error("failed to mark message sent", "error", err)
	}
	telemetry.MessagesDispatched.WithLabelValues(string(msg.MessageType), string(domain.MessageStatusSent)).Inc()
	logger.Info("message sent",
		"channel", msg.MessageType,
		"provider_message_id", result.ProviderMessageID,
	)
	return deliverySent
}

// send вызывает провайдера с ограничением времени.
// Паника провайдера считается ошибкой отправки.
func (c *Consumer) send(ctx context.Context, msg *domain.QueuedMessage) (result channel.SendResult, err error) {
	if c.provider == nil {
		return result, channel.ErrUnsupportedChannel
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
		telemetry.ProviderLatency.WithLabelValues(string(msg.MessageType)).Observe(time.Since(start).Seconds())
	}()

	result, err = c.provider.Send(ctx, channel.FromQueued(msg))
	if err == nil && ctx.Err() != nil {
		// провайдер не уважил ctx: ответ пришёл уже после таймаута
		err = ctx.Err()
	}
	return result, err
}

// Reprocess возвращает failed сообщение в pending.
func (c *Consumer) Reprocess(ctx context.Context, id uuid.UUID) error {
	ok, err := c.store.ResetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
		}
		return fmt.Errorf("reset message: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFailed, id)
	}

	c.logger.Info("message requeued", "message_id", id)
	return nil
}

// ReprocessFailed возвращает в pending все failed сообщения workflow.
func (c *Consumer) ReprocessFailed(ctx context.Context, workflowID uuid.UUID) (int, error) {
	n, err := c.store.ResetFailedByWorkflow(ctx, workflowID)
	if err != nil {
		return 0, fmt.Errorf("reset failed messages: %w", err)
	}

	c.logger.Info("failed messages requeued", "workflow_id", workflowID, "count", n)
	return n, nil
}

// workflowCache запоминает статус workflows в пределах одного прохода.
type workflowCache struct {
	store  Store
	active map[uuid.UUID]bool
}

func newWorkflowCache(store Store) *workflowCache {
	return &workflowCache{store: store, active: make(map[uuid.UUID]bool)}
}

func (w *workflowCache) isActive(ctx context.Context, id uuid.UUID) (bool, error) {
	if ok, cached := w.active[id]; cached {
		return ok, nil
	}

	wf, err := w.store.GetWorkflow(ctx, id)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			w.active[id] = false
			return false, nil
		}
		return false, err
	}

	w.active[id] = wf.IsActive()
	return w.active[id], nil
}
