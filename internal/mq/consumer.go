package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// resubscribeDelay — пауза перед повторной подпиской, если закрылся только канал.
const resubscribeDelay = 5 * time.Second

// Handler обрабатывает одно сообщение.
//
// nil — ack. Ошибка — nack с возвратом в очередь.
// Ошибка, обёрнутая Permanent, отправляет сообщение в DLQ.
type Handler func(ctx context.Context, msg *Delivery) error

// PermanentError — ошибка, которую не исправит повторная доставка
// (некорректный payload, невалидное событие).
type PermanentError struct {
	Err error
}

// Error реализует интерфейс error.
func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent помечает ошибку как постоянную.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent проверяет, помечена ли ошибка как постоянная.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Delivery — доставленное сообщение.
type Delivery struct {
	Message Message

	// Redelivered — сообщение уже доставлялось и было возвращено в очередь.
	Redelivered bool
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue   Queue
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит канал (default: 1).
	Prefetch int

	// Concurrency — число параллельных обработчиков (default: 1, не больше Prefetch).
	Concurrency int
}

// Consumer читает очередь на собственном канале и переподписывается
// после разрыва соединения.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	queue       Queue
	handler     Handler
	prefetch    int
	concurrency int

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := max(cfg.Prefetch, 1)
	concurrency := min(max(cfg.Concurrency, 1), prefetch)

	return &Consumer{
		conn:        conn,
		logger:      logger.With("queue", string(cfg.Queue)),
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		prefetch:    prefetch,
		concurrency: concurrency,
	}
}

// Start блокируется до отмены ctx или вызова Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	for {
		reconnected := c.conn.Reconnected()

		ch, deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started", "prefetch", c.prefetch, "concurrency", c.concurrency)
			c.drain(ctx, deliveries)
			ch.Close()

			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, resubscribing")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
		case <-time.After(resubscribeDelay):
		}
	}
}

// subscribe открывает канал, задаёт Qos и начинает потребление.
func (c *Consumer) subscribe() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.newChannel()
	if err != nil {
		return nil, nil, err
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	// auto-ack выключен: ack/nack после обработчика
	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

// drain раздаёт сообщения обработчикам, пока канал доставки открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for range c.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-deliveries:
					if !ok {
						return
					}
					c.handle(ctx, raw)
				}
			}
		}()
	}
	wg.Wait()
}

// handle обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message, dead-lettering",
			"message_id", raw.MessageId,
			"error", err,
			"body", truncate(raw.Body, 512),
		)
		c.settle(raw, "malformed", raw.Nack(false, false))
		return
	}

	ctx = extractTrace(ctx, raw.Headers)

	err := c.invoke(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	switch {
	case err == nil:
		c.settle(raw, "ack", raw.Ack(false))

	case IsPermanent(err):
		c.logger.Error("handler failed permanently, dead-lettering",
			"message_id", msg.ID, "type", msg.Type, "error", err)
		c.settle(raw, "dead_letter", raw.Nack(false, false))

	default:
		c.logger.Warn("handler failed, requeueing",
			"message_id", msg.ID, "type", msg.Type, "redelivered", raw.Redelivered, "error", err)
		c.settle(raw, "requeue", raw.Nack(false, true))
	}
}

// invoke вызывает обработчик; паника становится постоянной ошибкой.
func (c *Consumer) invoke(ctx context.Context, d *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return c.handler(ctx, d)
}

func (c *Consumer) settle(raw amqp.Delivery, outcome string, err error) {
	telemetry.MQDeliveries.WithLabelValues(string(c.queue), outcome).Inc()
	if err != nil {
		c.logger.Warn("failed to settle delivery", "message_id", raw.MessageId, "outcome", outcome, "error", err)
	}
}

// Stop прекращает потребление.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
