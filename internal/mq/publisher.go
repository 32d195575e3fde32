package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// Publisher публикует сообщения в RabbitMQ.
//
// Вместе с сообщением в заголовках уходит trace context,
// consumer продолжает тот же trace.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует конверт в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	headers := amqp.Table{}
	injectTrace(ctx, headers)

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.MQPublished.WithLabelValues(string(exchange), result).Inc()

	if err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishEvent публикует бизнес-событие в events.incoming.
// ID события становится ID сообщения.
func (p *Publisher) PublishEvent(ctx context.Context, event domain.Event) error {
	msg, err := NewMessage(MessageTypeEventReceived, event.ID, event)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeEvents, RoutingKeyIncoming, msg)
}

// HandoffExecution передаёт pending execution log executor'у.
func (p *Publisher) HandoffExecution(ctx context.Context, executionID uuid.UUID) error {
	msg, err := NewMessage(MessageTypeExecutionPending, "", ExecutionPendingPayload{ExecutionID: executionID})
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeExecutions, RoutingKeyPending, msg)
}

// PublishJSON публикует произвольный payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, "", payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}
