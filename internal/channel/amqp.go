package channel

import (
	"context"
	"fmt"

	"github.com/shaiso/Fieldflow/internal/mq"
)

// OutboundPublisher публикует сообщение в RabbitMQ.
// Реализуется mq.Publisher.
type OutboundPublisher interface {
	PublishJSON(ctx context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, msgType mq.MessageType, payload any) error
}

// AMQPProvider передаёт сообщения шлюзу через exchange fieldflow.outbound.
//
// Routing key — "<channel>.send" (sms.send, email.send). Подтверждение
// публикации означает только то, что сообщение принято брокером;
// ProviderMessageID — ID сообщения очереди.
type AMQPProvider struct {
	publisher OutboundPublisher
}

// NewAMQPProvider создаёт AMQPProvider.
func NewAMQPProvider(publisher OutboundPublisher) *AMQPProvider {
	return &AMQPProvider{publisher: publisher}
}

// Send реализует Provider.
func (p *AMQPProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	routingKey := mq.RoutingKey(string(msg.Channel) + ".send")

	if err := p.publisher.PublishJSON(ctx, mq.ExchangeOutbound, routingKey, mq.MessageTypeOutbound, msg); err != nil {
		return SendResult{}, fmt.Errorf("publish outbound message: %w", err)
	}

	return SendResult{ProviderMessageID: msg.ID.String(), Status: "published"}, nil
}
