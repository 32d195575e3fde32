package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvents     Exchange = "fieldflow.events"
	ExchangeExecutions Exchange = "fieldflow.executions"
	ExchangeOutbound   Exchange = "fieldflow.outbound"
	ExchangeDLQ        Exchange = "fieldflow.dlq"
)

// Queues.
const (
	QueueEventsIncoming    Queue = "events.incoming"
	QueueExecutionsPending Queue = "executions.pending"
	QueueDLQEvents         Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyIncoming  RoutingKey = "incoming"
	RoutingKeyPending   RoutingKey = "pending"
	RoutingKeyDLQEvents RoutingKey = "events"
)

type exchangeSpec struct {
	name Exchange
	kind string
}

type queueSpec struct {
	name Queue
	// deadLetter — куда уходят nack без requeue; пусто — сообщение отбрасывается.
	deadLetter RoutingKey
	binding    RoutingKey
	exchange   Exchange
	consumer   string
}

// topology — всё, что объявляет SetupTopology.
// fieldflow.outbound без очередей: их привязывает шлюз доставки (sms.*, email.*).
var topology = struct {
	exchanges []exchangeSpec
	queues    []queueSpec
}{
	exchanges: []exchangeSpec{
		{ExchangeEvents, amqp.ExchangeDirect},
		{ExchangeExecutions, amqp.ExchangeDirect},
		{ExchangeOutbound, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	},
	queues: []queueSpec{
		{
			name:       QueueEventsIncoming,
			deadLetter: RoutingKeyDLQEvents,
			binding:    RoutingKeyIncoming,
			exchange:   ExchangeEvents,
			consumer:   "fieldflow-engine (trigger dispatcher)",
		},
		{
			// потерянные handoff'ы подбирает опрос pending logs
			name:     QueueExecutionsPending,
			binding:  RoutingKeyPending,
			exchange: ExchangeExecutions,
			consumer: "fieldflow-engine (step executor)",
		},
		{
			name:     QueueDLQEvents,
			binding:  RoutingKeyDLQEvents,
			exchange: ExchangeDLQ,
			consumer: "manual processing",
		},
	},
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topology.exchanges {
			// durable, не auto-delete, не internal
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range topology.queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args()); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
			if err := ch.QueueBind(string(q.name), string(q.binding), string(q.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.name, q.exchange, err)
			}
		}

		return nil
	})
}

func (q queueSpec) args() amqp.Table {
	if q.deadLetter == "" {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(q.deadLetter),
	}
}

// TopologyInfo описывает топологию для логов и README.
func TopologyInfo() string {
	var b strings.Builder
	b.WriteString("Fieldflow RabbitMQ topology:\n")

	for _, ex := range topology.exchanges {
		fmt.Fprintf(&b, "  %s (%s)\n", ex.name, ex.kind)

		bound := false
		for _, q := range topology.queues {
			if q.exchange != ex.name {
				continue
			}
			bound = true
			fmt.Fprintf(&b, "    └── %s [routing: %s] consumer: %s", q.name, q.binding, q.consumer)
			if q.deadLetter != "" {
				fmt.Fprintf(&b, ", dlq: %s/%s", ExchangeDLQ, q.deadLetter)
			}
			b.WriteString("\n")
		}
		if !bound {
			b.WriteString("    └── bound by the delivery gateway\n")
		}
	}

	return b.String()
}
