package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeEventReceived    MessageType = "event.received"
	MessageTypeExecutionPending MessageType = "execution.pending"
	MessageTypeOutbound         MessageType = "message.outbound"
)

// Message — конверт сообщения в очереди.
type Message struct {
	// ID — уникальный идентификатор сообщения (AMQP message-id).
	ID string `json:"id"`

	Type MessageType `json:"type"`

	// Payload — полезная нагрузка в JSON; разбирается через ParsePayload.
	Payload json.RawMessage `json:"payload"`

	Timestamp time.Time `json:"timestamp"`
}

// ExecutionPendingPayload — payload execution.pending.
type ExecutionPendingPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
}

// NewMessage собирает конверт. Пустой id заменяется случайным UUID.
func NewMessage(msgType MessageType, id string, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload разбирает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return result, fmt.Errorf("%s: empty payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return result, nil
}
