package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
)

var (
	// ErrUnsupportedChannel — для канала не настроен провайдер.
	ErrUnsupportedChannel = errors.New("unsupported channel")

	// ErrRejected — шлюз отклонил сообщение.
	ErrRejected = errors.New("message rejected by provider")
)

// Message — сообщение для отправки.
type Message struct {
	ID             uuid.UUID          `json:"id"`
	OrganizationID uuid.UUID          `json:"organization_id"`
	Channel        domain.MessageType `json:"channel"`
	To             string             `json:"to"`
	Subject        string             `json:"subject,omitempty"`
	Body           string             `json:"body"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// FromQueued строит Message из строки очереди.
func FromQueued(m *domain.QueuedMessage) Message {
	return Message{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Channel:        m.MessageType,
		To:             m.Recipient,
		Subject:        m.Subject,
		Body:           m.Content,
		Metadata:       m.Metadata,
	}
}

// SendResult — ответ шлюза.
type SendResult struct {
	// ProviderMessageID — идентификатор сообщения у шлюза.
	ProviderMessageID string `json:"provider_message_id"`

	// Status — статус, который вернул шлюз ("queued", "sent", ...).
	Status string `json:"status,omitempty"`
}

// Provider отправляет сообщения одного или нескольких каналов.
//
// Send должен уважать ctx: consumer ограничивает время отправки,
// и истечение ctx считается неудачной отправкой.
type Provider interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Router направляет сообщение провайдеру его канала.
type Router struct {
	providers map[domain.MessageType]Provider
}

// NewRouter создаёт пустой Router.
func NewRouter() *Router {
	return &Router{providers: make(map[domain.MessageType]Provider)}
}

// Handle регистрирует провайдера канала.
func (r *Router) Handle(channel domain.MessageType, p Provider) *Router {
	r.providers[channel] = p
	return r
}

// Has проверяет, настроен ли канал.
func (r *Router) Has(channel domain.MessageType) bool {
	_, ok := r.providers[channel]
	return ok
}

// Send реализует Provider.
func (r *Router) Send(ctx context.Context, msg Message) (SendResult, error) {
	p, ok := r.providers[msg.Channel]
	if !ok {
		return SendResult{}, fmt.Errorf("%w: %s", ErrUnsupportedChannel, msg.Channel)
	}
	return p.Send(ctx, msg)
}
