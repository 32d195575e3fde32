package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/scheduler"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// Ключи конфигурации send_sms / send_email.
const (
	configTo              = "to"
	configMessage         = "message"
	configSubject         = "subject"
	configFallbackTo      = "fallback_to"
	configFallbackMessage = "fallback_message"
)

// MessageEnqueuer ставит сообщение в очередь.
type MessageEnqueuer interface {
	EnqueueMessage(ctx context.Context, msg *domain.QueuedMessage) error
}

// MessageAction — send_sms или send_email.
//
// Не отправляет сообщение сам: вычисляет scheduled_at по окну доставки
// workflow и ставит QueuedMessage в очередь. Отправкой занимается consumer.
//
// Конфигурация:
//
//	{
//	    "to": "{{client.phone}}",          // по умолчанию client.phone / client.email
//	    "message": "Hi {{client.name}}",
//	    "subject": "Your invoice",         // только email
//	    "fallback_to": "{{client.email}}", // получатель в резервном канале
//	    "fallback_message": "..."          // текст для резервного канала
//	}
//
// Outputs:
//
//	{"message_id": "...", "scheduled_at": "...", "recipient": "...", "channel": "sms", "deferred": true}
type MessageAction struct {
	channel  domain.MessageType
	messages MessageEnqueuer
}

// NewMessageAction создаёт действие отправки по каналу.
func NewMessageAction(channel domain.MessageType, messages MessageEnqueuer) *MessageAction {
	return &MessageAction{channel: channel, messages: messages}
}

// Type возвращает подтип шага.
func (a *MessageAction) Type() string {
	if a.channel == domain.MessageTypeEmail {
		return domain.SubtypeSendEmail
	}
	return domain.SubtypeSendSMS
}

// Validate проверяет конфигурацию.
func (a *MessageAction) Validate(config map[string]any) error {
	props := map[string]any{
		configTo:              anyString,
		configMessage:         nonEmptyString,
		configFallbackTo:      anyString,
		configFallbackMessage: anyString,
	}
	if a.channel == domain.MessageTypeEmail {
		props[configSubject] = anyString
	}
	return validateSchema(a.Type(), objectSchema([]string{configMessage}, props), config)
}

// Execute ставит сообщение в очередь.
func (a *MessageAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	if a.messages == nil {
		return nil, fmt.Errorf("%s: message queue is not configured", a.Type())
	}
	if req.Workflow == nil || req.Execution == nil {
		return nil, fmt.Errorf("%s: workflow and execution are required", a.Type())
	}

	recipient := GetConfigString(req.Config, configTo)
	if recipient == "" {
		recipient = contactFor(req.Data, a.channel)
	}
	if isUnresolved(recipient) {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedRecipient, a.Type())
	}

	content := GetConfigString(req.Config, configMessage)
	if content == "" {
		return nil, fmt.Errorf("%w: %s: message is required", ErrInvalidConfig, a.Type())
	}

	window := req.Workflow.DeliveryWindow
	scheduledAt, err := scheduler.NextDeliveryTime(window, req.Now)
	if err != nil {
		return nil, fmt.Errorf("compute delivery time: %w", err)
	}

	msg := &domain.QueuedMessage{
		ID:             uuid.New(),
		WorkflowID:     req.Workflow.ID,
		ExecutionID:    req.Execution.ID,
		StepID:         req.StepID,
		OrganizationID: req.Execution.OrganizationID,
		MessageType:    a.channel,
		Recipient:      recipient,
		Subject:        GetConfigString(req.Config, configSubject),
		Content:        content,
		ScheduledAt:    scheduledAt,
		Status:         domain.MessageStatusPending,
		DeliveryWindow: window,
		Metadata:       a.fallbackMetadata(req, content),
		CreatedAt:      req.Now,
	}

	if err := a.messages.EnqueueMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}

	role := msg.MetaString(domain.MetaChannelRole)
	if role == "" {
		role = "single"
	}
	telemetry.MessagesEnqueued.WithLabelValues(string(msg.MessageType), role).Inc()

	return NewResponse(map[string]any{
		"message_id":   msg.ID.String(),
		"scheduled_at": msg.ScheduledAt.Format(time.RFC3339),
		"recipient":    msg.Recipient,
		"channel":      string(msg.MessageType),
		"deferred":     msg.ScheduledAt.After(req.Now),
		"fallback":     msg.WantsFallback(),
	}), nil
}

// fallbackMetadata заполняет metadata для multi-channel fallback.
// Fallback настраивается только для сообщения основного канала
// и только если известен получатель в резервном канале.
func (a *MessageAction) fallbackMetadata(req *Request, content string) map[string]any {
	meta := map[string]any{}

	mc := req.Workflow.MultiChannel
	if !mc.HasFallback() || mc.PrimaryChannel != a.channel {
		return meta
	}

	meta[domain.MetaChannelRole] = domain.ChannelRolePrimary

	fallbackTo := GetConfigString(req.Config, configFallbackTo)
	if fallbackTo == "" {
		fallbackTo = contactFor(req.Data, mc.FallbackChannel)
	}
	if isUnresolved(fallbackTo) {
		return meta
	}

	fallbackContent := GetConfigString(req.Config, configFallbackMessage)
	if fallbackContent == "" {
		fallbackContent = content
	}

	meta[domain.MetaFallbackChannel] = string(mc.FallbackChannel)
	meta[domain.MetaFallbackRecipient] = fallbackTo
	meta[domain.MetaFallbackContent] = fallbackContent
	meta[domain.MetaFallbackDelayMin] = mc.DelayBetweenChannels
	return meta
}

// contactFor достаёт телефон или email клиента из контекста.
func contactFor(data engine.Context, channel domain.MessageType) string {
	path := "client.phone"
	if channel == domain.MessageTypeEmail {
		path = "client.email"
	}
	v, ok := engine.Lookup(data, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
