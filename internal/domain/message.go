package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType — канал доставки.
type MessageType string

const (
	MessageTypeSMS   MessageType = "sms"
	MessageTypeEmail MessageType = "email"
)

// IsValid возвращает true для известных каналов.
func (t MessageType) IsValid() bool {
	return t == MessageTypeSMS || t == MessageTypeEmail
}

// Ключи metadata, которые использует движок.
const (
	// MetaChannelRole — "primary" или "fallback".
	MetaChannelRole = "channel_role"

	// MetaFallbackChannel — резервный канал для основного сообщения.
	MetaFallbackChannel = "fallback_channel"

	// MetaFallbackRecipient — получатель в резервном канале.
	MetaFallbackRecipient = "fallback_recipient"

	// MetaFallbackContent — текст для резервного канала.
	MetaFallbackContent = "fallback_content"

	// MetaFallbackDelayMin — задержка перед fallback, в минутах.
	MetaFallbackDelayMin = "fallback_delay_minutes"

	// MetaPrimaryMessageID — ссылка fallback-сообщения на основное.
	MetaPrimaryMessageID = "primary_message_id"
)

// Роли сообщения в multi-channel сценарии.
const (
	ChannelRolePrimary  = "primary"
	ChannelRoleFallback = "fallback"
)

// QueuedMessage — сообщение в очереди на отправку.
//
// Создаётся send_sms/send_email шагами со scheduled_at, вычисленным
// по окну доставки. Consumer забирает строки, у которых пришло время.
type QueuedMessage struct {
	ID             uuid.UUID `json:"id"`
	WorkflowID     uuid.UUID `json:"workflow_id"`
	ExecutionID    uuid.UUID `json:"execution_id"`
	StepID         string    `json:"step_id"`
	OrganizationID uuid.UUID `json:"organization_id"`

	// MessageType — sms или email.
	MessageType MessageType `json:"message_type"`

	// Recipient — телефон или email.
	Recipient string `json:"recipient"`

	// Subject — тема письма (только email).
	Subject string `json:"subject,omitempty"`

	// Content — уже интерполированный текст.
	Content string `json:"content"`

	// ScheduledAt — не раньше какого момента отправлять (UTC).
	ScheduledAt time.Time `json:"scheduled_at"`

	// Status — текущий статус.
	Status MessageStatus `json:"status"`

	// DeliveryWindow — снимок окна, по которому вычислено ScheduledAt.
	DeliveryWindow DeliveryWindow `json:"delivery_window"`

	// Metadata — произвольные данные для провайдера и fallback-проверки.
	Metadata map[string]any `json:"metadata,omitempty"`

	// ErrorMessage — причина failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// ProviderMessageID — идентификатор у провайдера.
	ProviderMessageID string `json:"provider_message_id,omitempty"`

	// SentAt — время успешной отправки.
	SentAt *time.Time `json:"sent_at,omitempty"`

	// FallbackQueuedAt — когда для этого сообщения поставлен fallback.
	FallbackQueuedAt *time.Time `json:"fallback_queued_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsDue проверяет, пора ли отправлять.
func (m *QueuedMessage) IsDue(now time.Time) bool {
	return m.Status == MessageStatusPending && !m.ScheduledAt.After(now)
}

// MetaString извлекает строку из metadata.
func (m *QueuedMessage) MetaString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	if s, ok := m.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// FallbackDelay возвращает задержку fallback из metadata.
func (m *QueuedMessage) FallbackDelay() time.Duration {
	if m.Metadata == nil {
		return 0
	}
	var minutes float64
	switch v := m.Metadata[MetaFallbackDelayMin].(type) {
	case int:
		minutes = float64(v)
	case int64:
		minutes = float64(v)
	case float64:
		minutes = v
	}
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes * float64(time.Minute))
}

// WantsFallback возвращает true для основных сообщений с настроенным fallback.
func (m *QueuedMessage) WantsFallback() bool {
	return m.MetaString(MetaChannelRole) == ChannelRolePrimary &&
		m.MetaString(MetaFallbackChannel) != "" &&
		m.MetaString(MetaFallbackRecipient) != ""
}
