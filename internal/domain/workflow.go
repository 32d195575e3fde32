package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — определение автоматизации.
//
// Workflow связывает один тип триггера с упорядоченной последовательностью шагов.
// Определение создаётся и меняется через builder (внешний компонент);
// движок меняет только счётчики ExecutionCount/SuccessCount.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// OrganizationID — организация-владелец.
	OrganizationID uuid.UUID `json:"organization_id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// TriggerType — тип события, запускающего workflow (например, "job_status_changed").
	TriggerType string `json:"trigger_type"`

	// TriggerConditions — условия, которые должны выполняться для снимка события.
	// Объединяются через AND.
	TriggerConditions []Condition `json:"trigger_conditions,omitempty"`

	// Steps — шаги верхнего уровня (порядок по SequenceOrder).
	Steps []Step `json:"steps"`

	// Status — active/inactive.
	Status WorkflowStatus `json:"status"`

	// DeliveryWindow — окно доставки сообщений этого workflow.
	DeliveryWindow DeliveryWindow `json:"delivery_window"`

	// MultiChannel — настройка резервного канала.
	MultiChannel *MultiChannelConfig `json:"multi_channel_config,omitempty"`

	// ExecutionCount — сколько раз workflow доходил до финального статуса.
	ExecutionCount int `json:"execution_count"`

	// SuccessCount — сколько запусков завершились completed.
	SuccessCount int `json:"success_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive возвращает true, если workflow реагирует на события.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// Condition — предикат над снимком события.
//
// Field — путь через точку ("status", "client.tags").
// Value — операнд; для in_list/not_in_list — список.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// MultiChannelConfig — основной и резервный каналы.
//
// Если основное сообщение не доставлено в течение DelayBetweenChannels,
// fallback-проверка ставит в очередь сообщение по резервному каналу.
type MultiChannelConfig struct {
	// PrimaryChannel — "sms" или "email".
	PrimaryChannel MessageType `json:"primary_channel"`

	// FallbackChannel — "sms", "email" или пусто (без fallback).
	FallbackChannel MessageType `json:"fallback_channel,omitempty"`

	// DelayBetweenChannels — задержка в минутах.
	DelayBetweenChannels int `json:"delay_between_channels"`
}

// HasFallback возвращает true, если настроен резервный канал.
func (c *MultiChannelConfig) HasFallback() bool {
	return c != nil && c.FallbackChannel != "" && c.FallbackChannel != c.PrimaryChannel
}

// FallbackDelay возвращает задержку между каналами.
func (c *MultiChannelConfig) FallbackDelay() time.Duration {
	if c == nil || c.DelayBetweenChannels <= 0 {
		return 0
	}
	return time.Duration(c.DelayBetweenChannels) * time.Minute
}
