package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

// Workflow DTOs

// WorkflowRequest — запрос на создание или замену workflow.
type WorkflowRequest struct {
	OrganizationID    uuid.UUID                  `json:"organization_id" validate:"required"`
	Name              string                     `json:"name" validate:"required,max=200"`
	TriggerType       string                     `json:"trigger_type" validate:"required"`
	TriggerConditions []domain.Condition         `json:"trigger_conditions,omitempty"`
	Steps             []domain.Step              `json:"steps" validate:"required,min=1"`
	Status            domain.WorkflowStatus      `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	DeliveryWindow    domain.DeliveryWindow      `json:"delivery_window"`
	MultiChannel      *domain.MultiChannelConfig `json:"multi_channel_config,omitempty"`
}

// apply переносит поля запроса в workflow.
func (r *WorkflowRequest) apply(w *domain.Workflow) {
	w.Name = r.Name
	w.TriggerType = r.TriggerType
	w.TriggerConditions = r.TriggerConditions
	w.Steps = r.Steps
	w.DeliveryWindow = r.DeliveryWindow
	w.MultiChannel = r.MultiChannel
	if r.Status != "" {
		w.Status = r.Status
	}
}

// SetStatusRequest — запрос на включение/выключение workflow.
type SetStatusRequest struct {
	Status domain.WorkflowStatus `json:"status" validate:"required,oneof=active inactive"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID                uuid.UUID                  `json:"id"`
	OrganizationID    uuid.UUID                  `json:"organization_id"`
	Name              string                     `json:"name"`
	TriggerType       string                     `json:"trigger_type"`
	TriggerConditions []domain.Condition         `json:"trigger_conditions"`
	Steps             []domain.Step              `json:"steps"`
	Status            string                     `json:"status"`
	DeliveryWindow    domain.DeliveryWindow      `json:"delivery_window"`
	MultiChannel      *domain.MultiChannelConfig `json:"multi_channel_config,omitempty"`
	ExecutionCount    int                        `json:"execution_count"`
	SuccessCount      int                        `json:"success_count"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(w domain.Workflow) WorkflowResponse {
	conditions := w.TriggerConditions
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	return WorkflowResponse{
		ID:                w.ID,
		OrganizationID:    w.OrganizationID,
		Name:              w.Name,
		TriggerType:       w.TriggerType,
		TriggerConditions: conditions,
		Steps:             w.Steps,
		Status:            string(w.Status),
		DeliveryWindow:    w.DeliveryWindow,
		MultiChannel:      w.MultiChannel,
		ExecutionCount:    w.ExecutionCount,
		SuccessCount:      w.SuccessCount,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

// Execution DTOs

// ExecutionResponse — ответ с execution log.
type ExecutionResponse struct {
	ID              uuid.UUID             `json:"id"`
	WorkflowID      uuid.UUID             `json:"workflow_id"`
	OrganizationID  uuid.UUID             `json:"organization_id"`
	Status          string                `json:"status"`
	TriggerData     map[string]any        `json:"trigger_data,omitempty"`
	ActionsExecuted []domain.ActionRecord `json:"actions_executed"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	Suspended       bool                  `json:"suspended"`
	ResumeAt        *time.Time            `json:"resume_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// ExecutionFromDomain конвертирует domain.ExecutionLog в ExecutionResponse.
func ExecutionFromDomain(e domain.ExecutionLog) ExecutionResponse {
	records := e.ActionsExecuted
	if records == nil {
		records = []domain.ActionRecord{}
	}
	return ExecutionResponse{
		ID:              e.ID,
		WorkflowID:      e.WorkflowID,
		OrganizationID:  e.OrganizationID,
		Status:          string(e.Status),
		TriggerData:     e.TriggerData,
		ActionsExecuted: records,
		ErrorMessage:    e.ErrorMessage,
		Suspended:       e.IsSuspended(),
		ResumeAt:        e.ResumeAt,
		CreatedAt:       e.CreatedAt,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
	}
}

// Message DTOs

// MessageResponse — ответ с сообщением очереди.
type MessageResponse struct {
	ID                uuid.UUID      `json:"id"`
	WorkflowID        uuid.UUID      `json:"workflow_id"`
	ExecutionID       uuid.UUID      `json:"execution_id"`
	StepID            string         `json:"step_id"`
	MessageType       string         `json:"message_type"`
	Recipient         string         `json:"recipient"`
	Subject           string         `json:"subject,omitempty"`
	Content           string         `json:"content"`
	ScheduledAt       time.Time      `json:"scheduled_at"`
	Status            string         `json:"status"`
	ChannelRole       string         `json:"channel_role,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	FallbackQueuedAt  *time.Time     `json:"fallback_queued_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// MessageFromDomain конвертирует domain.QueuedMessage в MessageResponse.
func MessageFromDomain(m domain.QueuedMessage) MessageResponse {
	return MessageResponse{
		ID:                m.ID,
		WorkflowID:        m.WorkflowID,
		ExecutionID:       m.ExecutionID,
		StepID:            m.StepID,
		MessageType:       string(m.MessageType),
		Recipient:         m.Recipient,
		Subject:           m.Subject,
		Content:           m.Content,
		ScheduledAt:       m.ScheduledAt,
		Status:            string(m.Status),
		ChannelRole:       m.MetaString(domain.MetaChannelRole),
		Metadata:          m.Metadata,
		ErrorMessage:      m.ErrorMessage,
		ProviderMessageID: m.ProviderMessageID,
		SentAt:            m.SentAt,
		FallbackQueuedAt:  m.FallbackQueuedAt,
		CreatedAt:         m.CreatedAt,
	}
}

// ReprocessResponse — результат возврата сообщений в очередь.
type ReprocessResponse struct {
	Requeued int `json:"requeued"`
}

// Event DTOs

// EventRequest — событие изменения сущности.
type EventRequest struct {
	ID             string         `json:"id,omitempty" validate:"omitempty,max=200"`
	EntityType     string         `json:"entity_type,omitempty"`
	EventType      string         `json:"event_type" validate:"required"`
	OrganizationID uuid.UUID      `json:"organization_id" validate:"required"`
	Snapshot       map[string]any `json:"snapshot"`
	OccurredAt     *time.Time     `json:"occurred_at,omitempty"`
}

// toDomain конвертирует запрос в domain.Event.
func (r *EventRequest) toDomain(now time.Time) domain.Event {
	occurred := now
	if r.OccurredAt != nil {
		occurred = *r.OccurredAt
	}
	snapshot := r.Snapshot
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return domain.Event{
		ID:             r.ID,
		EntityType:     r.EntityType,
		EventType:      r.EventType,
		OrganizationID: r.OrganizationID,
		Snapshot:       snapshot,
		OccurredAt:     occurred.UTC(),
	}
}

// EventResponse — итог обработки события.
type EventResponse struct {
	EventType    string      `json:"event_type"`
	Queued       bool        `json:"queued"`
	Duplicate    bool        `json:"duplicate,omitempty"`
	Unknown      bool        `json:"unknown_trigger,omitempty"`
	Candidates   int         `json:"candidates"`
	Matched      int         `json:"matched"`
	Failed       int         `json:"failed,omitempty"`
	ExecutionIDs []uuid.UUID `json:"execution_ids"`
}

// EventFromResult конвертирует trigger.DispatchResult в EventResponse.
func EventFromResult(res trigger.DispatchResult) EventResponse {
	ids := res.ExecutionIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return EventResponse{
		EventType:    res.EventType,
		Duplicate:    res.Duplicate,
		Unknown:      res.UnknownTrigger,
		Candidates:   res.Candidates,
		Matched:      res.Matched(),
		Failed:       res.Failed,
		ExecutionIDs: ids,
	}
}

// Catalog DTOs

// TriggerResponse — тип триггера.
type TriggerResponse struct {
	Type        string `json:"type"`
	EntityType  string `json:"entity_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// TriggerFromKind конвертирует trigger.Kind в TriggerResponse.
func TriggerFromKind(k trigger.Kind) TriggerResponse {
	return TriggerResponse{Type: k.Type, EntityType: k.EntityType, Description: k.Description}
}
