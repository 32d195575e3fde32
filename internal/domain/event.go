package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event — изменение бизнес-сущности (job, client, estimate, invoice).
//
// Приходит из механизма change-capture хранилища (через RabbitMQ)
// или через POST /api/v1/events.
type Event struct {
	// ID — идентификатор события для дедупликации (может быть пустым).
	ID string `json:"id,omitempty"`

	// EntityType — "job", "client", "estimate", "invoice", "appointment".
	EntityType string `json:"entity_type"`

	// EventType — совпадает с Workflow.TriggerType.
	EventType string `json:"event_type"`

	// OrganizationID — организация, в которой произошло событие.
	OrganizationID uuid.UUID `json:"organization_id"`

	// Snapshot — состояние сущности после изменения.
	Snapshot map[string]any `json:"snapshot"`

	// OccurredAt — время события.
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}
