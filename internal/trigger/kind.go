package trigger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
)

// Типы триггеров.
const (
	JobCreated          = "job_created"
	JobStatusChanged    = "job_status_changed"
	JobCompleted        = "job_completed"
	JobScheduled        = "job_scheduled"
	ClientCreated       = "client_created"
	EstimateSent        = "estimate_sent"
	EstimateAccepted    = "estimate_accepted"
	EstimateDeclined    = "estimate_declined"
	InvoiceCreated      = "invoice_created"
	InvoiceSent         = "invoice_sent"
	InvoicePaid         = "invoice_paid"
	InvoiceOverdue      = "invoice_overdue"
	AppointmentReminder = "appointment_reminder"
)

// Типы сущностей.
const (
	EntityJob      = "job"
	EntityClient   = "client"
	EntityEstimate = "estimate"
	EntityInvoice  = "invoice"
)

// Kind — вариант триггера.
//
// EntityType определяет, под каким ключом снимок события попадает
// в контекст интерполяции ({{job.title}}, {{invoice.total}}).
type Kind struct {
	Type        string
	EntityType  string
	Description string
}

// Validate проверяет условия триггера.
func (k Kind) Validate(conditions []domain.Condition) error {
	if err := engine.ValidateConditions("", "trigger_conditions", conditions); err != nil {
		return err
	}
	for i, cond := range conditions {
		if cond.Field == "steps" || strings.HasPrefix(cond.Field, "steps.") {
			return fmt.Errorf("%w: condition %d (%s)", ErrStepFieldInTrigger, i, cond.Field)
		}
	}
	return nil
}

// Context строит контекст интерполяции из снимка сущности.
//
// Поля снимка доступны и на верхнем уровне ({{status}}), и под ключом
// сущности ({{job.status}}). Вложенные client и company поднимаются
// на верхний уровень. Зарезервированные ключи перекрывают поля снимка.
func (k Kind) Context(snapshot map[string]any) engine.Context {
	if snapshot == nil {
		snapshot = make(map[string]any)
	}

	ctx := make(engine.Context, len(snapshot)+8)
	for key, value := range snapshot {
		ctx[key] = value
	}

	ctx.Set("trigger_data", snapshot)
	ctx.Set("steps", make(map[string]any))
	ctx.Set("event", map[string]any{
		"type":        k.Type,
		"entity_type": k.EntityType,
	})

	if k.EntityType != "" {
		ctx.Set(k.EntityType, snapshot)
	}

	if k.EntityType != EntityClient {
		if client, ok := snapshot["client"].(map[string]any); ok {
			ctx.Set("client", client)
		}
	}
	if company, ok := snapshot["company"].(map[string]any); ok {
		ctx.Set("company", company)
	}

	return ctx
}

// Catalog — реестр типов триггеров.
type Catalog struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{
		kinds: make(map[string]Kind),
	}
}

// DefaultCatalog возвращает каталог со всеми встроенными триггерами.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, k := range []Kind{
		{JobCreated, EntityJob, "Job created"},
		{JobStatusChanged, EntityJob, "Job status changed"},
		{JobCompleted, EntityJob, "Job completed"},
		{JobScheduled, EntityJob, "Job scheduled"},
		{ClientCreated, EntityClient, "Client created"},
		{EstimateSent, EntityEstimate, "Estimate sent"},
		{EstimateAccepted, EntityEstimate, "Estimate accepted"},
		{EstimateDeclined, EntityEstimate, "Estimate declined"},
		{InvoiceCreated, EntityInvoice, "Invoice created"},
		{InvoiceSent, EntityInvoice, "Invoice sent"},
		{InvoicePaid, EntityInvoice, "Invoice paid"},
		{InvoiceOverdue, EntityInvoice, "Invoice overdue"},
		{AppointmentReminder, EntityJob, "Upcoming appointment"},
	} {
		c.Register(k)
	}
	return c
}

// Register регистрирует тип триггера.
// Если тип уже зарегистрирован, он будет перезаписан.
func (c *Catalog) Register(k Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[k.Type] = k
}

// Get возвращает тип триггера.
func (c *Catalog) Get(triggerType string) (Kind, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, ok := c.kinds[triggerType]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, triggerType)
	}
	return k, nil
}

// Has проверяет, зарегистрирован ли тип.
func (c *Catalog) Has(triggerType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.kinds[triggerType]
	return ok
}

// Types возвращает отсортированный список типов.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]string, 0, len(c.kinds))
	for t := range c.kinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Kinds возвращает все типы, отсортированные по Type.
func (c *Catalog) Kinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kinds := make([]Kind, 0, len(c.kinds))
	for _, k := range c.kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Type < kinds[j].Type })
	return kinds
}

// ValidateTrigger реализует engine.TriggerValidator.
func (c *Catalog) ValidateTrigger(triggerType string, conditions []domain.Condition) error {
	k, err := c.Get(triggerType)
	if err != nil {
		return err
	}
	return k.Validate(conditions)
}

// ContextFor строит контекст для снимка. Для неизвестного типа
// используется вариант без сущности.
func (c *Catalog) ContextFor(triggerType string, snapshot map[string]any) engine.Context {
	k, err := c.Get(triggerType)
	if err != nil {
		k = Kind{Type: triggerType}
	}
	return k.Context(snapshot)
}
