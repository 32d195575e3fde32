package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// Store — то, что диспетчеру нужно от хранилища.
type Store interface {
	ListActiveByTrigger(ctx context.Context, organizationID uuid.UUID, triggerType string) ([]domain.Workflow, error)
	CreateExecution(ctx context.Context, e *domain.ExecutionLog) error
}

// Deduper отмечает ID события как обработанный.
// Seen возвращает true, если событие уже встречалось.
// Forget снимает отметку, если событие обработать не удалось.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Handoff передаёт созданный log executor'у.
type Handoff interface {
	HandoffExecution(ctx context.Context, executionID uuid.UUID) error
}

// Config — конфигурация диспетчера.
type Config struct {
	Store   Store
	Catalog *Catalog

	// Deduper — опционально; без него повторные события не отсекаются.
	Deduper Deduper

	// Handoff — опционально; без него logs подбирает опрос executor'а.
	Handoff Handoff

	Logger *slog.Logger
	Tracer trace.Tracer

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Dispatcher превращает события в ExecutionLog.
type Dispatcher struct {
	store   Store
	catalog *Catalog
	deduper Deduper
	handoff Handoff
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		store:   cfg.Store,
		catalog: catalog,
		deduper: cfg.Deduper,
		handoff: cfg.Handoff,
		logger:  logger.With("component", "dispatcher"),
		tracer:  telemetry.Tracer(cfg.Tracer),
		now:     now,
	}
}

// DispatchResult — итог обработки события.
type DispatchResult struct {
	EventType string `json:"event_type"`

	// Duplicate — событие с этим ID уже обрабатывалось.
	Duplicate bool `json:"duplicate,omitempty"`

	// UnknownTrigger — тип события не зарегистрирован.
	UnknownTrigger bool `json:"unknown_trigger,omitempty"`

	// Candidates — active workflows с подходящим trigger_type.
	Candidates int `json:"candidates"`

	// ExecutionIDs — созданные logs.
	ExecutionIDs []uuid.UUID `json:"execution_ids"`

	// Failed — workflows, для которых log создать не удалось.
	Failed int `json:"failed,omitempty"`
}

// Matched возвращает число созданных запусков.
func (r DispatchResult) Matched() int {
	return len(r.ExecutionIDs)
}

// Dispatch обрабатывает одно событие.
//
// Ошибка возвращается для некорректного события, при недоступности
// хранилища на этапе выборки workflows и когда не удалось создать ни
// одного из подходящих logs (ErrNoExecutionCreated). В последнем случае
// отметка дедупликации снимается, чтобы повторная доставка не считалась
// дубликатом. Частичные сбои логируются и учитываются в Failed.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) (result DispatchResult, err error) {
	result = DispatchResult{EventType: event.EventType, ExecutionIDs: []uuid.UUID{}}

	if event.EventType == "" || event.OrganizationID == uuid.Nil {
		return result, fmt.Errorf("%w: event_type and organization_id are required", ErrInvalidEvent)
	}

	ctx, span := telemetry.StartSpan(ctx, d.tracer, "trigger.dispatch",
		telemetry.AttrTriggerType.String(event.EventType))
	defer span.End()

	logger := d.logger.With("event_type", event.EventType, "organization_id", event.OrganizationID)
	if event.ID != "" {
		logger = logger.With("event_id", event.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", "panic", r)
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()

	kind, kerr := d.catalog.Get(event.EventType)
	if kerr != nil {
		logger.Warn("event with unknown trigger type ignored")
		result.UnknownTrigger = true
		telemetry.EventsReceived.WithLabelValues(event.EventType, "unknown_trigger").Inc()
		return result, nil
	}

	workflows, err := d.store.ListActiveByTrigger(ctx, event.OrganizationID, event.EventType)
	if err != nil {
		return result, fmt.Errorf("list workflows: %w", err)
	}

	// Отмечаем событие только после успешной выборки, чтобы повторная
	// доставка после сбоя хранилища не была принята за дубликат.
	if d.isDuplicate(ctx, logger, event.ID) {
		logger.Info("duplicate event ignored")
		result.Duplicate = true
		telemetry.EventsReceived.WithLabelValues(event.EventType, "duplicate").Inc()
		return result, nil
	}
	result.Candidates = len(workflows)

	data := kind.Context(event.Snapshot)

	for i := range workflows {
		wf := &workflows[i]
		wfLogger := logger.With(telemetry.WorkflowAttr(wf.ID))

		if !wf.IsActive() {
			continue
		}

		ok, cerr := engine.Check(wf.TriggerConditions, data)
		if cerr != nil {
			wfLogger.Debug("trigger condition not evaluable", "reason", cerr)
		}
		if !ok {
			continue
		}

		id, err := d.createExecution(ctx, wf, event)
		if err != nil {
			wfLogger.Error("failed to create execution", "error", err)
			result.Failed++
			continue
		}
		result.ExecutionIDs = append(result.ExecutionIDs, id)
		telemetry.ExecutionsCreated.WithLabelValues(event.EventType).Inc()

		wfLogger.Info("execution created", "execution_id", id)

		d.handoffExecution(ctx, wfLogger, id)
	}

	if result.Failed > 0 && len(result.ExecutionIDs) == 0 {
		d.forget(logger, event.ID)
		telemetry.EventsReceived.WithLabelValues(event.EventType, "failed").Inc()
		return result, fmt.Errorf("%w: %d workflows", ErrNoExecutionCreated, result.Failed)
	}

	outcome := "matched"
	if len(result.ExecutionIDs) == 0 {
		outcome = "no_match"
	}
	telemetry.EventsReceived.WithLabelValues(event.EventType, outcome).Inc()

	return result, nil
}

// isDuplicate проверяет ID события. Ошибка дедупликации не блокирует
// обработку: лучше повторный запуск, чем потерянное событие.
func (d *Dispatcher) isDuplicate(ctx context.Context, logger *slog.Logger, eventID string) bool {
	if d.deduper == nil || eventID == "" {
		return false
	}
	seen, err := d.deduper.Seen(ctx, eventID)
	if err != nil {
		logger.Warn("event dedupe check failed", "error", err)
		return false
	}
	return seen
}

// forget снимает отметку дедупликации. ctx события может быть уже
// отменён, поэтому используется фоновый с таймаутом.
func (d *Dispatcher) forget(logger *slog.Logger, eventID string) {
	if d.deduper == nil || eventID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.deduper.Forget(ctx, eventID); err != nil {
		logger.Warn("event dedupe release failed", "error", err)
	}
}

func (d *Dispatcher) createExecution(ctx context.Context, wf *domain.Workflow, event domain.Event) (uuid.UUID, error) {
	snapshot := event.Snapshot
	if snapshot == nil {
		snapshot = make(map[string]any)
	}

	exec := &domain.ExecutionLog{
		ID:              uuid.New(),
		WorkflowID:      wf.ID,
		OrganizationID:  event.OrganizationID,
		TriggerData:     snapshot,
		Status:          domain.ExecutionStatusPending,
		ActionsExecuted: []domain.ActionRecord{},
		CreatedAt:       d.now().UTC(),
	}

	if err := d.store.CreateExecution(ctx, exec); err != nil {
		return uuid.Nil, err
	}
	return exec.ID, nil
}

func (d *Dispatcher) handoffExecution(ctx context.Context, logger *slog.Logger, id uuid.UUID) {
	if d.handoff == nil {
		return
	}
	if err := d.handoff.HandoffExecution(ctx, id); err != nil {
		logger.Warn("execution handoff failed, left for polling",
			"execution_id", id,
			"error", err,
		)
	}
}
