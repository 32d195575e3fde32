package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/gateway"
	"github.com/shaiso/Fieldflow/internal/telemetry"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

// Default configuration values.
const (
	defaultBatchSize    = 100
	defaultStepTimeout  = 30 * time.Second
	defaultPendingGrace = 30 * time.Second
)

// Store — то, что executor'у нужно от хранилища.
type Store interface {
	gateway.WorkflowStore
	gateway.ExecutionStore
}

// Config — конфигурация Executor.
type Config struct {
	Store   Store
	Actions *actions.Registry
	Catalog *trigger.Catalog

	// BatchSize — сколько logs брать за один PollPending/ResumeDue (default: 100).
	BatchSize int

	// StepTimeout — ограничение времени одного action-шага (default: 30s).
	StepTimeout time.Duration

	// PendingGrace — PollPending не трогает logs моложе этого возраста,
	// оставляя их обработчику executions.pending (default: 30s).
	PendingGrace time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Executor выполняет запуски workflows.
type Executor struct {
	store        Store
	actions      *actions.Registry
	catalog      *trigger.Catalog
	batchSize    int
	stepTimeout  time.Duration
	pendingGrace time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	pendingGrace := cfg.PendingGrace
	if pendingGrace < 0 {
		pendingGrace = 0
	} else if pendingGrace == 0 {
		pendingGrace = defaultPendingGrace
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = trigger.DefaultCatalog()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		store:        cfg.Store,
		actions:      cfg.Actions,
		catalog:      catalog,
		batchSize:    batchSize,
		stepTimeout:  stepTimeout,
		pendingGrace: pendingGrace,
		logger:       logger.With("component", "executor"),
		tracer:       telemetry.Tracer(cfg.Tracer),
		now:          now,
	}
}

// Run выполняет pending execution log.
//
// Возвращает ErrNotPending, если log уже взят другим вызовом.
// Ошибки шагов не возвращаются: они записываются в log.
// Паника внутри запуска переводит log в failed.
func (e *Executor) Run(ctx context.Context, executionID uuid.UUID) (*domain.ExecutionLog, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}

	if exec.Status != domain.ExecutionStatusPending {
		return exec, ErrNotPending
	}

	now := e.now().UTC()
	claimed, err := e.store.ClaimExecution(ctx, exec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim execution: %w", err)
	}
	if !claimed {
		return exec, ErrNotPending
	}
	exec.MarkProcessing(now)

	return e.execute(ctx, exec, nil)
}

// ResumeDue продолжает приостановленные logs с resume_at ≤ now.
// Возвращает число продолженных запусков.
func (e *Executor) ResumeDue(ctx context.Context, now time.Time) (int, error) {
	logs, err := e.store.ListResumable(ctx, now.UTC(), e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list resumable executions: %w", err)
	}

	resumed := 0
	for i := range logs {
		exec := &logs[i]
		if exec.ResumeAt == nil {
			continue
		}

		claimed, err := e.store.ClaimResume(ctx, exec.ID, *exec.ResumeAt)
		if err != nil {
			e.logger.Error("failed to claim suspended execution",
				"execution_id", exec.ID,
				"error", err,
			)
			continue
		}
		if !claimed {
			continue
		}

		cursor := exec.Cursor
		exec.ResumeAt = nil
		exec.Cursor = nil

		if _, err := e.execute(ctx, exec, cursor); err != nil {
			e.logger.Error("failed to resume execution",
				"execution_id", exec.ID,
				"error", err,
			)
			continue
		}
		resumed++
	}

	return resumed, nil
}

// PollPending запускает pending logs, оставшиеся без обработчика
// (например, если публикация в executions.pending не удалась).
// Возвращает число выполненных запусков.
func (e *Executor) PollPending(ctx context.Context, now time.Time) (int, error) {
	before := now.UTC().Add(-e.pendingGrace)

	logs, err := e.store.ListPendingExecutions(ctx, before, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending executions: %w", err)
	}

	if len(logs) > 0 {
		e.logger.Debug("poll found pending executions", "count", len(logs))
	}

	ran := 0
	for i := range logs {
		if _, err := e.Run(ctx, logs[i].ID); err != nil {
			if errors.Is(err, ErrNotPending) {
				continue
			}
			e.logger.Error("failed to run execution from poll",
				"execution_id", logs[i].ID,
				"error", err,
			)
			continue
		}
		ran++
	}

	return ran, nil
}

// execute проходит по шагам, начиная с позиции resume (nil — с начала).
func (e *Executor) execute(ctx context.Context, exec *domain.ExecutionLog, resume []int) (result *domain.ExecutionLog, err error) {
	logger := e.logger.With(telemetry.ExecutionAttr(exec.ID))

	ctx, span := telemetry.StartSpan(ctx, e.tracer, "executor.run",
		telemetry.AttrExecutionID.String(exec.ID.String()),
		telemetry.AttrWorkflowID.String(exec.WorkflowID.String()),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("execution panicked", "panic", r)
			result, err = e.finish(ctx, logger, exec, walkAborted, fmt.Sprintf("execution panicked: %v", r))
		}
	}()

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return e.finish(ctx, logger, exec, walkAborted,
				fmt.Sprintf("%v: %s", ErrWorkflowNotFound, exec.WorkflowID))
		}
		// log уже в processing: без определения его не продолжить
		return e.finish(ctx, logger, exec, walkAborted, fmt.Sprintf("load workflow: %v", err))
	}
	logger = logger.With(telemetry.WorkflowAttr(wf.ID))

	r := &run{
		executor: e,
		logger:   logger,
		workflow: wf,
		exec:     exec,
		data:     e.buildContext(wf, exec),
	}

	outcome := r.walk(ctx, wf.Steps, nil, resume)

	switch outcome {
	case walkSuspended:
		logger.Info("execution suspended", "resume_at", exec.ResumeAt)
		telemetry.ExecutionsSuspended.Inc()
		return exec, nil
	case walkAborted:
		return e.finish(ctx, logger, exec, walkAborted, r.failure)
	default:
		return e.finish(ctx, logger, exec, walkDone, "")
	}
}

// finish переводит log в финальный статус и обновляет счётчики workflow.
// Счётчики меняются только вызовом, выигравшим переход.
// Запись идёт и после отмены ctx: иначе log навсегда остаётся в processing.
func (e *Executor) finish(ctx context.Context, logger *slog.Logger, exec *domain.ExecutionLog, outcome walkResult, reason string) (*domain.ExecutionLog, error) {
	ctx = context.WithoutCancel(ctx)
	now := e.now().UTC()
	if outcome == walkDone {
		exec.MarkCompleted(now)
	} else {
		exec.MarkFailed(now, reason)
	}

	won, err := e.store.FinishExecution(ctx, exec)
	if err != nil {
		return exec, fmt.Errorf("finish execution: %w", err)
	}
	if !won {
		logger.Warn("execution already finished by another invocation")
		return exec, nil
	}

	success := exec.Status == domain.ExecutionStatusCompleted
	if err := e.store.IncrementCounters(ctx, exec.WorkflowID, success); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		logger.Error("failed to increment workflow counters", "error", err)
	}

	telemetry.ExecutionsFinished.WithLabelValues(string(exec.Status)).Inc()

	if success {
		logger.Info("execution completed",
			"steps", len(exec.ActionsExecuted),
			"duration", exec.Duration(),
		)
	} else {
		logger.Warn("execution failed", "error", exec.ErrorMessage)
	}

	return exec, nil
}

// buildContext собирает контекст интерполяции для запуска.
func (e *Executor) buildContext(wf *domain.Workflow, exec *domain.ExecutionLog) engine.Context {
	data := e.catalog.ContextFor(wf.TriggerType, exec.TriggerData)

	data.Set("workflow", map[string]any{
		"id":           wf.ID.String(),
		"name":         wf.Name,
		"trigger_type": wf.TriggerType,
	})
	data.Set("execution", map[string]any{
		"id":         exec.ID.String(),
		"created_at": exec.CreatedAt.Format(time.RFC3339),
	})

	for stepID, outputs := range exec.StepOutputs() {
		if m, ok := outputs.(map[string]any); ok {
			data.AddStepResult(stepID, m)
		}
	}

	return data
}
