package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/scheduler"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// walkResult — итог обхода списка шагов.
type walkResult int

const (
	// walkDone — список пройден до конца (или condition перенаправил управление).
	walkDone walkResult = iota

	// walkSuspended — delay-шаг приостановил запуск.
	walkSuspended

	// walkAborted — ошибка шага без continue_on_error.
	walkAborted
)

// Ветки в позиции шага.
const (
	branchTrue  = 0
	branchFalse = 1
)

// run — состояние одного прохода по шагам.
type run struct {
	executor *Executor
	logger   *slog.Logger
	workflow *domain.Workflow
	exec     *domain.ExecutionLog
	data     engine.Context

	// failure — причина прерывания (для error_message).
	failure string
}

// walk обходит список шагов.
//
// prefix — позиция списка в дереве, resume — оставшаяся часть сохранённой
// позиции delay-шага: [index, ветка, index, ..., index]. Последний index
// указывает на уже выполненный delay, обход продолжается после него.
func (r *run) walk(ctx context.Context, steps []domain.Step, prefix []int, resume []int) walkResult {
	sorted := domain.SortedSteps(steps)
	start := 0

	if len(resume) > 0 {
		idx := resume[0]
		if idx < 0 || idx >= len(sorted) {
			return r.abort(fmt.Errorf("%w: index %d out of range", ErrInvalidCursor, idx))
		}

		if len(resume) == 1 {
			if sorted[idx].Kind != domain.StepKindDelay {
				return r.abort(fmt.Errorf("%w: step %s is not a delay", ErrInvalidCursor, sorted[idx].ID))
			}
			start = idx + 1
		} else {
			step := &sorted[idx]
			if !step.IsBranching() || len(resume) < 3 {
				return r.abort(fmt.Errorf("%w: step %s has no branches", ErrInvalidCursor, step.ID))
			}

			branch := resume[1]
			children, ok := successors(step, branch)
			if !ok {
				return r.abort(fmt.Errorf("%w: invalid branch %d", ErrInvalidCursor, branch))
			}

			path := appendPath(prefix, idx, branch)
			if res := r.walk(ctx, children, path, resume[2:]); res != walkDone {
				return res
			}
			if step.Kind == domain.StepKindCondition {
				return walkDone
			}
			start = idx + 1
		}
	}

	for i := start; i < len(sorted); i++ {
		if err := ctx.Err(); err != nil {
			return r.abort(fmt.Errorf("execution cancelled: %w", err))
		}

		step := &sorted[i]

		if step.IsBranching() {
			branch := r.evaluate(step)
			children, _ := successors(step, branch)

			if res := r.walk(ctx, children, appendPath(prefix, i, branch), nil); res != walkDone {
				return res
			}
			if step.Kind == domain.StepKindCondition {
				return walkDone
			}
			continue
		}

		if res := r.executeStep(ctx, step, appendPath(prefix, i)); res != walkDone {
			return res
		}
	}

	return walkDone
}

// evaluate вычисляет условия condition/branch шага и записывает исход.
func (r *run) evaluate(step *domain.Step) int {
	ok, cerr := engine.Check(step.Conditions, r.data)
	if cerr != nil {
		r.logger.Debug("step condition not evaluable",
			"step_id", step.ID,
			"reason", cerr,
		)
	}

	branch := branchFalse
	if ok {
		branch = branchTrue
	}

	outputs := map[string]any{"result": ok}
	r.record(step, "", domain.ActionStatusSucceeded, outputs, nil)
	r.data.AddStepResult(step.ID, outputs)
	telemetry.StepsExecuted.WithLabelValues(string(step.Kind), "", string(domain.ActionStatusSucceeded)).Inc()

	return branch
}

// executeStep выполняет action или delay шаг.
func (r *run) executeStep(ctx context.Context, step *domain.Step, path []int) walkResult {
	subtype := actions.SubtypeFor(step)
	logger := r.logger.With(telemetry.StepAttr(step.ID), "subtype", subtype)

	ctx, span := telemetry.StartSpan(ctx, r.executor.tracer, "executor.step",
		telemetry.AttrStepID.String(step.ID),
		telemetry.AttrSubtype.String(subtype),
	)
	defer span.End()

	start := time.Now()
	resp, err := r.invoke(ctx, step, subtype)
	telemetry.StepDuration.WithLabelValues(subtype).Observe(time.Since(start).Seconds())

	if err != nil {
		stepErr := &StepExecutionError{StepID: step.ID, Subtype: subtype, Err: err}
		span.RecordError(stepErr)
		r.record(step, subtype, domain.ActionStatusFailed, nil, stepErr)
		telemetry.StepsExecuted.WithLabelValues(string(step.Kind), subtype, string(domain.ActionStatusFailed)).Inc()

		// выключаем только при ошибке конфигурации окна
		if errors.Is(err, scheduler.ErrScheduling) {
			r.deactivateWorkflow(ctx, logger, err)
		}

		if !step.ContinueOnError {
			logger.Warn("step failed, aborting execution", "error", err)
			r.failure = stepErr.Error()
			return walkAborted
		}

		logger.Warn("step failed, continuing", "error", err)
		r.saveProgress(ctx)
		return walkDone
	}

	r.record(step, subtype, domain.ActionStatusSucceeded, resp.Outputs, nil)
	r.data.AddStepResult(step.ID, resp.Outputs)
	telemetry.StepsExecuted.WithLabelValues(string(step.Kind), subtype, string(domain.ActionStatusSucceeded)).Inc()
	logger.Debug("step succeeded")

	if resp.ResumeAt != nil && resp.ResumeAt.After(r.executor.now()) {
		r.exec.Suspend(path, resp.ResumeAt.UTC())
		if err := r.executor.store.SaveProgress(context.WithoutCancel(ctx), r.exec); err != nil {
			logger.Error("failed to persist suspension", "error", err)
			r.failure = fmt.Sprintf("persist suspension: %v", err)
			return walkAborted
		}
		return walkSuspended
	}

	r.saveProgress(ctx)
	return walkDone
}

// invoke вызывает действие с интерполированной конфигурацией.
// Паника действия превращается в ошибку шага.
func (r *run) invoke(ctx context.Context, step *domain.Step, subtype string) (resp *actions.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", ErrStepPanic, rec)
		}
	}()

	if r.executor.actions == nil {
		return nil, fmt.Errorf("%w: %s", actions.ErrActionNotFound, subtype)
	}
	action, err := r.executor.actions.Get(subtype)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.executor.stepTimeout)
	defer cancel()

	resp, err = action.Execute(ctx, &actions.Request{
		StepID:    step.ID,
		Config:    engine.InterpolateConfig(step.Config, r.data),
		Workflow:  r.workflow,
		Execution: r.exec,
		Data:      r.data,
		Now:       r.executor.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = actions.NewResponse(nil)
	}
	return resp, nil
}

// deactivateWorkflow выключает workflow с некорректным окном доставки,
// чтобы следующие события не порождали заведомо неудачные запуски.
func (r *run) deactivateWorkflow(ctx context.Context, logger *slog.Logger, cause error) {
	if err := r.executor.store.SetWorkflowStatus(context.WithoutCancel(ctx), r.workflow.ID, domain.WorkflowStatusInactive); err != nil {
		logger.Error("failed to deactivate workflow", "error", err)
		return
	}
	r.workflow.Status = domain.WorkflowStatusInactive
	telemetry.WorkflowsDeactivated.Inc()
	logger.Warn("workflow deactivated after scheduling error", "error", cause)
}

func (r *run) record(step *domain.Step, subtype string, status domain.ActionStatus, outputs map[string]any, err error) {
	rec := domain.ActionRecord{
		StepID:     step.ID,
		Kind:       step.Kind,
		Subtype:    subtype,
		Status:     status,
		Outputs:    outputs,
		ExecutedAt: r.executor.now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.exec.Record(rec)
}

// saveProgress сохраняет actions_executed. Сбой не прерывает запуск:
// финальный переход запишет историю целиком.
func (r *run) saveProgress(ctx context.Context) {
	if err := r.executor.store.SaveProgress(context.WithoutCancel(ctx), r.exec); err != nil {
		r.logger.Warn("failed to save execution progress", "error", err)
	}
}

func (r *run) abort(err error) walkResult {
	r.logger.Error("execution aborted", "error", err)
	r.failure = err.Error()
	return walkAborted
}

// successors возвращает список-преемник для ветки.
func successors(step *domain.Step, branch int) ([]domain.Step, bool) {
	switch branch {
	case branchTrue:
		return step.OnTrue, true
	case branchFalse:
		return step.OnFalse, true
	default:
		return nil, false
	}
}

func appendPath(prefix []int, elems ...int) []int {
	path := slices.Clone(prefix)
	return append(path, elems...)
}
