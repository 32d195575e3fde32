package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionLog — запись об одном запуске workflow.
//
// Создаётся диспетчером триггеров в статусе pending,
// затем executor переводит её в processing и далее в completed/failed.
// Движок никогда не удаляет ExecutionLog.
type ExecutionLog struct {
	// ID — уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// WorkflowID — запущенный workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// OrganizationID — организация события.
	OrganizationID uuid.UUID `json:"organization_id"`

	// TriggerData — снимок сущности из события.
	TriggerData map[string]any `json:"trigger_data,omitempty"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// ActionsExecuted — история выполненных шагов.
	ActionsExecuted []ActionRecord `json:"actions_executed"`

	// ErrorMessage — причина failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// Cursor — позиция приостановленного delay-шага в дереве шагов.
	// Формат: [index, ветка, index, ветка, ..., index], ветка: 0 — OnTrue, 1 — OnFalse.
	Cursor []int `json:"cursor,omitempty"`

	// ResumeAt — когда продолжить приостановленный run.
	ResumeAt *time.Time `json:"resume_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ActionRecord — исход одного шага.
type ActionRecord struct {
	StepID     string         `json:"step_id"`
	Kind       StepKind       `json:"kind"`
	Subtype    string         `json:"subtype,omitempty"`
	Status     ActionStatus   `json:"status"`
	Error      string         `json:"error,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// IsSuspended возвращает true, если run ждёт resume_at.
func (e *ExecutionLog) IsSuspended() bool {
	return e.Status == ExecutionStatusProcessing && e.ResumeAt != nil
}

// Duration возвращает длительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (e *ExecutionLog) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// Record добавляет исход шага.
func (e *ExecutionLog) Record(rec ActionRecord) {
	e.ActionsExecuted = append(e.ActionsExecuted, rec)
}

// HasFailures возвращает true, если хотя бы один шаг завершился ошибкой.
func (e *ExecutionLog) HasFailures() bool {
	for _, rec := range e.ActionsExecuted {
		if rec.Status == ActionStatusFailed {
			return true
		}
	}
	return false
}

// StepOutputs собирает outputs успешных шагов (stepID → outputs).
func (e *ExecutionLog) StepOutputs() map[string]any {
	outputs := make(map[string]any)
	for _, rec := range e.ActionsExecuted {
		if rec.Status == ActionStatusSucceeded && rec.Outputs != nil {
			outputs[rec.StepID] = rec.Outputs
		}
	}
	return outputs
}

// MarkProcessing переводит log в processing.
func (e *ExecutionLog) MarkProcessing(now time.Time) {
	e.Status = ExecutionStatusProcessing
	e.StartedAt = &now
}

// Suspend сохраняет позицию delay-шага.
func (e *ExecutionLog) Suspend(cursor []int, resumeAt time.Time) {
	e.Cursor = cursor
	e.ResumeAt = &resumeAt
}

// MarkCompleted переводит log в completed.
func (e *ExecutionLog) MarkCompleted(now time.Time) {
	e.Status = ExecutionStatusCompleted
	e.CompletedAt = &now
	e.Cursor = nil
	e.ResumeAt = nil
}

// MarkFailed переводит log в failed с ошибкой.
func (e *ExecutionLog) MarkFailed(now time.Time, errMsg string) {
	e.Status = ExecutionStatusFailed
	e.CompletedAt = &now
	e.ErrorMessage = errMsg
	e.Cursor = nil
	e.ResumeAt = nil
}
