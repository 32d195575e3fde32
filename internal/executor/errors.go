package executor

import (
	"errors"
	"fmt"
)

// Ошибки executor'а.
var (
	// ErrExecutionNotFound — execution log не найден.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNotPending — log уже взят другим вызовом или завершён.
	ErrNotPending = errors.New("execution is not pending")

	// ErrWorkflowNotFound — workflow запуска удалён.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidCursor — сохранённая позиция не соответствует определению workflow.
	ErrInvalidCursor = errors.New("cursor does not match workflow definition")

	// ErrStepPanic — действие завершилось паникой.
	ErrStepPanic = errors.New("step panicked")
)

// StepExecutionError — ошибка выполнения шага.
type StepExecutionError struct {
	StepID  string
	Subtype string
	Err     error
}

// Error реализует интерфейс error.
func (e *StepExecutionError) Error() string {
	if e.Subtype != "" {
		return fmt.Sprintf("step %s (%s): %v", e.StepID, e.Subtype, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
