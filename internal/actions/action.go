package actions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
)

// Ошибки действий.
var (
	// ErrActionNotFound — подтип не найден в реестре.
	ErrActionNotFound = errors.New("action type not found")

	// ErrInvalidConfig — невалидная конфигурация действия.
	ErrInvalidConfig = errors.New("invalid action config")

	// ErrUnresolvedRecipient — получатель остался неразрешённым шаблоном или пуст.
	ErrUnresolvedRecipient = errors.New("recipient is empty or unresolved")

	// ErrActionCancelled — выполнение действия отменено.
	ErrActionCancelled = errors.New("action execution cancelled")
)

// Action — вариант действия (send_sms, create_task, wait, ...).
//
// Каждый подтип шага реализует этот интерфейс и регистрируется в Registry.
type Action interface {
	// Type возвращает подтип шага.
	Type() string

	// Validate проверяет конфигурацию при сохранении workflow.
	// Конфигурация ещё не интерполирована.
	Validate(config map[string]any) error

	// Execute выполняет действие.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения действия.
type Request struct {
	// StepID — идентификатор шага.
	StepID string

	// Config — конфигурация шага (уже интерполированная).
	Config map[string]any

	// Workflow — workflow, которому принадлежит шаг.
	Workflow *domain.Workflow

	// Execution — текущий запуск.
	Execution *domain.ExecutionLog

	// Data — контекст интерполяции (trigger_data, client, job, steps, ...).
	Data engine.Context

	// Now — текущее время запуска.
	Now time.Time
}

// Response — результат выполнения действия.
type Response struct {
	// Outputs — выходные данные, доступны дальше как {{steps.<id>.<field>}}.
	Outputs map[string]any

	// ResumeAt — если задано, run приостанавливается до этого момента.
	ResumeAt *time.Time
}

// NewResponse создаёт новый Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{Outputs: outputs}
}

// OrganizationID возвращает организацию запуска.
func (r *Request) OrganizationID() string {
	if r.Execution != nil {
		return r.Execution.OrganizationID.String()
	}
	if r.Workflow != nil {
		return r.Workflow.OrganizationID.String()
	}
	return ""
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// isUnresolved возвращает true для пустых строк и неразрешённых шаблонов.
func isUnresolved(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.Contains(s, "{{")
}
