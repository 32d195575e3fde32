package engine

import "errors"

// Ошибки валидации workflow.
var (
	// ErrEmptyName — у workflow нет имени.
	ErrEmptyName = errors.New("workflow has empty name")

	// ErrEmptyTrigger — не указан trigger_type.
	ErrEmptyTrigger = errors.New("workflow has empty trigger type")

	// ErrInvalidStatus — неизвестный статус workflow.
	ErrInvalidStatus = errors.New("invalid workflow status")

	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownStepKind — неизвестный kind шага.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrUnknownSubtype — неизвестный подтип действия.
	ErrUnknownSubtype = errors.New("unknown step subtype")

	// ErrInvalidStepConfig — конфигурация шага не прошла проверку.
	ErrInvalidStepConfig = errors.New("invalid step config")

	// ErrMissingConditions — condition/branch шаг без условий.
	ErrMissingConditions = errors.New("branching step has no conditions")

	// ErrUnexpectedSuccessors — on_true/on_false у шага, который не ветвится.
	ErrUnexpectedSuccessors = errors.New("non-branching step has successors")

	// ErrTooDeep — слишком глубокая вложенность шагов.
	ErrTooDeep = errors.New("steps nested too deeply")

	// ErrInvalidChannel — неизвестный канал в multi_channel_config.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvalidWindow — некорректное окно доставки.
	ErrInvalidWindow = errors.New("invalid delivery window")
)

// Ошибки условий.
var (
	// ErrInvalidOperator — неизвестный оператор условия.
	ErrInvalidOperator = errors.New("invalid condition operator")

	// ErrEmptyField — у условия пустое поле.
	ErrEmptyField = errors.New("condition has empty field")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
