package trigger

import "errors"

var (
	// ErrUnknownTrigger — тип триггера не зарегистрирован в каталоге.
	ErrUnknownTrigger = errors.New("unknown trigger type")

	// ErrInvalidEvent — событие без event_type или organization_id.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNoExecutionCreated — событие подошло workflows, но ни один log
	// не записан.
	ErrNoExecutionCreated = errors.New("no execution created")

	// ErrStepFieldInTrigger — условие триггера ссылается на outputs шагов,
	// которых в момент события ещё нет.
	ErrStepFieldInTrigger = errors.New("trigger condition references step outputs")
)
