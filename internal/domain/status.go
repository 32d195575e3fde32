package domain

// WorkflowStatus — статус workflow.
//
// Только active workflows реагируют на события.
// Перевод в inactive не отменяет уже поставленные в очередь сообщения,
// но consumer не отправляет сообщения неактивных workflows.
type WorkflowStatus string

const (
	// WorkflowStatusActive — workflow включён.
	WorkflowStatusActive WorkflowStatus = "active"

	// WorkflowStatusInactive — workflow выключен.
	WorkflowStatusInactive WorkflowStatus = "inactive"
)

// IsValid возвращает true для известных статусов.
func (s WorkflowStatus) IsValid() bool {
	return s == WorkflowStatusActive || s == WorkflowStatusInactive
}

// ExecutionStatus — статус выполнения workflow (ExecutionLog).
//
// Жизненный цикл:
//
//	pending → processing → completed
//	                     ↘ failed
//
// Переходы монотонны: статус никогда не откатывается назад.
type ExecutionStatus string

const (
	// ExecutionStatusPending — log создан диспетчером, executor ещё не взял его.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusProcessing — шаги выполняются (или run приостановлен на delay).
	ExecutionStatusProcessing ExecutionStatus = "processing"

	// ExecutionStatusCompleted — все шаги пройдены без неисправленных ошибок.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed — run прерван ошибкой шага.
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// rank — порядковый номер статуса для проверки монотонности.
func (s ExecutionStatus) rank() int {
	switch s {
	case ExecutionStatusPending:
		return 0
	case ExecutionStatusProcessing:
		return 1
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo проверяет, допустим ли переход s → next.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() == s.rank()+1
}

// MessageStatus — статус сообщения в очереди.
//
// Жизненный цикл:
//
//	pending → processing → sent
//	                     ↘ failed (→ pending только через ручной reprocess)
type MessageStatus string

const (
	// MessageStatusPending — ждёт scheduled_at.
	MessageStatusPending MessageStatus = "pending"

	// MessageStatusProcessing — захвачено проходом consumer'а.
	MessageStatusProcessing MessageStatus = "processing"

	// MessageStatusSent — провайдер подтвердил отправку.
	MessageStatusSent MessageStatus = "sent"

	// MessageStatusFailed — отправка не удалась, error_message заполнен.
	MessageStatusFailed MessageStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSent || s == MessageStatusFailed
}

// ActionStatus — исход отдельного шага в actions_executed.
type ActionStatus string

const (
	ActionStatusSucceeded ActionStatus = "succeeded"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusSkipped   ActionStatus = "skipped"
)
