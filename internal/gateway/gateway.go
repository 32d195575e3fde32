// Package gateway описывает доступ движка к постоянному хранилищу.
//
// Движок не знает, где лежат данные: dispatcher, executor и consumer
// получают эти интерфейсы при создании. Реализации:
//   - repo     — PostgreSQL (pgx)
//   - memstore — в памяти, для тестов и локального запуска
//
// Все переходы статусов, за которые могут конкурировать параллельные
// вызовы, выполняются условными обновлениями (Claim*/Finish*):
// метод возвращает false, если другой вызов уже изменил запись.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
)

// Ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)

// WorkflowFilter — параметры выборки workflows.
type WorkflowFilter struct {
	OrganizationID *uuid.UUID
	TriggerType    string
	Status         domain.WorkflowStatus
	Limit          int
	Offset         int
}

// ExecutionFilter — параметры выборки execution logs.
type ExecutionFilter struct {
	WorkflowID *uuid.UUID
	Status     domain.ExecutionStatus
	Limit      int
	Offset     int
}

// MessageFilter — параметры выборки сообщений.
type MessageFilter struct {
	WorkflowID  *uuid.UUID
	ExecutionID *uuid.UUID
	Status      domain.MessageStatus
	Limit       int
	Offset      int
}

// WorkflowStore — workflows глазами движка.
type WorkflowStore interface {
	// GetWorkflow возвращает workflow по ID (ErrNotFound, если нет).
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// ListActiveByTrigger возвращает active workflows организации с данным trigger_type.
	ListActiveByTrigger(ctx context.Context, organizationID uuid.UUID, triggerType string) ([]domain.Workflow, error)

	// IncrementCounters увеличивает execution_count и, если success, success_count.
	IncrementCounters(ctx context.Context, id uuid.UUID, success bool) error

	// SetWorkflowStatus меняет статус workflow.
	SetWorkflowStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error
}

// WorkflowRepository — WorkflowStore плюс операции администрирования (API).
type WorkflowRepository interface {
	WorkflowStore

	CreateWorkflow(ctx context.Context, w *domain.Workflow) error
	UpdateWorkflow(ctx context.Context, w *domain.Workflow) error
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]domain.Workflow, error)
}

// ExecutionStore — execution logs.
type ExecutionStore interface {
	// CreateExecution сохраняет новый log (status=pending).
	CreateExecution(ctx context.Context, e *domain.ExecutionLog) error

	// GetExecution возвращает log по ID.
	GetExecution(ctx context.Context, id uuid.UUID) (*domain.ExecutionLog, error)

	// ClaimExecution переводит pending → processing.
	// false — log уже взят другим вызовом.
	ClaimExecution(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// ClaimResume забирает приостановленный log: условие — processing и
	// resume_at равен ожидаемому значению; resume_at сбрасывается.
	ClaimResume(ctx context.Context, id uuid.UUID, resumeAt time.Time) (bool, error)

	// SaveProgress сохраняет actions_executed, cursor и resume_at
	// для log в статусе processing.
	SaveProgress(ctx context.Context, e *domain.ExecutionLog) error

	// FinishExecution переводит processing → completed | failed.
	// false — log уже в финальном статусе.
	FinishExecution(ctx context.Context, e *domain.ExecutionLog) (bool, error)

	// ListPendingExecutions возвращает pending logs, созданные не позже before.
	ListPendingExecutions(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionLog, error)

	// ListResumable возвращает приостановленные logs с resume_at ≤ now.
	ListResumable(ctx context.Context, now time.Time, limit int) ([]domain.ExecutionLog, error)

	// ListExecutions возвращает logs по фильтру (новые первыми).
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]domain.ExecutionLog, error)
}

// MessageStore — очередь сообщений.
type MessageStore interface {
	// EnqueueMessage добавляет сообщение (status=pending).
	EnqueueMessage(ctx context.Context, msg *domain.QueuedMessage) error

	// GetMessage возвращает сообщение по ID.
	GetMessage(ctx context.Context, id uuid.UUID) (*domain.QueuedMessage, error)

	// ListDueMessages возвращает pending сообщения со scheduled_at ≤ now
	// по возрастанию scheduled_at.
	ListDueMessages(ctx context.Context, now time.Time, limit int) ([]domain.QueuedMessage, error)

	// ClaimMessage переводит pending → processing.
	// false — сообщение уже взято другим проходом.
	ClaimMessage(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkSent переводит processing → sent.
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error

	// MarkFailed переводит processing → failed.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ResetMessage переводит failed → pending (ручной reprocess).
	// false — сообщение не в статусе failed.
	ResetMessage(ctx context.Context, id uuid.UUID) (bool, error)

	// ResetFailedByWorkflow переводит все failed сообщения workflow в pending.
	ResetFailedByWorkflow(ctx context.Context, workflowID uuid.UUID) (int, error)

	// ListFallbackCandidates возвращает основные сообщения с fallback,
	// не доставленные за fallback_delay_minutes после scheduled_at,
	// для которых fallback ещё не ставился.
	ListFallbackCandidates(ctx context.Context, now time.Time, limit int) ([]domain.QueuedMessage, error)

	// ClaimFallback выставляет fallback_queued_at, если он ещё пуст.
	ClaimFallback(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// ListMessages возвращает сообщения по фильтру (новые первыми).
	ListMessages(ctx context.Context, filter MessageFilter) ([]domain.QueuedMessage, error)
}

// Store — всё хранилище целиком.
type Store interface {
	WorkflowRepository
	ExecutionStore
	MessageStore
}
