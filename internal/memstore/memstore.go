// Package memstore — реализация gateway.Store в памяти.
//
// Используется в тестах как детерминированный двойник PostgreSQL
// и для локального запуска без БД (STORE=memory). Условные обновления
// выполняются под мьютексом и дают ту же семантику, что WHERE status=...
// в repo.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// Store — хранилище в памяти.
type Store struct {
	mu         sync.Mutex
	workflows  map[uuid.UUID]domain.Workflow
	executions map[uuid.UUID]domain.ExecutionLog
	messages   map[uuid.UUID]domain.QueuedMessage
}

var _ gateway.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		workflows:  make(map[uuid.UUID]domain.Workflow),
		executions: make(map[uuid.UUID]domain.ExecutionLog),
		messages:   make(map[uuid.UUID]domain.QueuedMessage),
	}
}

// --- Workflows ---

// CreateWorkflow сохраняет новый workflow.
func (s *Store) CreateWorkflow(_ context.Context, w *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[w.ID]; ok {
		return gateway.ErrAlreadyExists
	}
	s.workflows[w.ID] = *w
	return nil
}

// UpdateWorkflow обновляет определение workflow (счётчики не трогает).
func (s *Store) UpdateWorkflow(_ context.Context, w *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.workflows[w.ID]
	if !ok {
		return gateway.ErrNotFound
	}
	next := *w
	next.ExecutionCount = cur.ExecutionCount
	next.SuccessCount = cur.SuccessCount
	next.CreatedAt = cur.CreatedAt
	s.workflows[w.ID] = next
	return nil
}

// DeleteWorkflow удаляет workflow.
func (s *Store) DeleteWorkflow(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return gateway.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// GetWorkflow возвращает workflow по ID.
func (s *Store) GetWorkflow(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &w, nil
}

// ListWorkflows возвращает workflows по фильтру.
func (s *Store) ListWorkflows(_ context.Context, filter gateway.WorkflowFilter) ([]domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Workflow
	for _, w := range s.workflows {
		if filter.OrganizationID != nil && w.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.TriggerType != "" && w.TriggerType != filter.TriggerType {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

// ListActiveByTrigger возвращает active workflows организации с trigger_type.
func (s *Store) ListActiveByTrigger(_ context.Context, organizationID uuid.UUID, triggerType string) ([]domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Workflow
	for _, w := range s.workflows {
		if w.OrganizationID == organizationID && w.TriggerType == triggerType && w.IsActive() {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// IncrementCounters увеличивает счётчики запусков.
func (s *Store) IncrementCounters(_ context.Context, id uuid.UUID, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return gateway.ErrNotFound
	}
	w.ExecutionCount++
	if success {
		w.SuccessCount++
	}
	s.workflows[id] = w
	return nil
}

// SetWorkflowStatus меняет статус workflow.
func (s *Store) SetWorkflowStatus(_ context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return gateway.ErrNotFound
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	s.workflows[id] = w
	return nil
}

// --- Executions ---

// CreateExecution сохраняет новый log.
func (s *Store) CreateExecution(_ context.Context, e *domain.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[e.ID]; ok {
		return gateway.ErrAlreadyExists
	}
	s.executions[e.ID] = cloneExecution(*e)
	return nil
}

// GetExecution возвращает log по ID.
func (s *Store) GetExecution(_ context.Context, id uuid.UUID) (*domain.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	e = cloneExecution(e)
	return &e, nil
}

// ClaimExecution переводит pending → processing.
func (s *Store) ClaimExecution(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return false, gateway.ErrNotFound
	}
	if e.Status != domain.ExecutionStatusPending {
		return false, nil
	}
	e.MarkProcessing(now)
	s.executions[id] = e
	return true, nil
}

// ClaimResume забирает приостановленный log.
func (s *Store) ClaimResume(_ context.Context, id uuid.UUID, resumeAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return false, gateway.ErrNotFound
	}
	if e.Status != domain.ExecutionStatusProcessing || e.ResumeAt == nil || !e.ResumeAt.Equal(resumeAt) {
		return false, nil
	}
	e.ResumeAt = nil
	s.executions[id] = e
	return true, nil
}

// SaveProgress сохраняет прогресс log в статусе processing.
func (s *Store) SaveProgress(_ context.Context, e *domain.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.executions[e.ID]
	if !ok {
		return gateway.ErrNotFound
	}
	if cur.Status != domain.ExecutionStatusProcessing {
		return gateway.ErrInvalidState
	}
	cur.ActionsExecuted = slices.Clone(e.ActionsExecuted)
	cur.Cursor = slices.Clone(e.Cursor)
	cur.ResumeAt = e.ResumeAt
	s.executions[e.ID] = cur
	return nil
}

// FinishExecution переводит processing → completed | failed.
func (s *Store) FinishExecution(_ context.Context, e *domain.ExecutionLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.executions[e.ID]
	if !ok {
		return false, gateway.ErrNotFound
	}
	if !e.Status.IsTerminal() {
		return false, gateway.ErrInvalidState
	}
	if cur.Status != domain.ExecutionStatusProcessing {
		return false, nil
	}
	cur.Status = e.Status
	cur.ActionsExecuted = slices.Clone(e.ActionsExecuted)
	cur.ErrorMessage = e.ErrorMessage
	cur.CompletedAt = e.CompletedAt
	cur.Cursor = nil
	cur.ResumeAt = nil
	s.executions[e.ID] = cur
	return true, nil
}

// ListPendingExecutions возвращает pending logs, созданные не позже before.
func (s *Store) ListPendingExecutions(_ context.Context, before time.Time, limit int) ([]domain.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.ExecutionLog
	for _, e := range s.executions {
		if e.Status == domain.ExecutionStatusPending && !e.CreatedAt.After(before) {
			result = append(result, cloneExecution(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, limit, 0), nil
}

// ListResumable возвращает приостановленные logs с resume_at ≤ now.
func (s *Store) ListResumable(_ context.Context, now time.Time, limit int) ([]domain.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.ExecutionLog
	for _, e := range s.executions {
		if e.IsSuspended() && !e.ResumeAt.After(now) {
			result = append(result, cloneExecution(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ResumeAt.Before(*result[j].ResumeAt)
	})
	return paginate(result, limit, 0), nil
}

// ListExecutions возвращает logs по фильтру.
func (s *Store) ListExecutions(_ context.Context, filter gateway.ExecutionFilter) ([]domain.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.ExecutionLog
	for _, e := range s.executions {
		if filter.WorkflowID != nil && e.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, cloneExecution(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

// --- Messages ---

// EnqueueMessage добавляет сообщение.
func (s *Store) EnqueueMessage(_ context.Context, msg *domain.QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return gateway.ErrAlreadyExists
	}
	s.messages[msg.ID] = *msg
	return nil
}

// GetMessage возвращает сообщение по ID.
func (s *Store) GetMessage(_ context.Context, id uuid.UUID) (*domain.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &m, nil
}

// ListDueMessages возвращает pending сообщения со scheduled_at ≤ now.
func (s *Store) ListDueMessages(_ context.Context, now time.Time, limit int) ([]domain.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.QueuedMessage
	for _, m := range s.messages {
		if m.IsDue(now) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return paginate(result, limit, 0), nil
}

// ClaimMessage переводит pending → processing.
func (s *Store) ClaimMessage(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return false, gateway.ErrNotFound
	}
	if m.Status != domain.MessageStatusPending {
		return false, nil
	}
	m.Status = domain.MessageStatusProcessing
	s.messages[id] = m
	return true, nil
}

// MarkSent переводит processing → sent.
func (s *Store) MarkSent(_ context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	return s.finishMessage(id, func(m *domain.QueuedMessage) {
		m.Status = domain.MessageStatusSent
		m.ProviderMessageID = providerMessageID
		m.SentAt = &sentAt
		m.ErrorMessage = ""
	})
}

// MarkFailed переводит processing → failed.
func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	return s.finishMessage(id, func(m *domain.QueuedMessage) {
		m.Status = domain.MessageStatusFailed
		m.ErrorMessage = errMsg
	})
}

func (s *Store) finishMessage(id uuid.UUID, apply func(m *domain.QueuedMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return gateway.ErrNotFound
	}
	if m.Status != domain.MessageStatusProcessing {
		return gateway.ErrInvalidState
	}
	apply(&m)
	s.messages[id] = m
	return nil
}

// ResetMessage переводит failed → pending.
func (s *Store) ResetMessage(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return false, gateway.ErrNotFound
	}
	if m.Status != domain.MessageStatusFailed {
		return false, nil
	}
	m.Status = domain.MessageStatusPending
	m.ErrorMessage = ""
	s.messages[id] = m
	return true, nil
}

// ResetFailedByWorkflow переводит failed сообщения workflow в pending.
func (s *Store) ResetFailedByWorkflow(_ context.Context, workflowID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for id, m := range s.messages {
		if m.WorkflowID == workflowID && m.Status == domain.MessageStatusFailed {
			m.Status = domain.MessageStatusPending
			m.ErrorMessage = ""
			s.messages[id] = m
			n++
		}
	}
	return n, nil
}

// ListFallbackCandidates возвращает сообщения, которым пора ставить fallback.
func (s *Store) ListFallbackCandidates(_ context.Context, now time.Time, limit int) ([]domain.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.QueuedMessage
	for _, m := range s.messages {
		if !m.WantsFallback() || m.Status == domain.MessageStatusSent || m.FallbackQueuedAt != nil {
			continue
		}
		if m.ScheduledAt.Add(m.FallbackDelay()).After(now) {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return paginate(result, limit, 0), nil
}

// ClaimFallback выставляет fallback_queued_at, если он пуст.
func (s *Store) ClaimFallback(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return false, gateway.ErrNotFound
	}
	if m.FallbackQueuedAt != nil || m.Status == domain.MessageStatusSent {
		return false, nil
	}
	m.FallbackQueuedAt = &now
	s.messages[id] = m
	return true, nil
}

// ListMessages возвращает сообщения по фильтру.
func (s *Store) ListMessages(_ context.Context, filter gateway.MessageFilter) ([]domain.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.QueuedMessage
	for _, m := range s.messages {
		if filter.WorkflowID != nil && m.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.ExecutionID != nil && m.ExecutionID != *filter.ExecutionID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

// --- Helpers ---

func cloneExecution(e domain.ExecutionLog) domain.ExecutionLog {
	e.ActionsExecuted = slices.Clone(e.ActionsExecuted)
	e.Cursor = slices.Clone(e.Cursor)
	return e
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
