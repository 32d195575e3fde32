package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/gateway"
	"github.com/shaiso/Fieldflow/internal/memstore"
	"github.com/shaiso/Fieldflow/internal/scheduler"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

// Суббота 1 июня 2024, 14:00 America/New_York.
var saturdayAfternoon = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingBackend запоминает вызванные операции.
type recordingBackend struct {
	mu   sync.Mutex
	ops  []string
	fail map[string]error
}

func (b *recordingBackend) Perform(_ context.Context, op, _ string, params map[string]any) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, op)
	if err := b.fail[op]; err != nil {
		return nil, err
	}
	return map[string]any{"op": op, "task_id": "T-42", "title": params["title"]}, nil
}

func (b *recordingBackend) Ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

type panicAction struct{}

func (panicAction) Type() string { return "ai_generate" }
func (panicAction) Validate(map[string]any) error { return nil }
func (panicAction) Execute(context.Context, *actions.Request) (*actions.Response, error) {
	panic("boom")
}

type harness struct {
	store    *memstore.Store
	backend  *recordingBackend
	clock    *clock
	registry *actions.Registry
	executor *Executor
	org      uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   memstore.New(),
		backend: &recordingBackend{fail: map[string]error{}},
		clock:   &clock{now: saturdayAfternoon},
		org:     uuid.New(),
	}
	h.registry = actions.DefaultRegistry(actions.Deps{Messages: h.store, Backend: h.backend})
	h.executor = New(Config{
		Store:        h.store,
		Actions:      h.registry,
		PendingGrace: -1,
		Now:          h.clock.Now,
	})
	return h
}

func (h *harness) workflow(t *testing.T, steps ...domain.Step) *domain.Workflow {
	t.Helper()
	wf := &domain.Workflow{
		ID:             uuid.New(),
		OrganizationID: h.org,
		Name:           "Job completed",
		TriggerType:    trigger.JobStatusChanged,
		TriggerConditions: []domain.Condition{
			{Field: "status", Operator: engine.OpEquals, Value: "completed"},
		},
		Steps:          steps,
		Status:         domain.WorkflowStatusActive,
		DeliveryWindow: domain.BusinessHours("America/New_York"),
		CreatedAt:      h.clock.Now(),
	}
	require.NoError(t, h.store.CreateWorkflow(context.Background(), wf))
	return wf
}

func (h *harness) execution(t *testing.T, wf *domain.Workflow, snapshot map[string]any) uuid.UUID {
	t.Helper()
	exec := &domain.ExecutionLog{
		ID:              uuid.New(),
		WorkflowID:      wf.ID,
		OrganizationID:  h.org,
		TriggerData:     snapshot,
		Status:          domain.ExecutionStatusPending,
		ActionsExecuted: []domain.ActionRecord{},
		CreatedAt:       h.clock.Now(),
	}
	require.NoError(t, h.store.CreateExecution(context.Background(), exec))
	return exec.ID
}

func (h *harness) messages(t *testing.T) []domain.QueuedMessage {
	t.Helper()
	msgs, err := h.store.ListMessages(context.Background(), gateway.MessageFilter{})
	require.NoError(t, err)
	return msgs
}

func (h *harness) counters(t *testing.T, id uuid.UUID) (int, int) {
	t.Helper()
	wf, err := h.store.GetWorkflow(context.Background(), id)
	require.NoError(t, err)
	return wf.ExecutionCount, wf.SuccessCount
}

func jobSnapshot() map[string]any {
	return map[string]any{
		"id":     "job-1",
		"title":  "Water heater repair",
		"status": "completed",
		"total":  250,
		"client": map[string]any{"id": "c-1", "name": "Ann", "phone": "+15550100", "email": "ann@example.com"},
	}
}

func smsStep(id string, order int) domain.Step {
	return domain.Step{
		ID:            id,
		Kind:          domain.StepKindAction,
		Subtype:       domain.SubtypeSendSMS,
		SequenceOrder: order,
		Config:        map[string]any{"message": "Hi {{client.name}}, {{job.title}} is {{status}}"},
	}
}

func backendStep(id, subtype string, order int) domain.Step {
	return domain.Step{
		ID:            id,
		Kind:          domain.StepKindAction,
		Subtype:       subtype,
		SequenceOrder: order,
		Config:        map[string]any{"title": "Follow up {{client.name}}", "tag": "vip", "field": "status"},
	}
}

func recordIDs(exec *domain.ExecutionLog) []string {
	ids := make([]string, 0, len(exec.ActionsExecuted))
	for _, rec := range exec.ActionsExecuted {
		ids = append(ids, rec.StepID)
	}
	return ids
}

func TestEndToEnd_SaturdayEventScheduledForMonday(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t, smsStep("notify", 1))

	dispatcher := trigger.NewDispatcher(trigger.Config{Store: h.store, Now: h.clock.Now})
	result, err := dispatcher.Dispatch(ctx, domain.Event{
		EventType:      trigger.JobStatusChanged,
		EntityType:     trigger.EntityJob,
		OrganizationID: h.org,
		Snapshot:       jobSnapshot(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched())

	exec, err := h.executor.Run(ctx, result.ExecutionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)

	msgs := h.messages(t)
	require.Len(t, msgs, 1)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	monday := time.Date(2024, 6, 3, 9, 0, 0, 0, ny)

	assert.True(t, msgs[0].ScheduledAt.Equal(monday), "scheduled_at = %s", msgs[0].ScheduledAt.In(ny))
	assert.Equal(t, domain.MessageStatusPending, msgs[0].Status)
	assert.Equal(t, "+15550100", msgs[0].Recipient)
	assert.Equal(t, "Hi Ann, Water heater repair is completed", msgs[0].Content)
	assert.Equal(t, wf.ID, msgs[0].WorkflowID)

	total, success := h.counters(t, wf.ID)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, success)
}

func TestRun_StepFailureAbortsWithoutContinueOnError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.fail[domain.SubtypeCreateTask] = errors.New("backend 503")

	wf := h.workflow(t, backendStep("task", domain.SubtypeCreateTask, 1), smsStep("notify", 2))
	exec, err := h.executor.Run(ctx, h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "backend 503")
	assert.Equal(t, []string{"task"}, recordIDs(exec))
	assert.Equal(t, domain.ActionStatusFailed, exec.ActionsExecuted[0].Status)
	assert.Empty(t, h.messages(t))

	total, success := h.counters(t, wf.ID)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, success)

	stored, err := h.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestRun_ContinueOnError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.fail[domain.SubtypeCreateTask] = errors.New("backend 503")

	task := backendStep("task", domain.SubtypeCreateTask, 1)
	task.ContinueOnError = true
	wf := h.workflow(t, task, smsStep("notify", 2))

	exec, err := h.executor.Run(ctx, h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, []string{"task", "notify"}, recordIDs(exec))
	assert.Equal(t, domain.ActionStatusFailed, exec.ActionsExecuted[0].Status)
	assert.Equal(t, domain.ActionStatusSucceeded, exec.ActionsExecuted[1].Status)
	assert.Len(t, h.messages(t), 1)
}

func TestRun_StepsFollowSequenceOrder(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t,
		backendStep("third", domain.SubtypeTagClient, 3),
		backendStep("first", domain.SubtypeCreateTask, 1),
		backendStep("second", domain.SubtypeUpdateField, 2),
	)

	exec, err := h.executor.Run(context.Background(), h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, recordIDs(exec))
	assert.Equal(t, []string{domain.SubtypeCreateTask, domain.SubtypeUpdateField, domain.SubtypeTagClient}, h.backend.Ops())
}

func TestRun_StepOutputsAreInterpolated(t *testing.T) {
	h := newHarness(t)

	notify := smsStep("notify", 2)
	notify.Config = map[string]any{"message": "Task {{steps.task.task_id}} created"}
	wf := h.workflow(t, backendStep("task", domain.SubtypeCreateTask, 1), notify)

	_, err := h.executor.Run(context.Background(), h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	msgs := h.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Task T-42 created", msgs[0].Content)
}

func TestRun_BranchJoinsFollowingSteps(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t,
		domain.Step{
			ID:            "big-job",
			Kind:          domain.StepKindBranch,
			SequenceOrder: 1,
			Conditions:    []domain.Condition{{Field: "total", Operator: engine.OpGreater, Value: 100}},
			OnTrue:        []domain.Step{backendStep("tag", domain.SubtypeTagClient, 1)},
			OnFalse:       []domain.Step{backendStep("task", domain.SubtypeCreateTask, 1)},
		},
		backendStep("after", domain.SubtypeUpdateField, 2),
	)

	exec, err := h.executor.Run(context.Background(), h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, []string{"big-job", "tag", "after"}, recordIDs(exec))
	assert.Equal(t, true, exec.ActionsExecuted[0].Outputs["result"])
}

func TestRun_ConditionRedirectsWithoutJoin(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t,
		domain.Step{
			ID:            "is-vip",
			Kind:          domain.StepKindCondition,
			SequenceOrder: 1,
			Conditions:    []domain.Condition{{Field: "client.tags", Operator: engine.OpContains, Value: "vip"}},
			OnTrue:        []domain.Step{backendStep("tag", domain.SubtypeTagClient, 1)},
			OnFalse:       []domain.Step{backendStep("task", domain.SubtypeCreateTask, 1)},
		},
		backendStep("after", domain.SubtypeUpdateField, 2),
	)

	// client.tags отсутствует — условие ложно
	exec, err := h.executor.Run(context.Background(), h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, []string{"is-vip", "task"}, recordIDs(exec))
	assert.Equal(t, []string{domain.SubtypeCreateTask}, h.backend.Ops())
}

func TestRun_DelaySuspendsAndResumes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t,
		domain.Step{
			ID:            "wait",
			Kind:          domain.StepKindDelay,
			Subtype:       domain.SubtypeWait,
			SequenceOrder: 1,
			Config:        map[string]any{"duration": 2, "unit": "hours"},
		},
		backendStep("task", domain.SubtypeCreateTask, 2),
	)

	exec, err := h.executor.Run(ctx, h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusProcessing, exec.Status)
	require.NotNil(t, exec.ResumeAt)
	assert.Equal(t, saturdayAfternoon.Add(2*time.Hour), *exec.ResumeAt)
	assert.Equal(t, []int{0}, exec.Cursor)
	assert.Empty(t, h.backend.Ops())

	stored, err := h.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSuspended())

	n, err := h.executor.ResumeDue(ctx, saturdayAfternoon.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(2 * time.Hour)
	n, err = h.executor.ResumeDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = h.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, []string{"wait", "task"}, recordIDs(stored))
	assert.Equal(t, []string{domain.SubtypeCreateTask}, h.backend.Ops())

	// повторный проход ничего не делает
	n, err = h.executor.ResumeDue(ctx, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	total, success := h.counters(t, wf.ID)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, success)
}

func TestRun_NestedDelayResumesInsideBranch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t,
		domain.Step{
			ID:            "big-job",
			Kind:          domain.StepKindBranch,
			SequenceOrder: 1,
			Conditions:    []domain.Condition{{Field: "total", Operator: engine.OpGreater, Value: 100}},
			OnTrue: []domain.Step{
				{ID: "wait", Kind: domain.StepKindDelay, SequenceOrder: 1, Config: map[string]any{"duration": 1, "unit": "days"}},
				backendStep("tag", domain.SubtypeTagClient, 2),
			},
		},
		backendStep("after", domain.SubtypeCreateTask, 2),
	)

	exec, err := h.executor.Run(ctx, h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)
	require.True(t, exec.IsSuspended())
	assert.Equal(t, []int{0, 0, 0}, exec.Cursor)

	h.clock.Advance(24 * time.Hour)
	n, err := h.executor.ResumeDue(ctx, h.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := h.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, []string{"big-job", "wait", "tag", "after"}, recordIDs(stored))
	assert.Equal(t, []string{domain.SubtypeTagClient, domain.SubtypeCreateTask}, h.backend.Ops())
}

func TestResume_DefinitionChangedFailsExecution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t,
		domain.Step{ID: "wait", Kind: domain.StepKindDelay, SequenceOrder: 1, Config: map[string]any{"duration": 5}},
		backendStep("task", domain.SubtypeCreateTask, 2),
	)

	exec, err := h.executor.Run(ctx, h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)
	require.True(t, exec.IsSuspended())

	wf.Steps = []domain.Step{backendStep("task", domain.SubtypeCreateTask, 1)}
	require.NoError(t, h.store.UpdateWorkflow(ctx, wf))

	h.clock.Advance(5 * time.Minute)
	_, err = h.executor.ResumeDue(ctx, h.clock.Now())
	require.NoError(t, err)

	stored, err := h.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, ErrInvalidCursor.Error())
}

func TestRun_CountersIncrementedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t, backendStep("task", domain.SubtypeCreateTask, 1))
	id := h.execution(t, wf, jobSnapshot())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.executor.Run(ctx, id); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrNotPending)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, []string{domain.SubtypeCreateTask}, h.backend.Ops())

	total, success := h.counters(t, wf.ID)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, success)
}

// cancelAwareStore отказывает в записи при отменённом ctx, как pgx.
type cancelAwareStore struct {
	*memstore.Store
}

func (s cancelAwareStore) SaveProgress(ctx context.Context, e *domain.ExecutionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.SaveProgress(ctx, e)
}

func (s cancelAwareStore) FinishExecution(ctx context.Context, e *domain.ExecutionLog) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.Store.FinishExecution(ctx, e)
}

func (s cancelAwareStore) IncrementCounters(ctx context.Context, id uuid.UUID, success bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.IncrementCounters(ctx, id, success)
}

// cancellingBackend отменяет запуск во время первой операции.
type cancellingBackend struct {
	cancel context.CancelFunc
}

func (b cancellingBackend) Perform(context.Context, string, string, map[string]any) (map[string]any, error) {
	b.cancel()
	return map[string]any{"task_id": "T-1"}, nil
}

func TestRun_CancelledRunIsStillFinished(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t,
		backendStep("task", domain.SubtypeCreateTask, 1),
		backendStep("tag", domain.SubtypeTagClient, 2),
	)
	id := h.execution(t, wf, jobSnapshot())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := New(Config{
		Store:        cancelAwareStore{h.store},
		Actions:      actions.DefaultRegistry(actions.Deps{Messages: h.store, Backend: cancellingBackend{cancel: cancel}}),
		PendingGrace: -1,
		Now:          h.clock.Now,
	})

	exec, err := executor.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "cancelled")

	stored, err := h.store.GetExecution(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, []string{"task"}, recordIDs(stored))

	total, success := h.counters(t, wf.ID)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, success)
}

func TestRun_SchedulingErrorDeactivatesWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// окно сохранено в обход валидации
	wf := h.workflow(t, smsStep("notify", 1))
	wf.DeliveryWindow.Timezone = "Mars/Olympus_Mons"
	require.NoError(t, h.store.UpdateWorkflow(ctx, wf))

	exec, err := h.executor.Run(ctx, h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, scheduler.ErrScheduling.Error())
	assert.Empty(t, h.messages(t))

	stored, err := h.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusInactive, stored.Status)
}

func TestRun_UnknownSubtypeFailsStep(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, domain.Step{ID: "voice", Kind: domain.StepKindAction, Subtype: "send_voice"})

	exec, err := h.executor.Run(context.Background(), h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ActionsExecuted[0].Error, actions.ErrActionNotFound.Error())
}

func TestRun_ActionPanicIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(panicAction{})
	wf := h.workflow(t, domain.Step{ID: "ai", Kind: domain.StepKindAction, Subtype: domain.SubtypeAIGenerate})

	exec, err := h.executor.Run(context.Background(), h.execution(t, wf, jobSnapshot()))
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "boom")
}

func TestRun_MissingWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t, smsStep("notify", 1))
	id := h.execution(t, wf, jobSnapshot())
	require.NoError(t, h.store.DeleteWorkflow(ctx, wf.ID))

	exec, err := h.executor.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, ErrWorkflowNotFound.Error())
}

func TestRun_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.executor.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestPollPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	wf := h.workflow(t, backendStep("task", domain.SubtypeCreateTask, 1))
	h.execution(t, wf, jobSnapshot())
	h.execution(t, wf, jobSnapshot())

	n, err := h.executor.PollPending(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.executor.PollPending(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	total, _ := h.counters(t, wf.ID)
	assert.Equal(t, 2, total)
}

func TestPollPending_RespectsGrace(t *testing.T) {
	h := newHarness(t)
	h.executor = New(Config{
		Store:        h.store,
		Actions:      h.registry,
		PendingGrace: time.Minute,
		Now:          h.clock.Now,
	})
	wf := h.workflow(t, backendStep("task", domain.SubtypeCreateTask, 1))
	h.execution(t, wf, jobSnapshot())

	n, err := h.executor.PollPending(context.Background(), h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = h.executor.PollPending(context.Background(), h.clock.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStepExecutionError(t *testing.T) {
	base := errors.New("timeout")
	err := &StepExecutionError{StepID: "notify", Subtype: domain.SubtypeSendSMS, Err: base}

	assert.Equal(t, "step notify (send_sms): timeout", err.Error())
	assert.ErrorIs(t, err, base)
}
