package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fieldflow/internal/channel"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/memstore"
)

// Понедельник 3 июня 2024, 10:00 UTC.
var mondayMorning = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

// fakeProvider считает вызовы и отвечает заданной ошибкой.
type fakeProvider struct {
	mu    sync.Mutex
	sent  []channel.Message
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (p *fakeProvider) Send(ctx context.Context, msg channel.Message) (channel.SendResult, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return channel.SendResult{}, ctx.Err()
		}
	}
	if p.err != nil {
		return channel.SendResult{}, p.err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return channel.SendResult{ProviderMessageID: "prov-" + msg.ID.String()}, nil
}

func (p *fakeProvider) Sent() []channel.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]channel.Message(nil), p.sent...)
}

type panicProvider struct{}

func (panicProvider) Send(context.Context, channel.Message) (channel.SendResult, error) {
	panic("gateway client bug")
}

func setup(t *testing.T, provider channel.Provider) (*memstore.Store, *Consumer, *domain.Workflow) {
	t.Helper()

	store := memstore.New()
	wf := &domain.Workflow{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "Job reminders",
		TriggerType:    "job_scheduled",
		Status:         domain.WorkflowStatusActive,
	}
	require.NoError(t, store.CreateWorkflow(context.Background(), wf))

	c := New(Config{
		Store:       store,
		Provider:    provider,
		SendTimeout: 100 * time.Millisecond,
		Now:         func() time.Time { return mondayMorning },
	})
	return store, c, wf
}

func enqueue(t *testing.T, store *memstore.Store, wf *domain.Workflow, channelType domain.MessageType, scheduledAt time.Time) *domain.QueuedMessage {
	t.Helper()

	msg := &domain.QueuedMessage{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		ExecutionID:    uuid.New(),
		StepID:         "notify",
		OrganizationID: wf.OrganizationID,
		MessageType:    channelType,
		Recipient:      "+15550100",
		Content:        "Your technician arrives at 10:00",
		ScheduledAt:    scheduledAt,
		Status:         domain.MessageStatusPending,
		Metadata:       map[string]any{},
		CreatedAt:      scheduledAt,
	}
	require.NoError(t, store.EnqueueMessage(context.Background(), msg))
	return msg
}

func getMessage(t *testing.T, store *memstore.Store, id uuid.UUID) *domain.QueuedMessage {
	t.Helper()
	msg, err := store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return msg
}

func TestPass_SendsDueMessages(t *testing.T) {
	provider := &fakeProvider{}
	store, c, wf := setup(t, provider)

	due := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning.Add(-time.Minute))
	future := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning.Add(time.Hour))

	stats, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, PassStats{Due: 1, Sent: 1}, stats)

	sent := getMessage(t, store, due.ID)
	assert.Equal(t, domain.MessageStatusSent, sent.Status)
	assert.Equal(t, "prov-"+due.ID.String(), sent.ProviderMessageID)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, mondayMorning, *sent.SentAt)

	assert.Equal(t, domain.MessageStatusPending, getMessage(t, store, future.ID).Status)
	assert.Len(t, provider.Sent(), 1)
}

func TestPass_SendsInScheduledOrder(t *testing.T) {
	provider := &fakeProvider{}
	store, c, wf := setup(t, provider)

	later := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning.Add(-time.Minute))
	earlier := enqueue(t, store, wf, domain.MessageTypeEmail, mondayMorning.Add(-time.Hour))

	_, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)

	sent := provider.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, earlier.ID, sent[0].ID)
	assert.Equal(t, later.ID, sent[1].ID)
}

func TestPass_ProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("invalid phone number")}
	store, c, wf := setup(t, provider)

	msg := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)

	stats, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	failed := getMessage(t, store, msg.ID)
	assert.Equal(t, domain.MessageStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, ErrDispatch.Error())
	assert.Contains(t, failed.ErrorMessage, "invalid phone number")

	// автоматического повтора нет
	stats, err = c.Pass(context.Background(), mondayMorning.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestPass_ProviderTimeout(t *testing.T) {
	provider := &fakeProvider{delay: time.Second}
	store, c, wf := setup(t, provider)

	msg := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)

	stats, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	failed := getMessage(t, store, msg.ID)
	assert.Equal(t, domain.MessageStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, context.DeadlineExceeded.Error())
}

func TestPass_ProviderPanic(t *testing.T) {
	store, c, wf := setup(t, panicProvider{})

	msg := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)

	stats, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	failed := getMessage(t, store, msg.ID)
	assert.Equal(t, domain.MessageStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "provider panicked")
}

func TestPass_SkipsInactiveWorkflow(t *testing.T) {
	provider := &fakeProvider{}
	store, c, wf := setup(t, provider)
	ctx := context.Background()

	msg := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)
	require.NoError(t, store.SetWorkflowStatus(ctx, wf.ID, domain.WorkflowStatusInactive))

	stats, err := c.Pass(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, PassStats{Due: 1, Skipped: 1}, stats)
	assert.Equal(t, domain.MessageStatusPending, getMessage(t, store, msg.ID).Status)
	assert.Empty(t, provider.Sent())

	// после повторной активации сообщение уходит
	require.NoError(t, store.SetWorkflowStatus(ctx, wf.ID, domain.WorkflowStatusActive))
	stats, err = c.Pass(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
}

func TestPass_SkipsDeletedWorkflow(t *testing.T) {
	provider := &fakeProvider{}
	store, c, wf := setup(t, provider)

	msg := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)
	require.NoError(t, store.DeleteWorkflow(context.Background(), wf.ID))

	stats, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, domain.MessageStatusPending, getMessage(t, store, msg.ID).Status)
}

func TestPass_ConcurrentPassesSendOnce(t *testing.T) {
	provider := &fakeProvider{}
	store, _, wf := setup(t, provider)

	var ids []uuid.UUID
	for i := 0; i < 20; i++ {
		ids = append(ids, enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning.Add(-time.Duration(i)*time.Second)).ID)
	}

	const workers = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := New(Config{Store: store, Provider: provider})
			_, err := c.Pass(context.Background(), mondayMorning)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(len(ids)), provider.calls.Load())
	for _, id := range ids {
		assert.Equal(t, domain.MessageStatusSent, getMessage(t, store, id).Status)
	}
}

func TestPass_NoProvider(t *testing.T) {
	store, c, wf := setup(t, nil)

	msg := enqueue(t, store, wf, domain.MessageTypeEmail, mondayMorning)

	stats, err := c.Pass(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, getMessage(t, store, msg.ID).ErrorMessage, channel.ErrUnsupportedChannel.Error())
}

func TestReprocess(t *testing.T) {
	provider := &fakeProvider{err: errors.New("gateway down")}
	store, c, wf := setup(t, provider)
	ctx := context.Background()

	msg := enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)

	err := c.Reprocess(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFailed)

	_, err = c.Pass(ctx, mondayMorning)
	require.NoError(t, err)
	require.Equal(t, domain.MessageStatusFailed, getMessage(t, store, msg.ID).Status)

	require.NoError(t, c.Reprocess(ctx, msg.ID))
	requeued := getMessage(t, store, msg.ID)
	assert.Equal(t, domain.MessageStatusPending, requeued.Status)
	assert.Empty(t, requeued.ErrorMessage)

	provider.err = nil
	stats, err := c.Pass(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)

	err = c.Reprocess(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReprocessFailed(t *testing.T) {
	provider := &fakeProvider{err: errors.New("gateway down")}
	store, c, wf := setup(t, provider)
	ctx := context.Background()

	enqueue(t, store, wf, domain.MessageTypeSMS, mondayMorning)
	enqueue(t, store, wf, domain.MessageTypeEmail, mondayMorning)

	_, err := c.Pass(ctx, mondayMorning)
	require.NoError(t, err)

	n, err := c.ReprocessFailed(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.ReprocessFailed(ctx, wf.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
