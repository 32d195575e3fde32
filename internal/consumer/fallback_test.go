package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
	"github.com/shaiso/Fieldflow/internal/memstore"
)

func enqueuePrimary(t *testing.T, store *memstore.Store, wf *domain.Workflow, scheduledAt time.Time, window domain.DeliveryWindow) *domain.QueuedMessage {
	t.Helper()

	msg := &domain.QueuedMessage{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		ExecutionID:    uuid.New(),
		StepID:         "notify",
		OrganizationID: wf.OrganizationID,
		MessageType:    domain.MessageTypeSMS,
		Recipient:      "+15550100",
		Content:        "Your invoice is ready",
		ScheduledAt:    scheduledAt,
		Status:         domain.MessageStatusPending,
		DeliveryWindow: window,
		Metadata: map[string]any{
			domain.MetaChannelRole:       domain.ChannelRolePrimary,
			domain.MetaFallbackChannel:   string(domain.MessageTypeEmail),
			domain.MetaFallbackRecipient: "ann@example.com",
			domain.MetaFallbackContent:   "Your invoice is ready (email)",
			domain.MetaFallbackDelayMin:  30,
		},
		CreatedAt: scheduledAt,
	}
	require.NoError(t, store.EnqueueMessage(context.Background(), msg))
	return msg
}

func fallbacksOf(t *testing.T, store *memstore.Store, wf *domain.Workflow, primary uuid.UUID) []domain.QueuedMessage {
	t.Helper()

	all, err := store.ListMessages(context.Background(), gateway.MessageFilter{WorkflowID: &wf.ID})
	require.NoError(t, err)

	var result []domain.QueuedMessage
	for _, m := range all {
		if m.MetaString(domain.MetaPrimaryMessageID) == primary.String() {
			result = append(result, m)
		}
	}
	return result
}

func TestFallbackCheck_EnqueuesAfterDelay(t *testing.T) {
	store, c, wf := setup(t, &fakeProvider{})
	ctx := context.Background()

	primary := enqueuePrimary(t, store, wf, mondayMorning, domain.DeliveryWindow{})

	// задержка ещё не прошла
	stats, err := c.FallbackCheck(ctx, mondayMorning.Add(29*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, stats.Candidates)

	now := mondayMorning.Add(31 * time.Minute)
	stats, err = c.FallbackCheck(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, FallbackStats{Candidates: 1, Enqueued: 1}, stats)

	fallbacks := fallbacksOf(t, store, wf, primary.ID)
	require.Len(t, fallbacks, 1)

	fb := fallbacks[0]
	assert.Equal(t, domain.MessageTypeEmail, fb.MessageType)
	assert.Equal(t, "ann@example.com", fb.Recipient)
	assert.Equal(t, "Your invoice is ready (email)", fb.Content)
	assert.Equal(t, domain.ChannelRoleFallback, fb.MetaString(domain.MetaChannelRole))
	assert.Equal(t, domain.MessageStatusPending, fb.Status)
	assert.Equal(t, now, fb.ScheduledAt)
	assert.False(t, fb.WantsFallback())

	claimed := getMessage(t, store, primary.ID)
	require.NotNil(t, claimed.FallbackQueuedAt)

	// fallback ставится один раз
	stats, err = c.FallbackCheck(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Enqueued)
	assert.Len(t, fallbacksOf(t, store, wf, primary.ID), 1)
}

func TestFallbackCheck_RespectsDeliveryWindow(t *testing.T) {
	store, c, wf := setup(t, &fakeProvider{})

	window := domain.DeliveryWindow{
		Enabled:   true,
		StartTime: "09:00",
		EndTime:   "17:00",
		Timezone:  "UTC",
		Weekdays:  []int{1, 2, 3, 4, 5},
	}
	// пятница 16:40, fallback через 30 минут попадает на вечер пятницы
	friday := time.Date(2024, 6, 7, 16, 40, 0, 0, time.UTC)
	primary := enqueuePrimary(t, store, wf, friday, window)

	_, err := c.FallbackCheck(context.Background(), friday.Add(31*time.Minute))
	require.NoError(t, err)

	fallbacks := fallbacksOf(t, store, wf, primary.ID)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), fallbacks[0].ScheduledAt)
}

func TestFallbackCheck_SkipsSentPrimary(t *testing.T) {
	store, c, wf := setup(t, &fakeProvider{})
	ctx := context.Background()

	primary := enqueuePrimary(t, store, wf, mondayMorning, domain.DeliveryWindow{})

	_, err := c.Pass(ctx, mondayMorning)
	require.NoError(t, err)
	require.Equal(t, domain.MessageStatusSent, getMessage(t, store, primary.ID).Status)

	stats, err := c.FallbackCheck(ctx, mondayMorning.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Candidates)
	assert.Empty(t, fallbacksOf(t, store, wf, primary.ID))
}

func TestFallbackCheck_FailedPrimary(t *testing.T) {
	provider := &fakeProvider{err: assert.AnError}
	store, c, wf := setup(t, provider)
	ctx := context.Background()

	primary := enqueuePrimary(t, store, wf, mondayMorning, domain.DeliveryWindow{})

	_, err := c.Pass(ctx, mondayMorning)
	require.NoError(t, err)

	stats, err := c.FallbackCheck(ctx, mondayMorning.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Enqueued)
	assert.Len(t, fallbacksOf(t, store, wf, primary.ID), 1)
}

func TestFallbackCheck_SkipsInactiveWorkflow(t *testing.T) {
	store, c, wf := setup(t, &fakeProvider{})
	ctx := context.Background()

	primary := enqueuePrimary(t, store, wf, mondayMorning, domain.DeliveryWindow{})
	require.NoError(t, store.SetWorkflowStatus(ctx, wf.ID, domain.WorkflowStatusInactive))

	stats, err := c.FallbackCheck(ctx, mondayMorning.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Nil(t, getMessage(t, store, primary.ID).FallbackQueuedAt)
}

func TestFallbackCheck_ConcurrentEnqueuesOnce(t *testing.T) {
	store, _, wf := setup(t, &fakeProvider{})

	primary := enqueuePrimary(t, store, wf, mondayMorning, domain.DeliveryWindow{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := New(Config{Store: store})
			_, err := c.FallbackCheck(context.Background(), mondayMorning.Add(time.Hour))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, fallbacksOf(t, store, wf, primary.ID), 1)
}

func TestBuildFallback_InvalidChannel(t *testing.T) {
	primary := &domain.QueuedMessage{
		ID:       uuid.New(),
		Metadata: map[string]any{domain.MetaFallbackChannel: "fax"},
	}

	_, err := buildFallback(primary, mondayMorning)
	assert.Error(t, err)
}
