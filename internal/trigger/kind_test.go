package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Len(t, c.Types(), 13)
	for _, typ := range []string{JobStatusChanged, InvoiceOverdue, AppointmentReminder, ClientCreated} {
		assert.True(t, c.Has(typ), typ)
	}

	k, err := c.Get(EstimateAccepted)
	require.NoError(t, err)
	assert.Equal(t, EntityEstimate, k.EntityType)

	_, err = c.Get("lead_created")
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestCatalog_ValidateTrigger(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name        string
		triggerType string
		conditions  []domain.Condition
		wantErr     error
	}{
		{
			name:        "валидные условия",
			triggerType: JobStatusChanged,
			conditions:  []domain.Condition{{Field: "status", Operator: engine.OpEquals, Value: "completed"}},
		},
		{
			name:        "без условий",
			triggerType: InvoicePaid,
		},
		{
			name:        "неизвестный тип",
			triggerType: "lead_created",
			wantErr:     ErrUnknownTrigger,
		},
		{
			name:        "неизвестный оператор",
			triggerType: JobCreated,
			conditions:  []domain.Condition{{Field: "status", Operator: "matches"}},
			wantErr:     engine.ErrInvalidOperator,
		},
		{
			name:        "ссылка на outputs шагов",
			triggerType: JobCreated,
			conditions:  []domain.Condition{{Field: "steps.sms.message_id", Operator: engine.OpIsNotEmpty}},
			wantErr:     ErrStepFieldInTrigger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateTrigger(tt.triggerType, tt.conditions)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestKind_Context(t *testing.T) {
	snapshot := map[string]any{
		"id":     "job-1",
		"status": "completed",
		"client": map[string]any{"name": "Ann", "phone": "+15550100"},
		"company": map[string]any{
			"name": "Acme Plumbing",
		},
	}

	k, err := DefaultCatalog().Get(JobStatusChanged)
	require.NoError(t, err)

	ctx := k.Context(snapshot)

	assert.Equal(t, "Ann completed by Acme Plumbing",
		engine.Interpolate("{{client.name}} {{status}} by {{company.name}}", ctx))
	assert.Equal(t, "completed", engine.Interpolate("{{job.status}}", ctx))
	assert.Equal(t, "job-1", engine.Interpolate("{{trigger_data.id}}", ctx))
	assert.Equal(t, "job", engine.Interpolate("{{event.entity_type}}", ctx))
	assert.Equal(t, map[string]any{}, ctx["steps"])
}

func TestKind_Context_ClientEntity(t *testing.T) {
	k, err := DefaultCatalog().Get(ClientCreated)
	require.NoError(t, err)

	ctx := k.Context(map[string]any{"name": "Bob", "email": "bob@example.com"})

	assert.Equal(t, "bob@example.com", engine.Interpolate("{{client.email}}", ctx))
	assert.Equal(t, "{{job.title}}", engine.Interpolate("{{job.title}}", ctx))
}

func TestKind_Context_ReservedKeysWin(t *testing.T) {
	k, err := DefaultCatalog().Get(InvoiceSent)
	require.NoError(t, err)

	ctx := k.Context(map[string]any{"steps": "not a map", "total": 120})

	assert.Equal(t, map[string]any{}, ctx["steps"])
	assert.Equal(t, "120", engine.Interpolate("{{invoice.total}}", ctx))
}

func TestCatalog_ContextFor_Unknown(t *testing.T) {
	ctx := DefaultCatalog().ContextFor("lead_created", nil)

	assert.Equal(t, map[string]any{}, ctx["trigger_data"])
	assert.Equal(t, "lead_created", engine.Interpolate("{{event.type}}", ctx))
}
