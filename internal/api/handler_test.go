package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/consumer"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/memstore"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

var fixedNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type fakeEvents struct {
	published []domain.Event
}

func (f *fakeEvents) PublishEvent(_ context.Context, event domain.Event) error {
	f.published = append(f.published, event)
	return nil
}

type testAPI struct {
	store *memstore.Store
	mux   *http.ServeMux
	org   uuid.UUID
}

func newTestAPI(t *testing.T, events EventPublisher) *testAPI {
	t.Helper()

	store := memstore.New()
	registry := actions.DefaultRegistry(actions.Deps{
		Messages: store,
		Backend:  actions.NewLogBackend(nil),
	})

	h := NewHandler(Config{
		Store:      store,
		Actions:    registry,
		Dispatcher: trigger.NewDispatcher(trigger.Config{Store: store, Now: func() time.Time { return fixedNow }}),
		Events:     events,
		Messages:   consumer.New(consumer.Config{Store: store}),
		Now:        func() time.Time { return fixedNow },
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testAPI{store: store, mux: mux, org: uuid.New()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

func (a *testAPI) workflowBody() map[string]any {
	return map[string]any{
		"organization_id": a.org.String(),
		"name":            "Appointment confirmation",
		"trigger_type":    trigger.JobScheduled,
		"trigger_conditions": []map[string]any{
			{"field": "status", "operator": "equals", "value": "scheduled"},
		},
		"steps": []map[string]any{
			{
				"id":             "confirm",
				"kind":           "action",
				"subtype":        "send_sms",
				"sequence_order": 1,
				"config":         map[string]any{"message": "Hi {{client.name}}, see you soon"},
			},
		},
	}
}

func (a *testAPI) createWorkflow(t *testing.T) WorkflowResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/workflows", a.workflowBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[WorkflowResponse](t, rec)
}

func TestWorkflowCRUD(t *testing.T) {
	a := newTestAPI(t, nil)

	created := a.createWorkflow(t)
	assert.Equal(t, "Appointment confirmation", created.Name)
	assert.Equal(t, string(domain.WorkflowStatusInactive), created.Status)
	assert.Equal(t, fixedNow, created.CreatedAt)

	// get
	rec := a.do(t, http.MethodGet, "/api/v1/workflows/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[WorkflowResponse](t, rec).ID)

	// list по организации
	rec = a.do(t, http.MethodGet, "/api/v1/workflows?organization_id="+a.org.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]WorkflowResponse](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/api/v1/workflows?organization_id="+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]WorkflowResponse](t, rec))

	// update
	body := a.workflowBody()
	body["name"] = "Appointment confirmation v2"
	rec = a.do(t, http.MethodPut, "/api/v1/workflows/"+created.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Appointment confirmation v2", decode[WorkflowResponse](t, rec).Name)

	// delete
	rec = a.do(t, http.MethodDelete, "/api/v1/workflows/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/workflows/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)
}

func TestCreateWorkflow_Validation(t *testing.T) {
	a := newTestAPI(t, nil)

	tests := []struct {
		name   string
		modify func(body map[string]any)
		field  string
		stepID string
	}{
		{
			name:   "missing name",
			modify: func(b map[string]any) { delete(b, "name") },
			field:  "name",
		},
		{
			name:   "missing organization",
			modify: func(b map[string]any) { delete(b, "organization_id") },
			field:  "organization_id",
		},
		{
			name:   "no steps",
			modify: func(b map[string]any) { b["steps"] = []any{} },
			field:  "steps",
		},
		{
			name:   "unknown trigger",
			modify: func(b map[string]any) { b["trigger_type"] = "job_exploded" },
			field:  "trigger_type",
		},
		{
			name: "invalid operator",
			modify: func(b map[string]any) {
				b["trigger_conditions"] = []map[string]any{{"field": "status", "operator": "matches"}}
			},
			field: "trigger_conditions",
		},
		{
			name: "unknown subtype",
			modify: func(b map[string]any) {
				b["steps"] = []map[string]any{{"id": "x", "kind": "action", "subtype": "send_fax"}}
			},
			stepID: "x",
		},
		{
			name: "invalid window",
			modify: func(b map[string]any) {
				b["delivery_window"] = map[string]any{
					"enabled": true, "start_time": "25:00", "end_time": "17:00",
					"timezone": "UTC", "weekdays": []int{1},
				}
			},
			field: "delivery_window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := a.workflowBody()
			tt.modify(body)

			rec := a.do(t, http.MethodPost, "/api/v1/workflows", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			detail := decodeError(t, rec)
			assert.Equal(t, ErrCodeValidation, detail.Code)
			if tt.field != "" {
				assert.Equal(t, tt.field, detail.Field)
			}
			if tt.stepID != "" {
				assert.Equal(t, tt.stepID, detail.StepID)
			}
		})
	}
}

func TestCreateWorkflow_InvalidBody(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/api/v1/workflows", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeBadRequest, decodeError(t, rec).Code)
}

func TestUpdateWorkflow_KeepsCountersAndOrganization(t *testing.T) {
	a := newTestAPI(t, nil)
	created := a.createWorkflow(t)
	ctx := context.Background()

	require.NoError(t, a.store.IncrementCounters(ctx, created.ID, true))

	body := a.workflowBody()
	body["name"] = "Renamed"
	rec := a.do(t, http.MethodPut, "/api/v1/workflows/"+created.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code)

	wf, err := a.store.GetWorkflow(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, wf.ExecutionCount)
	assert.Equal(t, 1, wf.SuccessCount)

	body["organization_id"] = uuid.NewString()
	rec = a.do(t, http.MethodPut, "/api/v1/workflows/"+created.ID.String(), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPut, "/api/v1/workflows/"+uuid.NewString(), a.workflowBody())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetWorkflowStatus(t *testing.T) {
	a := newTestAPI(t, nil)
	created := a.createWorkflow(t)
	path := "/api/v1/workflows/" + created.ID.String() + "/status"

	rec := a.do(t, http.MethodPut, path, map[string]any{"status": "active"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "active", decode[WorkflowResponse](t, rec).Status)

	wf, err := a.store.GetWorkflow(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, wf.IsActive())

	rec = a.do(t, http.MethodPut, path, map[string]any{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status", decodeError(t, rec).Field)
}

func TestReceiveEvent_Dispatch(t *testing.T) {
	a := newTestAPI(t, nil)
	created := a.createWorkflow(t)
	a.do(t, http.MethodPut, "/api/v1/workflows/"+created.ID.String()+"/status", map[string]any{"status": "active"})

	event := map[string]any{
		"id":              "evt-1",
		"event_type":      trigger.JobScheduled,
		"entity_type":     "job",
		"organization_id": a.org.String(),
		"snapshot": map[string]any{
			"status": "scheduled",
			"client": map[string]any{"name": "Ann", "phone": "+15550100"},
		},
	}

	rec := a.do(t, http.MethodPost, "/api/v1/events", event)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[EventResponse](t, rec)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.ExecutionIDs, 1)

	// execution log создан
	rec = a.do(t, http.MethodGet, "/api/v1/executions?workflow_id="+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]ExecutionResponse](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, string(domain.ExecutionStatusPending), logs[0].Status)

	rec = a.do(t, http.MethodGet, "/api/v1/executions/"+res.ExecutionIDs[0].String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scheduled", decode[ExecutionResponse](t, rec).TriggerData["status"])

	// условие не выполнено
	event["snapshot"] = map[string]any{"status": "cancelled"}
	rec = a.do(t, http.MethodPost, "/api/v1/events", event)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[EventResponse](t, rec).Matched)
}

func TestReceiveEvent_Validation(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"organization_id": a.org.String(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "event_type", decodeError(t, rec).Field)
}

func TestReceiveEvent_Publish(t *testing.T) {
	events := &fakeEvents{}
	a := newTestAPI(t, events)

	rec := a.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"event_type":      trigger.InvoicePaid,
		"organization_id": a.org.String(),
		"snapshot":        map[string]any{"total": 120},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, decode[EventResponse](t, rec).Queued)

	require.Len(t, events.published, 1)
	assert.Equal(t, trigger.InvoicePaid, events.published[0].EventType)
	assert.Equal(t, fixedNow, events.published[0].OccurredAt)
}

func (a *testAPI) failedMessage(t *testing.T, workflowID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	msg := &domain.QueuedMessage{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		ExecutionID: uuid.New(),
		StepID:      "confirm",
		MessageType: domain.MessageTypeSMS,
		Recipient:   "+15550100",
		Content:     "Hi",
		ScheduledAt: fixedNow,
		Status:      domain.MessageStatusPending,
		CreatedAt:   fixedNow,
	}
	require.NoError(t, a.store.EnqueueMessage(ctx, msg))

	claimed, err := a.store.ClaimMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, a.store.MarkFailed(ctx, msg.ID, "gateway down"))
	return msg.ID
}

func TestMessages(t *testing.T) {
	a := newTestAPI(t, nil)
	created := a.createWorkflow(t)

	id := a.failedMessage(t, created.ID)

	rec := a.do(t, http.MethodGet, "/api/v1/messages?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]MessageResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "gateway down", list[0].ErrorMessage)

	rec = a.do(t, http.MethodPost, "/api/v1/messages/"+id.String()+"/reprocess", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[ReprocessResponse](t, rec).Requeued)

	rec = a.do(t, http.MethodGet, "/api/v1/messages/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.MessageStatusPending), decode[MessageResponse](t, rec).Status)

	// повторный reprocess — сообщение уже pending
	rec = a.do(t, http.MethodPost, "/api/v1/messages/"+id.String()+"/reprocess", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/messages/"+uuid.NewString()+"/reprocess", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReprocessWorkflowMessages(t *testing.T) {
	a := newTestAPI(t, nil)
	created := a.createWorkflow(t)

	a.failedMessage(t, created.ID)
	a.failedMessage(t, created.ID)

	rec := a.do(t, http.MethodPost, "/api/v1/workflows/"+created.ID.String()+"/messages/reprocess", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[ReprocessResponse](t, rec).Requeued)

	rec = a.do(t, http.MethodPost, "/api/v1/workflows/"+uuid.NewString()+"/messages/reprocess", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidParams(t *testing.T) {
	a := newTestAPI(t, nil)

	paths := []string{
		"/api/v1/workflows/not-a-uuid",
		"/api/v1/executions/not-a-uuid",
		"/api/v1/messages/not-a-uuid",
		"/api/v1/messages?workflow_id=nope",
		"/api/v1/executions?limit=-1",
		"/api/v1/workflows?offset=x",
	}
	for _, p := range paths {
		rec := a.do(t, http.MethodGet, p, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, p)
	}
}

func TestCatalog(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/api/v1/triggers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	triggers := decode[[]TriggerResponse](t, rec)
	assert.NotEmpty(t, triggers)

	rec = a.do(t, http.MethodGet, "/api/v1/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ActionsResponse](t, rec)
	assert.Contains(t, res.Subtypes, domain.SubtypeSendSMS)
	assert.Contains(t, res.Operators, "in_list")
}

func TestRecovery(t *testing.T) {
	handler := Chain(RequestID(), Observe(slogDiscard()), Recovery(slogDiscard()))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "req-42", seen)
}
