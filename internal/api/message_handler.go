package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Fieldflow/internal/consumer"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// ListMessages возвращает сообщения очереди с фильтрацией.
// GET /api/v1/messages?workflow_id=...&execution_id=...&status=...&limit=...&offset=...
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	workflowID, err := queryUUID(r, "workflow_id")
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	executionID, err := queryUUID(r, "execution_id")
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := gateway.MessageFilter{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Status:      domain.MessageStatus(r.URL.Query().Get("status")),
		Limit:       limit,
		Offset:      offset,
	}

	messages, err := h.store.ListMessages(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]MessageResponse, len(messages))
	for i, m := range messages {
		result[i] = MessageFromDomain(m)
	}

	List(w, result, len(result))
}

// GetMessage возвращает сообщение по ID.
// GET /api/v1/messages/{id}
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "message")
	if !ok {
		return
	}

	msg, err := h.store.GetMessage(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "message not found") {
		return
	}

	Success(w, MessageFromDomain(*msg))
}

// ReprocessMessage возвращает failed сообщение в очередь.
// POST /api/v1/messages/{id}/reprocess
func (h *Handler) ReprocessMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "message")
	if !ok {
		return
	}

	if h.messages == nil {
		Unavailable(w, "message reprocessing is not configured")
		return
	}

	if err := h.messages.Reprocess(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, consumer.ErrMessageNotFound):
			NotFound(w, "message not found")
		case errors.Is(err, consumer.ErrNotFailed):
			InvalidState(w, "only failed messages can be reprocessed")
		default:
			InternalError(w, h.logger, err)
		}
		return
	}

	Success(w, ReprocessResponse{Requeued: 1})
}

// ReprocessWorkflowMessages возвращает в очередь все failed сообщения workflow.
// POST /api/v1/workflows/{id}/messages/reprocess
func (h *Handler) ReprocessWorkflowMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	if h.messages == nil {
		Unavailable(w, "message reprocessing is not configured")
		return
	}

	_, err := h.store.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	n, err := h.messages.ReprocessFailed(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, ReprocessResponse{Requeued: n})
}
