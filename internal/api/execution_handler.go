package api

import (
	"net/http"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// ListExecutions возвращает execution logs с фильтрацией.
// GET /api/v1/executions?workflow_id=...&status=...&limit=...&offset=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID, err := queryUUID(r, "workflow_id")
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := gateway.ExecutionFilter{
		WorkflowID: workflowID,
		Status:     domain.ExecutionStatus(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	}

	logs, err := h.store.ListExecutions(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(logs))
	for i, e := range logs {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}

// GetExecution возвращает execution log по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "execution")
	if !ok {
		return
	}

	exec, err := h.store.GetExecution(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}
