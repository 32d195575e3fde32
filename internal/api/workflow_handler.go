package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// ListWorkflows возвращает список workflows с фильтрацией.
// GET /api/v1/workflows?organization_id=...&trigger_type=...&status=...&limit=...&offset=...
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	orgID, err := queryUUID(r, "organization_id")
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := gateway.WorkflowFilter{
		OrganizationID: orgID,
		TriggerType:    r.URL.Query().Get("trigger_type"),
		Status:         domain.WorkflowStatus(r.URL.Query().Get("status")),
		Limit:          limit,
		Offset:         offset,
	}

	workflows, err := h.store.ListWorkflows(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт новый workflow.
// POST /api/v1/workflows
//
// Новый workflow по умолчанию inactive: включается явно через /status.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	now := h.now().UTC()
	wf := &domain.Workflow{
		ID:             uuid.New(),
		OrganizationID: req.OrganizationID,
		Status:         domain.WorkflowStatusInactive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	req.apply(wf)

	if err := h.validateWorkflow(wf); err != nil {
		ValidationFailed(w, err)
		return
	}

	if err := h.store.CreateWorkflow(r.Context(), wf); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	h.logger.Info("workflow created",
		"workflow_id", wf.ID,
		"trigger_type", wf.TriggerType,
		"status", wf.Status,
	)
	Created(w, WorkflowFromDomain(*wf))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	wf, err := h.store.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// UpdateWorkflow заменяет определение workflow.
// PUT /api/v1/workflows/{id}
//
// Счётчики и организация не меняются. Уже созданные execution logs
// продолжают работу по новому определению; приостановленные запуски,
// чей cursor больше не указывает на шаг, завершаются с ошибкой.
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	wf, err := h.store.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	req := WorkflowRequest{OrganizationID: wf.OrganizationID}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.OrganizationID != wf.OrganizationID {
		BadRequest(w, "organization_id cannot be changed")
		return
	}

	req.apply(wf)
	wf.UpdatedAt = h.now().UTC()

	if err := h.validateWorkflow(wf); err != nil {
		ValidationFailed(w, err)
		return
	}

	if err := h.store.UpdateWorkflow(r.Context(), wf); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	h.logger.Info("workflow updated", "workflow_id", wf.ID)
	Success(w, WorkflowFromDomain(*wf))
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
//
// Сообщения удалённого workflow остаются в очереди, но consumer их не отправляет.
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	if err := h.store.DeleteWorkflow(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	h.logger.Info("workflow deleted", "workflow_id", id)
	NoContent(w)
}

// SetWorkflowStatus включает или выключает workflow.
// PUT /api/v1/workflows/{id}/status
//
// Включение повторно проверяет определение: workflow могли выключить
// из-за ошибки планирования, и без исправления он снова упадёт.
func (h *Handler) SetWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	var req SetStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	wf, err := h.store.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Status == domain.WorkflowStatusActive {
		if err := h.validateWorkflow(wf); err != nil {
			ValidationFailed(w, err)
			return
		}
	}

	if err := h.store.SetWorkflowStatus(r.Context(), id, req.Status); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}
	wf.Status = req.Status

	h.logger.Info("workflow status changed", "workflow_id", id, "status", req.Status)
	Success(w, WorkflowFromDomain(*wf))
}

// validateWorkflow проверяет определение по каталогу триггеров и реестру действий.
func (h *Handler) validateWorkflow(wf *domain.Workflow) error {
	var steps engine.StepValidator
	if h.actions != nil {
		steps = h.actions
	}
	return engine.ValidateWorkflow(wf, h.catalog, steps)
}
