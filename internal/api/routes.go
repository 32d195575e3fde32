package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API на mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(),
		Observe(h.logger),
		Recovery(h.logger),
	)

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		// Workflows
		{"GET /api/v1/workflows", h.ListWorkflows},
		{"POST /api/v1/workflows", h.CreateWorkflow},
		{"GET /api/v1/workflows/{id}", h.GetWorkflow},
		{"PUT /api/v1/workflows/{id}", h.UpdateWorkflow},
		{"DELETE /api/v1/workflows/{id}", h.DeleteWorkflow},
		{"PUT /api/v1/workflows/{id}/status", h.SetWorkflowStatus},
		{"POST /api/v1/workflows/{id}/messages/reprocess", h.ReprocessWorkflowMessages},

		// Executions
		{"GET /api/v1/executions", h.ListExecutions},
		{"GET /api/v1/executions/{id}", h.GetExecution},

		// Messages
		{"GET /api/v1/messages", h.ListMessages},
		{"GET /api/v1/messages/{id}", h.GetMessage},
		{"POST /api/v1/messages/{id}/reprocess", h.ReprocessMessage},

		// Events
		{"POST /api/v1/events", h.ReceiveEvent},

		// Catalog
		{"GET /api/v1/triggers", h.ListTriggers},
		{"GET /api/v1/actions", h.ListActions},
	}

	for _, rt := range routes {
		mux.Handle(rt.pattern, chain(rt.handler))
	}
}
