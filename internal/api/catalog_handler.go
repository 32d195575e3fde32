package api

import (
	"net/http"

	"github.com/shaiso/Fieldflow/internal/engine"
)

// ListTriggers возвращает известные типы триггеров.
// GET /api/v1/triggers
func (h *Handler) ListTriggers(w http.ResponseWriter, _ *http.Request) {
	kinds := h.catalog.Kinds()

	result := make([]TriggerResponse, len(kinds))
	for i, k := range kinds {
		result[i] = TriggerFromKind(k)
	}

	List(w, result, len(result))
}

// ActionsResponse — подтипы шагов и операторы условий.
type ActionsResponse struct {
	Subtypes  []string `json:"subtypes"`
	Operators []string `json:"operators"`
}

// ListActions возвращает зарегистрированные подтипы action/delay шагов.
// GET /api/v1/actions
func (h *Handler) ListActions(w http.ResponseWriter, _ *http.Request) {
	subtypes := []string{}
	if h.actions != nil {
		subtypes = h.actions.Types()
	}

	Success(w, ActionsResponse{
		Subtypes:  subtypes,
		Operators: engine.Operators(),
	})
}
