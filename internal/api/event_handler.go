package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Fieldflow/internal/trigger"
)

// ReceiveEvent принимает событие изменения сущности.
// POST /api/v1/events
//
// С RabbitMQ событие публикуется в events.incoming (202 Accepted),
// без него обрабатывается диспетчером сразу (200 с результатом).
func (h *Handler) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	event := req.toDomain(h.now())

	if h.events != nil {
		if err := h.events.PublishEvent(r.Context(), event); err != nil {
			InternalError(w, h.logger, err)
			return
		}
		Accepted(w, EventResponse{EventType: event.EventType, Queued: true})
		return
	}

	if h.dispatcher == nil {
		Unavailable(w, "event processing is not configured")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		if errors.Is(err, trigger.ErrInvalidEvent) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, EventFromResult(result))
}
