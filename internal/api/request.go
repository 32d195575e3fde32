package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

const (
	defaultLimit   = 50
	maxLimit       = 500
	maxRequestBody = 1 << 20
)

// decodeJSON читает тело запроса в dst и проверяет validate-теги.
// Возвращает false, если ответ с ошибкой уже отправлен.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		ValidationFailed(w, err)
		return false
	}
	return true
}

// pathID разбирает {id} из пути.
func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, fmt.Sprintf("invalid %s id", what))
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID разбирает необязательный UUID из query.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &id, nil
}

// pagination разбирает limit и offset.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}

	return limit, offset, nil
}
