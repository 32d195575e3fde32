package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Fieldflow/internal/engine"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// ErrorCode — машиночитаемый код ошибки в ответе.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeValidation    ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — тело ответа с ошибкой: {"error": {...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — описание ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// StepID и Field заполняются для ошибок валидации определения.
	StepID string `json:"step_id,omitempty"`
	Field  string `json:"field,omitempty"`
}

// DataResponse — тело успешного ответа: {"data": ...}.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — тело ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON пишет value с указанным статусом.
func JSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		// заголовок уже отправлен, остаётся только лог
		slog.Default().Warn("failed to encode response", "status", status, "error", err)
	}
}

// Success — 200 с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created — 201 с созданным ресурсом.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// Accepted — 202, обработка продолжится асинхронно.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// NoContent — 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List — 200 со списком и общим числом элементов.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error пишет ошибку с явным кодом.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func InvalidState(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, message)
}

func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError логирует err и отвечает 500 без деталей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// ValidationFailed отвечает 400 на определение, не прошедшее проверку.
// Для engine.ValidationError добавляет step_id и field.
func ValidationFailed(w http.ResponseWriter, err error) {
	detail := ErrorDetail{Code: ErrCodeValidation, Message: err.Error()}

	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		detail.StepID = ve.StepID
		detail.Field = ve.Field
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		detail.Message = describeFieldErrors(fieldErrs)
		detail.Field = fieldErrs[0].Field()
	}

	JSON(w, http.StatusBadRequest, ErrorResponse{Error: detail})
}

func describeFieldErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), rule))
	}
	return strings.Join(parts, "; ")
}

// storeErrors — ответы на ошибки хранилища; остальные становятся 500.
var storeErrors = []struct {
	target error
	status int
	code   ErrorCode
}{
	{gateway.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{gateway.ErrAlreadyExists, http.StatusConflict, ErrCodeConflict},
	{gateway.ErrInvalidState, http.StatusUnprocessableEntity, ErrCodeInvalidState},
}

// HandleRepoError пишет ответ для ошибки хранилища и возвращает true,
// если err != nil. Для not found используется notFoundMsg.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	for _, se := range storeErrors {
		if !errors.Is(err, se.target) {
			continue
		}
		message := err.Error()
		if se.target == gateway.ErrNotFound {
			message = notFoundMsg
		}
		Error(w, se.status, se.code, message)
		return true
	}

	InternalError(w, logger, err)
	return true
}
