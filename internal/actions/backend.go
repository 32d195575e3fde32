package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
)

// Backend — внешняя бизнес-система (задачи, поля сущностей, счета, AI).
//
// Движок только оркестрирует: фактический I/O выполняет Backend.
type Backend interface {
	Perform(ctx context.Context, op string, organizationID string, params map[string]any) (map[string]any, error)
}

// backendSchemas — JSON-схемы конфигурации делегируемых действий.
var backendSchemas = map[string]map[string]any{
	domain.SubtypeCreateTask: objectSchema([]string{"title"}, map[string]any{
		"title":       nonEmptyString,
		"description": anyString,
		"assignee_id": anyString,
		"due_in_days": map[string]any{"type": []any{"integer", "string"}},
	}),
	domain.SubtypeUpdateField: objectSchema([]string{"field"}, map[string]any{
		"entity_type": map[string]any{"type": "string", "enum": []any{"job", "client", "estimate", "invoice"}},
		"entity_id":   anyString,
		"field":       nonEmptyString,
		"value":       map[string]any{},
	}),
	domain.SubtypeTagClient: objectSchema([]string{"tag"}, map[string]any{
		"tag":       nonEmptyString,
		"client_id": anyString,
	}),
	domain.SubtypeCreateInvoice: objectSchema(nil, map[string]any{
		"job_id":   anyString,
		"due_days": map[string]any{"type": []any{"integer", "string"}},
		"notes":    anyString,
	}),
	domain.SubtypeScheduleJob: objectSchema([]string{"title"}, map[string]any{
		"title":          nonEmptyString,
		"client_id":      anyString,
		"start_in_days":  map[string]any{"type": []any{"integer", "string"}},
		"duration_hours": map[string]any{"type": []any{"number", "string"}},
	}),
	domain.SubtypeAIGenerate: objectSchema([]string{"prompt"}, map[string]any{
		"prompt":     nonEmptyString,
		"output_key": anyString,
		"max_tokens": map[string]any{"type": "integer", "minimum": 1},
	}),
}

// BackendOperations возвращает подтипы, делегируемые Backend.
func BackendOperations() []string {
	return []string{
		domain.SubtypeCreateTask,
		domain.SubtypeUpdateField,
		domain.SubtypeTagClient,
		domain.SubtypeCreateInvoice,
		domain.SubtypeScheduleJob,
		domain.SubtypeAIGenerate,
	}
}

// BackendAction — действие, выполняемое внешней системой.
//
// К конфигурации добавляются идентификаторы из контекста:
// entity_type/entity_id триггера и client_id, если они не заданы явно.
type BackendAction struct {
	op      string
	backend Backend
}

// NewBackendAction создаёт делегируемое действие.
func NewBackendAction(op string, backend Backend) *BackendAction {
	return &BackendAction{op: op, backend: backend}
}

// Type возвращает подтип шага.
func (a *BackendAction) Type() string {
	return a.op
}

// Validate проверяет конфигурацию по схеме подтипа.
func (a *BackendAction) Validate(config map[string]any) error {
	schema, ok := backendSchemas[a.op]
	if !ok {
		return nil
	}
	return validateSchema(a.op, schema, config)
}

// Execute передаёт действие в Backend.
func (a *BackendAction) Execute(ctx context.Context, req *Request) (*Response, error) {
	if a.backend == nil {
		return nil, fmt.Errorf("%s: backend is not configured", a.op)
	}

	params := make(map[string]any, len(req.Config)+4)
	for k, v := range req.Config {
		params[k] = v
	}
	enrichParams(params, req.Data)
	if req.Execution != nil {
		params["execution_id"] = req.Execution.ID.String()
	}
	if req.Workflow != nil {
		params["workflow_id"] = req.Workflow.ID.String()
	}

	outputs, err := a.backend.Perform(ctx, a.op, req.OrganizationID(), params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", a.op, err)
	}

	return NewResponse(outputs), nil
}

// enrichParams дополняет параметры идентификаторами из контекста.
func enrichParams(params map[string]any, data engine.Context) {
	setDefault := func(key, path string) {
		if s, _ := params[key].(string); s != "" {
			return
		}
		if v, ok := engine.Lookup(data, path); ok && v != nil {
			params[key] = engine.FormatValue(v)
		}
	}

	setDefault("entity_type", "event.entity_type")
	setDefault("entity_id", "trigger_data.id")
	setDefault("client_id", "client.id")
	setDefault("job_id", "job.id")
}

// HTTPBackend — Backend поверх HTTP API бизнес-системы.
//
// POST {BaseURL}/{op} с телом {"organization_id": "...", "params": {...}};
// JSON-ответ становится outputs шага.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// Значения по умолчанию.
const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 1024 * 1024 // 1 MB
)

// NewHTTPBackend создаёт HTTPBackend.
func NewHTTPBackend(baseURL, token string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Perform выполняет операцию.
func (b *HTTPBackend) Perform(ctx context.Context, op, organizationID string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"organization_id": organizationID,
		"params":          params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}

	outputs := make(map[string]any)
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &outputs); err != nil {
			// не-JSON ответ сохраняем как строку
			outputs = map[string]any{"body": string(respBody)}
		}
	}
	outputs["status_code"] = resp.StatusCode

	return outputs, nil
}

// HTTPError — ошибка HTTP запроса.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// LogBackend — Backend, который только логирует операции.
// Используется, когда BACKEND_URL не задан.
type LogBackend struct {
	logger *slog.Logger
}

// NewLogBackend создаёт LogBackend.
func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{logger: logger}
}

// Perform логирует операцию и возвращает её параметры.
func (b *LogBackend) Perform(ctx context.Context, op, organizationID string, params map[string]any) (map[string]any, error) {
	b.logger.InfoContext(ctx, "backend operation",
		"op", op,
		"organization_id", organizationID,
		"params", params,
	)
	return map[string]any{"op": op, "logged": true}, nil
}
