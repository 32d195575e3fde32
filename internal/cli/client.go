package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID                string           `json:"id"`
	OrganizationID    string           `json:"organization_id"`
	Name              string           `json:"name"`
	TriggerType       string           `json:"trigger_type"`
	TriggerConditions []map[string]any `json:"trigger_conditions"`
	Steps             []map[string]any `json:"steps"`
	Status            string           `json:"status"`
	DeliveryWindow    map[string]any   `json:"delivery_window"`
	MultiChannel      map[string]any   `json:"multi_channel_config,omitempty"`
	ExecutionCount    int              `json:"execution_count"`
	SuccessCount      int              `json:"success_count"`
	CreatedAt         string           `json:"created_at"`
	UpdatedAt         string           `json:"updated_at"`
}

// ActionRecord — запись о выполненном шаге.
type ActionRecord struct {
	StepID     string         `json:"step_id"`
	Kind       string         `json:"kind"`
	Subtype    string         `json:"subtype,omitempty"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	ExecutedAt string         `json:"executed_at"`
}

// ExecutionResponse — execution log из API.
type ExecutionResponse struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"`
	OrganizationID  string         `json:"organization_id"`
	Status          string         `json:"status"`
	TriggerData     map[string]any `json:"trigger_data,omitempty"`
	ActionsExecuted []ActionRecord `json:"actions_executed"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Suspended       bool           `json:"suspended"`
	ResumeAt        string         `json:"resume_at,omitempty"`
	CreatedAt       string         `json:"created_at"`
	StartedAt       string         `json:"started_at,omitempty"`
	CompletedAt     string         `json:"completed_at,omitempty"`
}

// MessageResponse — сообщение очереди из API.
type MessageResponse struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	ExecutionID       string         `json:"execution_id"`
	StepID            string         `json:"step_id"`
	MessageType       string         `json:"message_type"`
	Recipient         string         `json:"recipient"`
	Subject           string         `json:"subject,omitempty"`
	Content           string         `json:"content"`
	ScheduledAt       string         `json:"scheduled_at"`
	Status            string         `json:"status"`
	ChannelRole       string         `json:"channel_role,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	SentAt            string         `json:"sent_at,omitempty"`
	CreatedAt         string         `json:"created_at"`
}

// EventResponse — итог обработки события.
type EventResponse struct {
	EventType    string   `json:"event_type"`
	Queued       bool     `json:"queued"`
	Duplicate    bool     `json:"duplicate,omitempty"`
	Unknown      bool     `json:"unknown_trigger,omitempty"`
	Candidates   int      `json:"candidates"`
	Matched      int      `json:"matched"`
	Failed       int      `json:"failed,omitempty"`
	ExecutionIDs []string `json:"execution_ids"`
}

// TriggerResponse — тип триггера.
type TriggerResponse struct {
	Type        string `json:"type"`
	EntityType  string `json:"entity_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ActionsResponse — подтипы шагов и операторы условий.
type ActionsResponse struct {
	Subtypes  []string `json:"subtypes"`
	Operators []string `json:"operators"`
}

// ReprocessResponse — сколько сообщений возвращено в очередь.
type ReprocessResponse struct {
	Requeued int `json:"requeued"`
}

// --- Request types ---

// EventRequest — событие для POST /events.
type EventRequest struct {
	ID             string         `json:"id,omitempty"`
	EntityType     string         `json:"entity_type,omitempty"`
	EventType      string         `json:"event_type"`
	OrganizationID string         `json:"organization_id"`
	Snapshot       map[string]any `json:"snapshot"`
}

// ListOpts — параметры фильтрации списков.
type ListOpts struct {
	OrganizationID string
	WorkflowID     string
	ExecutionID    string
	TriggerType    string
	Status         string
	Limit          int
}

func (o ListOpts) values() url.Values {
	params := url.Values{}
	set := func(key, value string) {
		if value != "" {
			params.Set(key, value)
		}
	}
	set("organization_id", o.OrganizationID)
	set("workflow_id", o.WorkflowID)
	set("execution_id", o.ExecutionID)
	set("trigger_type", o.TriggerType)
	set("status", o.Status)
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}
	return params
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		StepID  string `json:"step_id"`
		Field   string `json:"field"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int
	Code    string
	Message string
	StepID  string
	Field   string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.StepID != "" {
		msg += " (step " + e.StepID + ")"
	}
	return msg
}

// --- Client ---

// Client — HTTP-клиент для Fieldflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает workflows.
func (c *Client) ListWorkflows(opts ListOpts) ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", opts.values(), &workflows)
	return workflows, err
}

// CreateWorkflow создаёт workflow из JSON-определения.
func (c *Client) CreateWorkflow(definition json.RawMessage) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", definition, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &wf)
	return &wf, err
}

// UpdateWorkflow заменяет определение workflow.
func (c *Client) UpdateWorkflow(id string, definition json.RawMessage) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.put("/api/v1/workflows/"+id, definition, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// SetWorkflowStatus включает или выключает workflow.
func (c *Client) SetWorkflowStatus(id, status string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	body := map[string]string{"status": status}
	err := c.put("/api/v1/workflows/"+id+"/status", body, &wf)
	return &wf, err
}

// ReprocessWorkflowMessages возвращает в очередь failed сообщения workflow.
func (c *Client) ReprocessWorkflowMessages(id string) (int, error) {
	var res ReprocessResponse
	err := c.post("/api/v1/workflows/"+id+"/messages/reprocess", nil, &res)
	return res.Requeued, err
}

// ListTriggers возвращает типы триггеров.
func (c *Client) ListTriggers() ([]TriggerResponse, error) {
	var triggers []TriggerResponse
	err := c.list("/api/v1/triggers", nil, &triggers)
	return triggers, err
}

// ListActions возвращает подтипы шагов и операторы условий.
func (c *Client) ListActions() (*ActionsResponse, error) {
	var res ActionsResponse
	err := c.get("/api/v1/actions", &res)
	return &res, err
}

// --- Executions ---

// ListExecutions возвращает execution logs.
func (c *Client) ListExecutions(opts ListOpts) ([]ExecutionResponse, error) {
	var logs []ExecutionResponse
	err := c.list("/api/v1/executions", opts.values(), &logs)
	return logs, err
}

// GetExecution возвращает execution log по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &exec)
	return &exec, err
}

// --- Messages ---

// ListMessages возвращает сообщения очереди.
func (c *Client) ListMessages(opts ListOpts) ([]MessageResponse, error) {
	var messages []MessageResponse
	err := c.list("/api/v1/messages", opts.values(), &messages)
	return messages, err
}

// GetMessage возвращает сообщение по ID.
func (c *Client) GetMessage(id string) (*MessageResponse, error) {
	var msg MessageResponse
	err := c.get("/api/v1/messages/"+id, &msg)
	return &msg, err
}

// ReprocessMessage возвращает failed сообщение в очередь.
func (c *Client) ReprocessMessage(id string) error {
	return c.post("/api/v1/messages/"+id+"/reprocess", nil, nil)
}

// --- Events ---

// SendEvent отправляет событие.
func (c *Client) SendEvent(req EventRequest) (*EventResponse, error) {
	var res EventResponse
	err := c.post("/api/v1/events", req, &res)
	return &res, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
		StepID:  er.Error.StepID,
		Field:   er.Error.Field,
	}
}
