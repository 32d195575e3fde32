package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBody    = 64 * 1024
)

// HTTPProvider отправляет сообщения в HTTP API шлюза.
//
// POST {Endpoint} с JSON-телом Message. Ответ 2xx с полем "id"
// (или "message_id") даёт ProviderMessageID. ID сообщения передаётся
// в заголовке Idempotency-Key, чтобы шлюз мог отбросить повтор.
type HTTPProvider struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPProvider создаёт HTTPProvider.
func NewHTTPProvider(endpoint, token string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPProvider{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type gatewayResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// Send реализует Provider.
func (p *HTTPProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID.String())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return SendResult{}, fmt.Errorf("read response body: %w", err)
	}

	var parsed gatewayResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := parsed.Error
		if detail == "" {
			detail = string(bytes.TrimSpace(respBody))
		}
		return SendResult{}, fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, detail)
	}

	id := parsed.ID
	if id == "" {
		id = parsed.MessageID
	}

	return SendResult{ProviderMessageID: id, Status: parsed.Status}, nil
}
