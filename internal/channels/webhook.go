package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type webhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

type webhookPayload struct {
	Event      EventType `json:"event"`
	Service    Ref       `json:"service"`
	Dependency *Ref      `json:"dependency,omitempty"`
	OldStatus  string    `json:"oldStatus"`
	NewStatus  string    `json:"newStatus"`
	Severity   string    `json:"severity"`
	Timestamp  string    `json:"timestamp"`
	URL        string    `json:"url,omitempty"`
}

var allowedWebhookMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// WebhookSender POSTs/PUTs/PATCHes the fixed dependency-event JSON schema
// to an operator-configured URL with optional custom headers.
type WebhookSender struct {
	Client *http.Client
}

// NewWebhookSender builds a WebhookSender with the fixed 10s send timeout.
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{Client: &http.Client{Timeout: SendTimeout}}
}

func (w *WebhookSender) Send(ctx context.Context, config []byte, event Event) Result {
	var cfg webhookConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return failure("invalid webhook channel config: " + err.Error())
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	if !allowedWebhookMethods[method] {
		return failure("unsupported method: " + cfg.Method)
	}

	payload := webhookPayload{
		Event:      event.Type,
		Service:    event.Service,
		Dependency: event.Dependency,
		OldStatus:  event.OldStatus,
		NewStatus:  event.NewStatus,
		Severity:   event.Severity,
		Timestamp:  event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		URL:        event.URL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure("failed to encode webhook payload: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return failure("failed to build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failure("timed out")
		}
		return failure(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return failure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(excerpt)))
	}
	return success()
}
