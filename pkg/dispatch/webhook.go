package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const statusUnsubscribed = "unsubscribed"

// HTTPError represents a non-successful webhook response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// WebhookConfig configures a WebhookDispatcher.
type WebhookConfig struct {
	URL        string
	Headers    map[string]string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// WebhookDispatcher POSTs each message as JSON to a delivery service. A 410 Gone response or a
// body of {"status":"unsubscribed"} marks the customer unsubscribed.
type WebhookDispatcher struct {
	config WebhookConfig
	client *http.Client
	logger *slog.Logger
}

func NewWebhookDispatcher(config WebhookConfig, logger *slog.Logger) *WebhookDispatcher {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.Attempts <= 0 {
		config.Attempts = 1
	}

	return &WebhookDispatcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With("module", "webhook_dispatcher"),
	}
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

func (d *WebhookDispatcher) Send(ctx context.Context, msg *Message) (*Result, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= d.config.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.config.RetryDelay):
			}
		}

		result, err := d.post(ctx, payload)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Only server errors and network failures are retried.
		httpErr := &HTTPError{}
		if errors.Is(err, ErrUnsubscribed) || (errors.As(err, &httpErr) && httpErr.StatusCode < 500) {
			break
		}

		d.logger.WarnContext(ctx, "Webhook dispatch failed",
			"attempt", attempt, "execution_id", msg.ExecutionID, "error", err)
	}

	return nil, lastErr
}

func (d *WebhookDispatcher) post(ctx context.Context, payload []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range d.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusGone {
		return nil, ErrUnsubscribed
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var decoded webhookResponse

	if len(bytes.TrimSpace(body)) > 0 {
		err = json.Unmarshal(body, &decoded)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook response: %w", err)
		}
	}

	if decoded.Status == statusUnsubscribed {
		return nil, ErrUnsubscribed
	}

	return &Result{MessageID: decoded.MessageID}, nil
}
