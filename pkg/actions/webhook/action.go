// Package webhook provides the webhook action executor: an outbound HTTP
// call carrying the instance context as its JSON payload.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultDelay    = 2 * time.Second
)

type ActionFactory struct {
	client *http.Client
}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{client: &http.Client{}}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeWebhook
}

func (f *ActionFactory) Create(config map[string]any) (actions.Executor, error) {
	url, _ := config["url"].(string)
	method, _ := config["method"].(string)

	if url == "" {
		return nil, errors.New("webhook requires 'url'")
	}

	method = strings.ToUpper(method)
	switch method {
	case http.MethodPost, http.MethodGet, http.MethodPut:
	case "":
		method = http.MethodPost
	default:
		return nil, fmt.Errorf("webhook method must be POST, GET or PUT, got %q", method)
	}

	return &WebhookAction{
		URL:      url,
		Method:   method,
		Timeout:  defaultTimeout,
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		client:   f.client,
	}, nil
}

// WebhookAction issues the HTTP call with bounded retries: network errors and
// 5xx responses are transient, 4xx responses are permanent.
type WebhookAction struct {
	URL      string
	Method   string
	Timeout  time.Duration
	Attempts int
	Delay    time.Duration

	client *http.Client
}

func (a *WebhookAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "webhook", "url", a.URL, "method", a.Method)

	payload, err := json.Marshal(executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= a.Attempts; attempt++ {
		if attempt > 1 {
			logger.Info("Retrying webhook", "attempt", attempt, "max_attempts", a.Attempts)

			select {
			case <-ctx.Done():
				return nil, actions.Transient(ctx.Err())
			case <-time.After(a.Delay * time.Duration(attempt-1)):
			}
		}

		result, err := a.issue(ctx, payload)
		if err == nil {
			logger.Info("Webhook delivered", "status_code", result["status_code"])

			return result, nil
		}

		if !actions.IsTransient(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, actions.Transient(fmt.Errorf("webhook failed after %d attempts: %w", a.Attempts, lastErr))
}

func (a *WebhookAction) issue(ctx context.Context, payload []byte) (map[string]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	var body io.Reader
	if a.Method != http.MethodGet {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, a.Method, a.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, actions.Transient(fmt.Errorf("webhook request failed: %w", err))
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, actions.Transient(fmt.Errorf("failed to read webhook response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, actions.Transient(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(responseBody),
	}, nil
}
