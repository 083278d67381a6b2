package kestra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	requestTimeout = 10 * time.Second
	maxRedirects   = 5
)

// ErrNotConfigured is returned by every call when the client was built
// without a base URL. No network I/O happens in that case.
var ErrNotConfigured = errors.New("KESTRA_API_URL is not configured")

type Execution struct {
	ID    string `json:"executionId"`
	State string `json:"state"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, client *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}
}

// NewHTTPClient builds the client used for all Kestra calls: fixed
// request timeout, fixed redirect-follow limit, traced transport.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

type triggerResponse struct {
	ID    string `json:"id"`
	State struct {
		Current string `json:"current"`
	} `json:"state"`
}

func (c *Client) Trigger(ctx context.Context, workflowID, namespace string, inputs map[string]any) (*Execution, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for name, value := range inputs {
		field, err := encodeField(value)
		if err != nil {
			return nil, fmt.Errorf("encode input %s: %w", name, err)
		}
		if err := form.WriteField(name, field); err != nil {
			return nil, fmt.Errorf("write input %s: %w", name, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/executions/%s/%s", c.baseURL, namespace, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to trigger workflow", "error", err, "workflow_id", workflowID)
		return nil, fmt.Errorf("workflow trigger failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("workflow trigger failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := remoteMessage(respBody, resp.Status)
		c.logger.Error("workflow trigger rejected", "status", resp.StatusCode, "message", msg, "workflow_id", workflowID)
		return nil, fmt.Errorf("workflow trigger failed: %s", msg)
	}

	var trigger triggerResponse
	if err := json.Unmarshal(respBody, &trigger); err != nil {
		return nil, fmt.Errorf("workflow trigger failed: %w", err)
	}

	return &Execution{ID: trigger.ID, State: trigger.State.Current}, nil
}

func (c *Client) Status(ctx context.Context, executionID string) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/api/v1/executions/%s", c.baseURL, executionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to get workflow status", "error", err, "execution_id", executionID)
		return nil, fmt.Errorf("status check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("status check failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := remoteMessage(respBody, resp.Status)
		c.logger.Error("workflow status rejected", "status", resp.StatusCode, "message", msg, "execution_id", executionID)
		return nil, fmt.Errorf("status check failed: %s", msg)
	}

	return json.RawMessage(respBody), nil
}

// encodeField renders a workflow input as a form field: timestamps as
// RFC 3339, strings as-is, everything else as JSON text.
func encodeField(value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func remoteMessage(body []byte, fallback string) string {
	var remote struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &remote); err == nil && remote.Message != "" {
		return remote.Message
	}
	return fallback
}
