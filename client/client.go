package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/types"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the API client.
type Config struct {
	// BaseURL is the service root, e.g. "http://localhost:8080".
	BaseURL string
	// APIKey, when set, is sent as the X-API-Key header.
	APIKey string
	// Timeout is the default timeout for HTTP requests.
	Timeout time.Duration
	// Headers are additional headers to include in every request.
	Headers map[string]string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// Client is a typed HTTP client for the workflow canvas API. All methods
// decode the service's response envelope and surface failures as
// *types.Error carrying the service error code.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client. logger may be nil.
func New(config *Config, logger *zap.Logger) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With(zap.String("component", "api_client")),
	}, nil
}

// =============================================================================
// Envelope decoding
// =============================================================================

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

// do issues a request and decodes the envelope. A nil out discards the data
// field. Failures come back as *types.Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return types.NewError(types.ErrInvalidRequest, "encode request body").WithCause(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "build request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "request failed").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "read response").
			WithCause(err).
			WithRetryable(true)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.NewError(types.ErrInternalError,
			fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)).WithCause(err)
	}

	if !env.Success || resp.StatusCode >= 400 {
		if env.Error != nil {
			return types.NewError(types.ErrorCode(env.Error.Code), env.Error.Message).
				WithHTTPStatus(resp.StatusCode).
				WithRetryable(env.Error.Retryable)
		}
		return types.NewError(types.ErrInternalError,
			fmt.Sprintf("request failed with status %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return types.NewError(types.ErrInternalError, "decode response data").WithCause(err)
		}
	}
	return nil
}

// IsNotFound reports whether err is a NOT_FOUND service error.
func IsNotFound(err error) bool {
	return types.GetErrorCode(err) == types.ErrNotFound
}

// =============================================================================
// Workflows
// =============================================================================

// CreateWorkflowRequest is the create payload.
type CreateWorkflowRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateWorkflow creates a workflow in the given workspace.
func (c *Client) CreateWorkflow(ctx context.Context, workspaceID string, req CreateWorkflowRequest) (*types.Workflow, error) {
	var wf types.Workflow
	path := fmt.Sprintf("/api/v1/workspaces/%s/workflows", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodPost, path, req, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetWorkflow fetches a workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var wf types.Workflow
	path := "/api/v1/workflows/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListWorkflows lists the workflows of a workspace.
func (c *Client) ListWorkflows(ctx context.Context, workspaceID string) ([]*types.Workflow, error) {
	var out []*types.Workflow
	path := fmt.Sprintf("/api/v1/workspaces/%s/workflows", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateWorkflowFields issues a scoped partial update. Only title,
// description and status are accepted by the service.
func (c *Client) UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error {
	path := "/api/v1/workflows/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPatch, path, fields, nil)
}

// DeleteWorkflow deletes a workflow, its graph and its actions.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	path := "/api/v1/workflows/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// Graph documents
// =============================================================================

// FetchGraph retrieves the persisted graph snapshot of a workflow. A workflow
// whose canvas was never saved yields a NOT_FOUND error (check IsNotFound).
func (c *Client) FetchGraph(ctx context.Context, workspaceID, workflowID string) (*graph.Snapshot, error) {
	var snap graph.Snapshot
	path := fmt.Sprintf("/api/v1/workspaces/%s/workflows/%s/graph",
		url.PathEscape(workspaceID), url.PathEscape(workflowID))
	if err := c.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// UpdateGraph persists the full snapshot, replacing whatever was stored.
func (c *Client) UpdateGraph(ctx context.Context, workspaceID, workflowID string, snap *graph.Snapshot) error {
	path := fmt.Sprintf("/api/v1/workspaces/%s/workflows/%s/graph",
		url.PathEscape(workspaceID), url.PathEscape(workflowID))
	return c.do(ctx, http.MethodPut, path, snap, nil)
}

// =============================================================================
// Actions
// =============================================================================

// CreateActionRequest is the action create payload.
type CreateActionRequest struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// CreateAction creates a persisted action record under a workflow. The
// returned action carries the server-assigned id. Creating the 51st action
// of a workflow fails with NODE_LIMIT_EXCEEDED.
func (c *Client) CreateAction(ctx context.Context, workflowID string, req CreateActionRequest) (*types.Action, error) {
	var action types.Action
	path := fmt.Sprintf("/api/v1/workflows/%s/actions", url.PathEscape(workflowID))
	if err := c.do(ctx, http.MethodPost, path, req, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// GetAction fetches an action record by id.
func (c *Client) GetAction(ctx context.Context, id string) (*types.Action, error) {
	var action types.Action
	path := "/api/v1/actions/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// DeleteAction deletes an action record.
func (c *Client) DeleteAction(ctx context.Context, id string) error {
	path := "/api/v1/actions/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateActionFields issues a scoped partial update. Only title, type and
// configured are accepted by the service.
func (c *Client) UpdateActionFields(ctx context.Context, id string, fields map[string]any) error {
	path := "/api/v1/actions/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPatch, path, fields, nil)
}

// RecordActionEvent increments an action's event counters.
func (c *Client) RecordActionEvent(ctx context.Context, id string, failed bool) error {
	path := fmt.Sprintf("/api/v1/actions/%s/events", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, map[string]bool{"failed": failed}, nil)
}
