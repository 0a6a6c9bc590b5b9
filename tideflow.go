// Package tideflow provides a top-level convenience entry point for opening
// a workflow canvas session with minimal boilerplate.
//
// Usage:
//
//	import "github.com/tideflow-io/tideflow"
//
//	session, err := tideflow.OpenSession(ctx, "http://localhost:8080", "ws-1", "wf-1",
//	    tideflow.WithAPIKey("secret"),
//	    tideflow.WithLayoutPath("~/.config/tideflow/layout.json"),
//	)
//
// This is a thin wrapper around [client.New] and [canvas.NewSession]; use the
// underlying packages directly when you need finer control.
package tideflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/canvas"
	"github.com/tideflow-io/tideflow/client"
)

// Option configures the session opened by [OpenSession].
type Option func(*options)

type options struct {
	apiKey     string
	timeout    time.Duration
	layoutPath string
	logger     *zap.Logger
}

// WithAPIKey sets the X-API-Key header sent on every request.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLayoutPath persists panel layout preferences to the given JSON file.
// Without it, layout changes are kept in memory only.
func WithLayoutPath(path string) Option {
	return func(o *options) { o.layoutPath = path }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// OpenSession connects to a Tideflow server and opens a builder session for
// one workflow: it hydrates the canvas from the stored graph document and
// loads the workflow metadata into the property panel.
func OpenSession(ctx context.Context, baseURL, workspaceID, workflowID string, opts ...Option) (*canvas.Session, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	cfg := client.DefaultConfig(baseURL)
	cfg.APIKey = o.apiKey
	if o.timeout > 0 {
		cfg.Timeout = o.timeout
	}

	api, err := client.New(cfg, o.logger)
	if err != nil {
		return nil, err
	}

	var layoutStore canvas.LayoutStore
	if o.layoutPath != "" {
		layoutStore = &canvas.FileLayoutStore{Path: o.layoutPath}
	}

	session := canvas.NewSession(workspaceID, workflowID, api, layoutStore, o.logger)
	if err := session.Open(ctx); err != nil {
		return nil, err
	}
	return session, nil
}
