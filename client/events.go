package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Event is a graph change notification from the event stream.
type Event struct {
	Kind       string    `json:"kind"`
	WorkflowID string    `json:"workflow_id"`
	ActionID   string    `json:"action_id,omitempty"`
	Nodes      int       `json:"nodes,omitempty"`
	Edges      int       `json:"edges,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event kinds emitted by the service.
const (
	EventNodeAdded   = "node_added"
	EventNodeRemoved = "node_removed"
	EventGraphSaved  = "graph_saved"
)

// SubscribeEvents opens the WebSocket event stream for a workflow and
// delivers events on the returned channel until ctx is cancelled or the
// connection drops. The channel is closed when the stream ends.
func (c *Client) SubscribeEvents(ctx context.Context, workflowID string) (<-chan Event, error) {
	wsURL := toWebSocketURL(c.config.BaseURL) +
		fmt.Sprintf("/api/v1/workflows/%s/events", url.PathEscape(workflowID))

	opts := &websocket.DialOptions{}
	if c.config.APIKey != "" || len(c.config.Headers) > 0 {
		header := make(map[string][]string)
		if c.config.APIKey != "" {
			header["X-API-Key"] = []string{c.config.APIKey}
		}
		for k, v := range c.config.Headers {
			header[k] = []string{v}
		}
		opts.HTTPHeader = header
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return nil, fmt.Errorf("subscribe events: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var ev Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("event stream closed", zap.Error(err))
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func toWebSocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
