package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/internal/metrics"
)

// =============================================================================
// Graph event stream
// =============================================================================

// EventKind identifies a graph change event.
type EventKind string

const (
	EventNodeAdded   EventKind = "node_added"
	EventNodeRemoved EventKind = "node_removed"
	EventGraphSaved  EventKind = "graph_saved"
)

// Event is a graph change notification delivered to subscribers. Concurrent
// editors use it to notice that their local copy has drifted.
type Event struct {
	Kind       EventKind `json:"kind"`
	WorkflowID string    `json:"workflow_id"`
	ActionID   string    `json:"action_id,omitempty"`
	Nodes      int       `json:"nodes,omitempty"`
	Edges      int       `json:"edges,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type subscriber struct {
	workflowID string // empty subscribes to every workflow
	events     chan Event
}

// EventHub fans graph change events out to WebSocket subscribers.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	collector   *metrics.Collector
	logger      *zap.Logger
	closed      bool
}

// NewEventHub creates an event hub. collector may be nil.
func NewEventHub(collector *metrics.Collector, logger *zap.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[*subscriber]struct{}),
		collector:   collector,
		logger:      logger.With(zap.String("component", "event_hub")),
	}
}

// Broadcast delivers an event to every matching subscriber. Slow subscribers
// are skipped rather than blocking the sender. Safe on a nil hub.
func (h *EventHub) Broadcast(ev Event) {
	if h == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for sub := range h.subscribers {
		if sub.workflowID != "" && sub.workflowID != ev.WorkflowID {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("kind", string(ev.Kind)),
				zap.String("workflow_id", ev.WorkflowID),
			)
		}
	}

	if h.collector != nil {
		h.collector.RecordEventBroadcast(string(ev.Kind))
	}
}

func (h *EventHub) subscribe(workflowID string) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{
		workflowID: workflowID,
		events:     make(chan Event, 16),
	}
	h.subscribers[sub] = struct{}{}
	if h.collector != nil {
		h.collector.SetEventSubscribers(len(h.subscribers))
	}
	return sub, true
}

func (h *EventHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
	if h.collector != nil {
		h.collector.SetEventSubscribers(len(h.subscribers))
	}
}

// Close disconnects all subscribers and rejects new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.events)
		delete(h.subscribers, sub)
	}
	if h.collector != nil {
		h.collector.SetEventSubscribers(0)
	}
}

// HandleSubscribe serves GET /api/v1/workflows/{id}/events, upgrading to a
// WebSocket that streams graph change events for that workflow.
func (h *EventHub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin is checked by the CORS middleware
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "hub closed")

	workflowID := r.PathValue("id")
	sub, ok := h.subscribe(workflowID)
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unsubscribe(sub)

	h.logger.Debug("subscriber connected", zap.String("workflow_id", workflowID))

	// CloseRead drains incoming frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, open := <-sub.events:
			if !open {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				h.logger.Debug("subscriber write failed", zap.Error(err))
				return
			}
		}
	}
}
