package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEventHub_BroadcastToSubscriber(t *testing.T) {
	hub := NewEventHub(nil, zap.NewNop())
	defer hub.Close()

	sub, ok := hub.subscribe("wf-1")
	require.True(t, ok)

	hub.Broadcast(Event{Kind: EventNodeAdded, WorkflowID: "wf-1", ActionID: "a1"})

	select {
	case ev := <-sub.events:
		assert.Equal(t, EventNodeAdded, ev.Kind)
		assert.Equal(t, "wf-1", ev.WorkflowID)
		assert.Equal(t, "a1", ev.ActionID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestEventHub_FiltersByWorkflow(t *testing.T) {
	hub := NewEventHub(nil, zap.NewNop())
	defer hub.Close()

	scoped, ok := hub.subscribe("wf-1")
	require.True(t, ok)
	all, ok := hub.subscribe("")
	require.True(t, ok)

	hub.Broadcast(Event{Kind: EventGraphSaved, WorkflowID: "wf-2"})

	select {
	case <-scoped.events:
		t.Fatal("scoped subscriber received event for another workflow")
	default:
	}

	select {
	case ev := <-all.events:
		assert.Equal(t, "wf-2", ev.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber missed event")
	}
}

func TestEventHub_DropsWhenSubscriberFull(t *testing.T) {
	hub := NewEventHub(nil, zap.NewNop())
	defer hub.Close()

	sub, ok := hub.subscribe("wf-1")
	require.True(t, ok)

	// fill the buffer and then some; the overflow must not block
	for i := 0; i < cap(sub.events)+5; i++ {
		hub.Broadcast(Event{Kind: EventNodeAdded, WorkflowID: "wf-1"})
	}

	assert.Len(t, sub.events, cap(sub.events))
}

func TestEventHub_NilSafe(t *testing.T) {
	var hub *EventHub
	assert.NotPanics(t, func() {
		hub.Broadcast(Event{Kind: EventNodeAdded, WorkflowID: "wf-1"})
	})
}

func TestEventHub_CloseRejectsSubscribers(t *testing.T) {
	hub := NewEventHub(nil, zap.NewNop())

	sub, ok := hub.subscribe("wf-1")
	require.True(t, ok)

	hub.Close()

	_, open := <-sub.events
	assert.False(t, open)

	_, ok = hub.subscribe("wf-1")
	assert.False(t, ok)

	// broadcasting after close is a no-op
	assert.NotPanics(t, func() {
		hub.Broadcast(Event{Kind: EventNodeAdded, WorkflowID: "wf-1"})
	})
}

func TestEventHub_WebSocketSubscribe(t *testing.T) {
	hub := NewEventHub(nil, zap.NewNop())
	defer hub.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workflows/{id}/events", hub.HandleSubscribe)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/v1/workflows/wf-1/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// wait for the subscription to register before broadcasting
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subscribers) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(Event{Kind: EventNodeRemoved, WorkflowID: "wf-1", ActionID: "a9"})

	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, EventNodeRemoved, ev.Kind)
	assert.Equal(t, "wf-1", ev.WorkflowID)
	assert.Equal(t, "a9", ev.ActionID)
}
