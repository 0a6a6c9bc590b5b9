package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/client"
	"github.com/tideflow-io/tideflow/graph"
)

// ErrInvalidDropPayload is returned when a dropped payload does not decode
// into a valid DropPayload. The drop is rejected; no node is created.
var ErrInvalidDropPayload = errors.New("invalid drop payload")

// DropPayload is the decoded form of a palette tile dropped on the canvas.
type DropPayload struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// ParseDropPayload strictly decodes dropped JSON. Unknown fields and a
// missing type are rejected rather than trusted.
func ParseDropPayload(data []byte) (DropPayload, error) {
	var p DropPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return DropPayload{}, fmt.Errorf("%w: %v", ErrInvalidDropPayload, err)
	}
	if p.Type == "" {
		return DropPayload{}, fmt.Errorf("%w: type is required", ErrInvalidDropPayload)
	}
	return p, nil
}

// =============================================================================
// Action node factory
// =============================================================================

// Factory converts dropped palette items into persisted action records and
// corresponding canvas nodes. A node appears locally only after the server
// returns the record id; a failed creation never leaves a partial node.
type Factory struct {
	adapter *Adapter
	api     StoreClient
	logger  *zap.Logger
}

// NewFactory creates a factory bound to one adapter.
func NewFactory(adapter *Adapter, api StoreClient, logger *zap.Logger) *Factory {
	return &Factory{
		adapter: adapter,
		api:     api,
		logger:  logger.With(zap.String("component", "node_factory")),
	}
}

// Drop handles a palette drop at a screen position. The node cap is checked
// before any request is issued; at the cap the drop is rejected and the node
// count does not change. The node's position is the drop point translated
// into flow coordinates under the current viewport.
func (f *Factory) Drop(ctx context.Context, payload DropPayload, screen graph.Position) (*graph.Node, error) {
	if payload.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidDropPayload)
	}
	if f.adapter.NodeCount() >= graph.MaxNodes {
		return nil, fmt.Errorf("%w: workflow already holds %d nodes", graph.ErrNodeLimit, graph.MaxNodes)
	}

	action, err := f.api.CreateAction(ctx, f.adapter.workflowID, client.CreateActionRequest{
		Type:  payload.Type,
		Title: payload.Title,
	})
	if err != nil {
		f.logger.Warn("action creation failed, drop discarded",
			zap.String("type", payload.Type),
			zap.Error(err),
		)
		return nil, err
	}
	if action.ID == "" {
		return nil, fmt.Errorf("action creation returned no id")
	}

	node := graph.Node{
		ID:         action.ID,
		Type:       graph.NodeTypeAction,
		ActionType: payload.Type,
		Title:      action.Title,
		Position:   f.adapter.Viewport().ToFlow(screen),
	}
	if err := f.adapter.addNode(node); err != nil {
		return nil, err
	}

	f.logger.Debug("node created",
		zap.String("action_id", action.ID),
		zap.String("type", payload.Type),
	)
	return &node, nil
}
