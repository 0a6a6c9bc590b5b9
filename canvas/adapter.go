package canvas

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/client"
	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/types"
)

// StoreClient is the capability surface the editor engine needs from the
// workflow API. *client.Client satisfies it; tests substitute fakes.
type StoreClient interface {
	FetchGraph(ctx context.Context, workspaceID, workflowID string) (*graph.Snapshot, error)
	UpdateGraph(ctx context.Context, workspaceID, workflowID string, snap *graph.Snapshot) error
	CreateAction(ctx context.Context, workflowID string, req client.CreateActionRequest) (*types.Action, error)
	DeleteAction(ctx context.Context, id string) error
	UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error
	UpdateActionFields(ctx context.Context, id string, fields map[string]any) error
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)
}

var _ StoreClient = (*client.Client)(nil)

// =============================================================================
// Canvas state adapter
// =============================================================================

// Adapter holds the in-memory graph state of one open workflow canvas and
// keeps the server copy synchronized. Every structural mutation and drag end
// schedules an asynchronous write-back of the full current snapshot;
// write-back failure is logged only, never surfaced, and not retried. The
// canvas may drift from the server copy until the next successful write.
type Adapter struct {
	workspaceID string
	workflowID  string
	api         StoreClient
	logger      *zap.Logger

	mu   sync.Mutex
	snap *graph.Snapshot

	// wg tracks in-flight write-backs so Close can drain them.
	wg           sync.WaitGroup
	writeTimeout time.Duration
}

// NewAdapter creates an adapter for one workflow. The canvas starts empty
// until Hydrate runs.
func NewAdapter(workspaceID, workflowID string, api StoreClient, logger *zap.Logger) *Adapter {
	return &Adapter{
		workspaceID: workspaceID,
		workflowID:  workflowID,
		api:         api,
		logger: logger.With(
			zap.String("component", "canvas_adapter"),
			zap.String("workflow_id", workflowID),
		),
		snap:         graph.NewSnapshot(),
		writeTimeout: 15 * time.Second,
	}
}

// Hydrate fetches the persisted graph and replaces local state with it. A
// workflow whose canvas was never saved starts empty; a failed fetch is
// logged and also leaves the canvas empty.
func (a *Adapter) Hydrate(ctx context.Context) {
	snap, err := a.api.FetchGraph(ctx, a.workspaceID, a.workflowID)
	if err != nil {
		if !client.IsNotFound(err) {
			a.logger.Error("graph fetch failed, starting empty", zap.Error(err))
		}
		snap = graph.NewSnapshot()
	}

	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()
}

// Snapshot returns a copy of the current local graph state.
func (a *Adapter) Snapshot() *graph.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Clone()
}

// NodeCount returns the current number of nodes.
func (a *Adapter) NodeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snap.Nodes)
}

// Viewport returns the current viewport.
func (a *Adapter) Viewport() graph.Viewport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Viewport
}

// SetViewport records a new pan/zoom state and schedules a write-back so a
// reload restores the view.
func (a *Adapter) SetViewport(v graph.Viewport) {
	a.mu.Lock()
	a.snap.Viewport = v
	a.mu.Unlock()
	a.scheduleWriteback()
}

// addNode appends a node created by the factory and schedules a write-back.
func (a *Adapter) addNode(n graph.Node) error {
	a.mu.Lock()
	if err := a.snap.AddNode(n); err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()
	a.scheduleWriteback()
	return nil
}

// Connect appends exactly one edge from source to target carrying the
// default arrow marker and schedules a write-back.
func (a *Adapter) Connect(source, target string) (graph.Edge, error) {
	a.mu.Lock()
	edge, err := a.snap.Connect(source, target)
	a.mu.Unlock()
	if err != nil {
		return graph.Edge{}, err
	}
	a.scheduleWriteback()
	return edge, nil
}

// RemoveNodes removes the given nodes by id, cascading the removal of every
// edge that references them, then schedules a write-back. The backing action
// records are deleted asynchronously; a failed record deletion is logged
// only.
func (a *Adapter) RemoveNodes(ids ...string) {
	a.mu.Lock()
	var present []string
	for _, id := range ids {
		if a.snap.HasNode(id) {
			present = append(present, id)
		}
	}
	a.snap.RemoveNodes(present...)
	a.mu.Unlock()

	if len(present) == 0 {
		return
	}
	a.scheduleWriteback()

	for _, id := range present {
		id := id
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
			defer cancel()
			if err := a.api.DeleteAction(ctx, id); err != nil {
				a.logger.Warn("action record deletion failed",
					zap.String("action_id", id),
					zap.Error(err),
				)
			}
		}()
	}
}

// RemoveEdges removes the given edges by id and schedules a write-back.
func (a *Adapter) RemoveEdges(ids ...string) {
	a.mu.Lock()
	before := len(a.snap.Edges)
	a.snap.RemoveEdges(ids...)
	changed := len(a.snap.Edges) != before
	a.mu.Unlock()
	if changed {
		a.scheduleWriteback()
	}
}

// MoveNode records a node's position at drag end and schedules a write-back.
// Position is otherwise ephemeral; only the drag-end position persists.
func (a *Adapter) MoveNode(id string, pos graph.Position) bool {
	a.mu.Lock()
	moved := a.snap.MoveNode(id, pos)
	a.mu.Unlock()
	if moved {
		a.scheduleWriteback()
	}
	return moved
}

// scheduleWriteback pushes the full current snapshot to the server without
// blocking the caller. Write-backs are not queued or de-duplicated; rapid
// successive mutations can overlap and the last-arriving write wins.
func (a *Adapter) scheduleWriteback() {
	a.mu.Lock()
	snap := a.snap.Clone()
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		defer cancel()
		if err := a.api.UpdateGraph(ctx, a.workspaceID, a.workflowID, snap); err != nil {
			a.logger.Warn("graph write-back failed",
				zap.Int("nodes", len(snap.Nodes)),
				zap.Int("edges", len(snap.Edges)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until all in-flight write-backs and record deletions finish.
func (a *Adapter) Wait() {
	a.wg.Wait()
}
