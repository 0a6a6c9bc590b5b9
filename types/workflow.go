package types

import (
	"time"

	"github.com/tideflow-io/tideflow/graph"
)

// WorkflowStatus is the publication state of a workflow.
type WorkflowStatus string

const (
	WorkflowOnline  WorkflowStatus = "online"
	WorkflowOffline WorkflowStatus = "offline"
)

// Valid reports whether the status is a known value.
func (s WorkflowStatus) Valid() bool {
	return s == WorkflowOnline || s == WorkflowOffline
}

// Workflow is a stored workflow definition. The graph document is owned by
// the store and mirrored by editors; it may be nil when the workflow has
// never been saved with a canvas.
type Workflow struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      WorkflowStatus  `json:"status"`
	Graph       *graph.Snapshot `json:"graph,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Action is a persisted action record backing a canvas node. The store
// assigns the ID on creation; the canvas only renders a node once that ID
// exists.
type Action struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Configured bool              `json:"configured"`
	Events     graph.EventCounts `json:"events"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
