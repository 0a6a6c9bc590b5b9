package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/types"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidField  = errors.New("invalid field")
)

// Backend identifies a storage backend.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendGorm   Backend = "database"
	BackendMongo  Backend = "mongo"
)

// Store persists workflows, their graph documents, and action records.
//
// Graph documents are opaque to the store except for referential validation
// on save: the editor owns their content and pushes full snapshots
// (write-backs), the store returns the last successfully written one.
type Store interface {
	// CreateWorkflow persists a new workflow. An empty ID is assigned.
	CreateWorkflow(ctx context.Context, wf *types.Workflow) error

	// GetWorkflow retrieves a workflow by ID (without its graph document).
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)

	// ListWorkflows returns all workflows in a workspace.
	ListWorkflows(ctx context.Context, workspaceID string) ([]*types.Workflow, error)

	// UpdateWorkflowFields applies a scoped partial update. Allowed fields:
	// title, description, status. Unknown fields fail with ErrInvalidField.
	UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error

	// DeleteWorkflow removes a workflow, its graph, and its actions.
	DeleteWorkflow(ctx context.Context, id string) error

	// GetGraph returns the persisted graph document for a workflow, or
	// ErrNotFound when none has ever been saved.
	GetGraph(ctx context.Context, workflowID string) (*graph.Snapshot, error)

	// SaveGraph persists a full graph snapshot, replacing the previous one.
	SaveGraph(ctx context.Context, workflowID string, snap *graph.Snapshot) error

	// CreateAction persists a new action record and assigns its ID. It
	// enforces the per-workflow node cap (graph.ErrNodeLimit).
	CreateAction(ctx context.Context, action *types.Action) error

	// GetAction retrieves an action record by ID.
	GetAction(ctx context.Context, id string) (*types.Action, error)

	// DeleteAction removes an action record.
	DeleteAction(ctx context.Context, id string) error

	// UpdateActionFields applies a scoped partial update. Allowed fields:
	// title, type, configured. Unknown fields fail with ErrInvalidField.
	UpdateActionFields(ctx context.Context, id string, fields map[string]any) error

	// CountActions returns the number of action records in a workflow.
	CountActions(ctx context.Context, workflowID string) (int64, error)

	// RecordActionEvent increments an action's event counters.
	RecordActionEvent(ctx context.Context, id string, failed bool) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// workflowFields is the whitelist for UpdateWorkflowFields.
var workflowFields = map[string]struct{}{
	"title":       {},
	"description": {},
	"status":      {},
}

// actionFields is the whitelist for UpdateActionFields.
var actionFields = map[string]struct{}{
	"title":      {},
	"type":       {},
	"configured": {},
}

// ValidateWorkflowFields rejects updates touching fields outside the
// workflow whitelist, and status values outside online/offline.
func ValidateWorkflowFields(fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty update", ErrInvalidField)
	}
	for k, v := range fields {
		if _, ok := workflowFields[k]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidField, k)
		}
		if k == "status" {
			s, ok := v.(string)
			if !ok || !types.WorkflowStatus(s).Valid() {
				return fmt.Errorf("%w: status %v", ErrInvalidField, v)
			}
		}
	}
	return nil
}

// ValidateActionFields rejects updates touching fields outside the action
// whitelist.
func ValidateActionFields(fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty update", ErrInvalidField)
	}
	for k := range fields {
		if _, ok := actionFields[k]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidField, k)
		}
	}
	return nil
}
