package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/types"
)

// Memory is an in-memory Store for development and tests.
type Memory struct {
	mu        sync.RWMutex
	workflows map[string]*types.Workflow
	graphs    map[string]*graph.Snapshot
	actions   map[string]*types.Action
	closed    bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows: make(map[string]*types.Workflow),
		graphs:    make(map[string]*graph.Snapshot),
		actions:   make(map[string]*types.Action),
	}
}

func (m *Memory) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if _, exists := m.workflows[wf.ID]; exists {
		return fmt.Errorf("workflow %s: %w", wf.ID, ErrAlreadyExists)
	}
	if wf.Status == "" {
		wf.Status = types.WorkflowOffline
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	cp := *wf
	cp.Graph = nil
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *Memory) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	wf, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	cp := *wf
	return &cp, nil
}

func (m *Memory) ListWorkflows(ctx context.Context, workspaceID string) ([]*types.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]*types.Workflow, 0)
	for _, wf := range m.workflows {
		if workspaceID == "" || wf.WorkspaceID == workspaceID {
			cp := *wf
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error {
	if err := ValidateWorkflowFields(fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	wf, ok := m.workflows[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	for k, v := range fields {
		switch k {
		case "title":
			if s, ok := v.(string); ok {
				wf.Title = s
			}
		case "description":
			if s, ok := v.(string); ok {
				wf.Description = s
			}
		case "status":
			wf.Status = types.WorkflowStatus(v.(string))
		}
	}
	wf.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.workflows[id]; !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	delete(m.workflows, id)
	delete(m.graphs, id)
	for aid, a := range m.actions {
		if a.WorkflowID == id {
			delete(m.actions, aid)
		}
	}
	return nil
}

func (m *Memory) GetGraph(ctx context.Context, workflowID string) (*graph.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	snap, ok := m.graphs[workflowID]
	if !ok {
		return nil, fmt.Errorf("graph for workflow %s: %w", workflowID, ErrNotFound)
	}
	return snap.Clone(), nil
}

func (m *Memory) SaveGraph(ctx context.Context, workflowID string, snap *graph.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	wf, ok := m.workflows[workflowID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	m.graphs[workflowID] = snap.Clone()
	wf.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CreateAction(ctx context.Context, action *types.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.workflows[action.WorkflowID]; !ok {
		return fmt.Errorf("workflow %s: %w", action.WorkflowID, ErrNotFound)
	}
	var count int
	for _, a := range m.actions {
		if a.WorkflowID == action.WorkflowID {
			count++
		}
	}
	if count >= graph.MaxNodes {
		return fmt.Errorf("workflow %s: %w", action.WorkflowID, graph.ErrNodeLimit)
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now
	cp := *action
	m.actions[action.ID] = &cp
	return nil
}

func (m *Memory) GetAction(ctx context.Context, id string) (*types.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	a, ok := m.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) DeleteAction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.actions[id]; !ok {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	delete(m.actions, id)
	return nil
}

func (m *Memory) UpdateActionFields(ctx context.Context, id string, fields map[string]any) error {
	if err := ValidateActionFields(fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	a, ok := m.actions[id]
	if !ok {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	for k, v := range fields {
		switch k {
		case "title":
			if s, ok := v.(string); ok {
				a.Title = s
			}
		case "type":
			if s, ok := v.(string); ok {
				a.Type = s
			}
		case "configured":
			if b, ok := v.(bool); ok {
				a.Configured = b
			}
		}
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CountActions(ctx context.Context, workflowID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	var count int64
	for _, a := range m.actions {
		if a.WorkflowID == workflowID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) RecordActionEvent(ctx context.Context, id string, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	a, ok := m.actions[id]
	if !ok {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	a.Events.Total++
	if failed {
		a.Events.Failures++
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
