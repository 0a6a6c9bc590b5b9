package canvas

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/types"
)

// PanelState is the selection state of the property panel.
type PanelState int

const (
	// PanelLoading is shown until workflow metadata arrives.
	PanelLoading PanelState = iota
	// PanelWorkflowMetadata shows the workflow's own metadata form whenever
	// nothing is selected and metadata is loaded.
	PanelWorkflowMetadata
	// PanelNodeSelected shows the selected node's configuration form.
	PanelNodeSelected
)

func (s PanelState) String() string {
	switch s {
	case PanelWorkflowMetadata:
		return "workflow_metadata"
	case PanelNodeSelected:
		return "node_selected"
	default:
		return "loading"
	}
}

// Panel owns the property panel's selection state and field commits. Each
// field commits independently as a scoped partial update; there is no
// cross-field transaction. A successful workflow field commit invalidates
// the locally cached workflow copy so the next read refetches.
type Panel struct {
	workflowID string
	api        StoreClient
	logger     *zap.Logger

	mu       sync.Mutex
	workflow *types.Workflow
	selected string
}

// NewPanel creates a panel in the loading state. Call Load to fetch the
// workflow metadata.
func NewPanel(workflowID string, api StoreClient, logger *zap.Logger) *Panel {
	return &Panel{
		workflowID: workflowID,
		api:        api,
		logger: logger.With(
			zap.String("component", "property_panel"),
			zap.String("workflow_id", workflowID),
		),
	}
}

// Load fetches and caches the workflow metadata.
func (p *Panel) Load(ctx context.Context) error {
	wf, err := p.api.GetWorkflow(ctx, p.workflowID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.workflow = wf
	p.mu.Unlock()
	return nil
}

// State reports the current panel state. A selected node always wins; with
// nothing selected the workflow metadata form shows once metadata is loaded.
func (p *Panel) State() PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected != "" {
		return PanelNodeSelected
	}
	if p.workflow != nil {
		return PanelWorkflowMetadata
	}
	return PanelLoading
}

// Select switches the panel to the given node's configuration form.
func (p *Panel) Select(actionID string) {
	p.mu.Lock()
	p.selected = actionID
	p.mu.Unlock()
}

// Deselect returns the panel to the workflow metadata form.
func (p *Panel) Deselect() {
	p.mu.Lock()
	p.selected = ""
	p.mu.Unlock()
}

// Selected returns the currently selected action id, empty when none.
func (p *Panel) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Workflow returns the cached workflow metadata, refetching when a commit
// invalidated the copy.
func (p *Panel) Workflow(ctx context.Context) (*types.Workflow, error) {
	p.mu.Lock()
	cached := p.workflow
	p.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	if err := p.Load(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workflow, nil
}

// CommitWorkflowField saves one workflow metadata field. On success the
// cached copy is dropped so subsequent reads are consistent.
func (p *Panel) CommitWorkflowField(ctx context.Context, field string, value any) error {
	if err := p.api.UpdateWorkflowFields(ctx, p.workflowID, map[string]any{field: value}); err != nil {
		return err
	}
	p.mu.Lock()
	p.workflow = nil
	p.mu.Unlock()
	return nil
}

// CommitNodeField saves one field of the selected node's configuration.
func (p *Panel) CommitNodeField(ctx context.Context, field string, value any) error {
	p.mu.Lock()
	selected := p.selected
	p.mu.Unlock()
	if selected == "" {
		return types.NewError(types.ErrInvalidRequest, "no node selected")
	}
	return p.api.UpdateActionFields(ctx, selected, map[string]any{field: value})
}

// clear resets selection and cached metadata. The session calls it on close.
func (p *Panel) clear() {
	p.mu.Lock()
	p.selected = ""
	p.workflow = nil
	p.mu.Unlock()
}
