package canvas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/types"
)

func newTestPanel(t *testing.T, fake *fakeStore) *Panel {
	t.Helper()
	return NewPanel("wf-1", fake, zap.NewNop())
}

func TestPanel_SelectionStateMachine(t *testing.T) {
	fake := newFakeStore()
	p := newTestPanel(t, fake)

	// loading until metadata arrives
	assert.Equal(t, PanelLoading, p.State())

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, PanelWorkflowMetadata, p.State())

	p.Select("a1")
	assert.Equal(t, PanelNodeSelected, p.State())
	assert.Equal(t, "a1", p.Selected())

	p.Deselect()
	assert.Equal(t, PanelWorkflowMetadata, p.State())
	assert.Empty(t, p.Selected())
}

func TestPanel_SelectionWinsWhileLoading(t *testing.T) {
	fake := newFakeStore()
	p := newTestPanel(t, fake)

	p.Select("a1")
	assert.Equal(t, PanelNodeSelected, p.State())

	p.Deselect()
	assert.Equal(t, PanelLoading, p.State())
}

func TestPanel_CommitWorkflowFieldInvalidatesCache(t *testing.T) {
	fake := newFakeStore()
	p := newTestPanel(t, fake)
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, 1, fake.getWorkflowCalls)

	// cached read, no refetch
	_, err := p.Workflow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.getWorkflowCalls)

	require.NoError(t, p.CommitWorkflowField(context.Background(), "title", "Renamed"))
	require.Len(t, fake.workflowPatches, 1)
	assert.Equal(t, map[string]any{"title": "Renamed"}, fake.workflowPatches[0])

	// the commit dropped the cached copy, so this read refetches
	_, err = p.Workflow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.getWorkflowCalls)
}

func TestPanel_EachFieldCommitsIndependently(t *testing.T) {
	fake := newFakeStore()
	p := newTestPanel(t, fake)
	require.NoError(t, p.Load(context.Background()))

	require.NoError(t, p.CommitWorkflowField(context.Background(), "title", "A"))
	require.NoError(t, p.CommitWorkflowField(context.Background(), "description", "B"))

	require.Len(t, fake.workflowPatches, 2)
	assert.Equal(t, map[string]any{"title": "A"}, fake.workflowPatches[0])
	assert.Equal(t, map[string]any{"description": "B"}, fake.workflowPatches[1])
}

func TestPanel_CommitNodeField(t *testing.T) {
	fake := newFakeStore()
	p := newTestPanel(t, fake)

	p.Select("a1")
	require.NoError(t, p.CommitNodeField(context.Background(), "configured", true))

	require.Len(t, fake.actionPatches["a1"], 1)
	assert.Equal(t, map[string]any{"configured": true}, fake.actionPatches["a1"][0])
}

func TestPanel_CommitNodeField_NoSelection(t *testing.T) {
	fake := newFakeStore()
	p := newTestPanel(t, fake)

	err := p.CommitNodeField(context.Background(), "configured", true)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestPanel_LoadFailure(t *testing.T) {
	fake := newFakeStore()
	fake.getWorkflowErr = types.NewError(types.ErrStoreUnavailable, "down")
	p := newTestPanel(t, fake)

	assert.Error(t, p.Load(context.Background()))
	assert.Equal(t, PanelLoading, p.State())
}
