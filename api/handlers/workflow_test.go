package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/store"
	"github.com/tideflow-io/tideflow/types"
)

func newWorkflowHandler(t *testing.T) (*WorkflowHandler, store.Store) {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { s.Close(context.Background()) })
	return NewWorkflowHandler(s, nil, nil, zap.NewNop()), s
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func seedWorkflow(t *testing.T, s store.Store, workspaceID string) *types.Workflow {
	t.Helper()
	wf := &types.Workflow{WorkspaceID: workspaceID, Title: "Phishing triage"}
	require.NoError(t, s.CreateWorkflow(context.Background(), wf))
	return wf
}

func TestWorkflowHandler_Create(t *testing.T) {
	h, _ := newWorkflowHandler(t)

	req := jsonRequest(http.MethodPost, "/api/v1/workspaces/ws-1/workflows", `{"title":"Alert enrichment"}`)
	req.SetPathValue("ws", "ws-1")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "ws-1", data["workspace_id"])
	assert.Equal(t, "offline", data["status"])
}

func TestWorkflowHandler_Create_MissingTitle(t *testing.T) {
	h, _ := newWorkflowHandler(t)

	req := jsonRequest(http.MethodPost, "/api/v1/workspaces/ws-1/workflows", `{}`)
	req.SetPathValue("ws", "ws-1")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}

func TestWorkflowHandler_List(t *testing.T) {
	h, s := newWorkflowHandler(t)
	seedWorkflow(t, s, "ws-1")
	seedWorkflow(t, s, "ws-1")
	seedWorkflow(t, s, "ws-2")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws-1/workflows", nil)
	req.SetPathValue("ws", "ws-1")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Len(t, resp.Data.([]interface{}), 2)
}

func TestWorkflowHandler_Get_NotFound(t *testing.T) {
	h, _ := newWorkflowHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestWorkflowHandler_Patch(t *testing.T) {
	h, s := newWorkflowHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	req := jsonRequest(http.MethodPatch, "/api/v1/workflows/"+wf.ID, `{"status":"online"}`)
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandlePatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowOnline, got.Status)
}

func TestWorkflowHandler_Patch_UnknownFieldRejected(t *testing.T) {
	h, s := newWorkflowHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	req := jsonRequest(http.MethodPatch, "/api/v1/workflows/"+wf.ID, `{"owner":"someone"}`)
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandlePatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}

func TestWorkflowHandler_Delete(t *testing.T) {
	h, s := newWorkflowHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/workflows/"+wf.ID, nil)
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := s.GetWorkflow(context.Background(), wf.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWorkflowHandler_GetGraph_NeverSaved(t *testing.T) {
	h, s := newWorkflowHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws-1/workflows/"+wf.ID+"/graph", nil)
	req.SetPathValue("ws", "ws-1")
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandleGetGraph(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowHandler_PutThenGetGraph(t *testing.T) {
	h, s := newWorkflowHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	snap := graph.NewSnapshot()
	require.NoError(t, snap.AddNode(graph.Node{ID: "n1", Type: graph.NodeTypeAction, Position: graph.Position{X: 10, Y: 20}}))
	require.NoError(t, snap.AddNode(graph.Node{ID: "n2", Type: graph.NodeTypeAction}))
	_, err := snap.Connect("n1", "n2")
	require.NoError(t, err)
	snap.Viewport = graph.Viewport{X: 10, Y: 5, Zoom: 1}

	body, err := json.Marshal(snap)
	require.NoError(t, err)

	put := jsonRequest(http.MethodPut, "/api/v1/workspaces/ws-1/workflows/"+wf.ID+"/graph", string(body))
	put.SetPathValue("ws", "ws-1")
	put.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandlePutGraph(rec, put)
	require.Equal(t, http.StatusOK, rec.Code)

	get := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws-1/workflows/"+wf.ID+"/graph", nil)
	get.SetPathValue("ws", "ws-1")
	get.SetPathValue("id", wf.ID)
	rec2 := httptest.NewRecorder()
	h.HandleGetGraph(rec2, get)
	require.Equal(t, http.StatusOK, rec2.Code)

	got, err := s.GetGraph(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 2)
	assert.Len(t, got.Edges, 1)
	assert.Equal(t, graph.Viewport{X: 10, Y: 5, Zoom: 1}, got.Viewport)
}

func TestWorkflowHandler_PutGraph_DanglingEdgeRejected(t *testing.T) {
	h, s := newWorkflowHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	body := `{"nodes":[{"id":"n1","type":"action"}],"edges":[{"id":"e1","source":"n1","target":"ghost"}],"viewport":{"x":0,"y":0,"zoom":1}}`
	put := jsonRequest(http.MethodPut, "/api/v1/workspaces/ws-1/workflows/"+wf.ID+"/graph", body)
	put.SetPathValue("ws", "ws-1")
	put.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandlePutGraph(rec, put)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DANGLING_EDGE", resp.Error.Code)

	// nothing persisted
	_, err := s.GetGraph(context.Background(), wf.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
