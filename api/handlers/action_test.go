package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/store"
	"github.com/tideflow-io/tideflow/types"
)

func newActionHandler(t *testing.T) (*ActionHandler, store.Store) {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { s.Close(context.Background()) })
	return NewActionHandler(s, nil, nil, zap.NewNop()), s
}

func seedAction(t *testing.T, s store.Store, workflowID string) *types.Action {
	t.Helper()
	action := &types.Action{WorkflowID: workflowID, Type: "http_request", Title: "Fetch indicators"}
	require.NoError(t, s.CreateAction(context.Background(), action))
	return action
}

func TestActionHandler_Create(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	req := jsonRequest(http.MethodPost, "/api/v1/workflows/"+wf.ID+"/actions", `{"type":"http_request","title":"Fetch indicators"}`)
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, wf.ID, data["workflow_id"])
	assert.Equal(t, "http_request", data["type"])

	count, err := s.CountActions(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestActionHandler_Create_MissingType(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	req := jsonRequest(http.MethodPost, "/api/v1/workflows/"+wf.ID+"/actions", `{"title":"no type"}`)
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}

func TestActionHandler_Create_UnknownWorkflow(t *testing.T) {
	h, _ := newActionHandler(t)

	req := jsonRequest(http.MethodPost, "/api/v1/workflows/missing/actions", `{"type":"http_request"}`)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionHandler_Create_NodeLimit(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")

	for i := 0; i < graph.MaxNodes; i++ {
		action := &types.Action{WorkflowID: wf.ID, Type: "http_request", Title: fmt.Sprintf("action %d", i)}
		require.NoError(t, s.CreateAction(context.Background(), action))
	}

	req := jsonRequest(http.MethodPost, "/api/v1/workflows/"+wf.ID+"/actions", `{"type":"http_request","title":"one too many"}`)
	req.SetPathValue("id", wf.ID)
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NODE_LIMIT_EXCEEDED", resp.Error.Code)

	count, err := s.CountActions(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(graph.MaxNodes), count)
}

func TestActionHandler_Get(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")
	action := seedAction(t, s, wf.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/actions/"+action.ID, nil)
	req.SetPathValue("id", action.ID)
	rec := httptest.NewRecorder()
	h.HandleGet(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, action.ID, data["id"])
}

func TestActionHandler_Delete(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")
	action := seedAction(t, s, wf.ID)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/actions/"+action.ID, nil)
	req.SetPathValue("id", action.ID)
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := s.GetAction(context.Background(), action.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestActionHandler_Delete_NotFound(t *testing.T) {
	h, _ := newActionHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/actions/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionHandler_Patch(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")
	action := seedAction(t, s, wf.ID)

	req := jsonRequest(http.MethodPatch, "/api/v1/actions/"+action.ID, `{"title":"Renamed","configured":true}`)
	req.SetPathValue("id", action.ID)
	rec := httptest.NewRecorder()
	h.HandlePatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetAction(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.Configured)
}

func TestActionHandler_Patch_InvalidFieldRejected(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")
	action := seedAction(t, s, wf.ID)

	req := jsonRequest(http.MethodPatch, "/api/v1/actions/"+action.ID, `{"workflow_id":"other"}`)
	req.SetPathValue("id", action.ID)
	rec := httptest.NewRecorder()
	h.HandlePatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)

	got, err := s.GetAction(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.WorkflowID)
}

func TestActionHandler_RecordEvent(t *testing.T) {
	h, s := newActionHandler(t)
	wf := seedWorkflow(t, s, "ws-1")
	action := seedAction(t, s, wf.ID)

	for _, failed := range []bool{false, false, true} {
		body := fmt.Sprintf(`{"failed":%v}`, failed)
		req := jsonRequest(http.MethodPost, "/api/v1/actions/"+action.ID+"/events", body)
		req.SetPathValue("id", action.ID)
		rec := httptest.NewRecorder()
		h.HandleRecordEvent(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	got, err := s.GetAction(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Events.Total)
	assert.Equal(t, int64(1), got.Events.Failures)
}
