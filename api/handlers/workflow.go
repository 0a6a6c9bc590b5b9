package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/internal/metrics"
	"github.com/tideflow-io/tideflow/store"
	"github.com/tideflow-io/tideflow/types"
)

// =============================================================================
// Workflow handler
// =============================================================================

// WorkflowHandler serves workflow CRUD and graph document endpoints.
type WorkflowHandler struct {
	store     store.Store
	collector *metrics.Collector
	hub       *EventHub
	logger    *zap.Logger
}

// NewWorkflowHandler creates a workflow handler. collector and hub may be nil.
func NewWorkflowHandler(s store.Store, collector *metrics.Collector, hub *EventHub, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		store:     s,
		collector: collector,
		hub:       hub,
		logger:    logger.With(zap.String("component", "workflow_handler")),
	}
}

// CreateWorkflowRequest is the create payload.
type CreateWorkflowRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// HandleCreate serves POST /api/v1/workspaces/{ws}/workflows.
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req CreateWorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Title == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "title is required", h.logger)
		return
	}

	wf := &types.Workflow{
		WorkspaceID: r.PathValue("ws"),
		Title:       req.Title,
		Description: req.Description,
		Status:      types.WorkflowOffline,
	}
	if err := h.store.CreateWorkflow(r.Context(), wf); err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	h.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("workspace_id", wf.WorkspaceID),
	)
	WriteSuccessStatus(w, http.StatusCreated, wf)
}

// HandleList serves GET /api/v1/workspaces/{ws}/workflows.
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.store.ListWorkflows(r.Context(), r.PathValue("ws"))
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, workflows)
}

// HandleGet serves GET /api/v1/workflows/{id}.
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wf, err := h.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, wf)
}

// HandlePatch serves PATCH /api/v1/workflows/{id}. The body is a scoped
// partial update: only title, description and status are accepted.
func (h *WorkflowHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var fields map[string]any
	if err := DecodeJSONBody(w, r, &fields, h.logger); err != nil {
		return
	}
	if len(fields) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "no fields to update", h.logger)
		return
	}

	id := r.PathValue("id")
	if err := h.store.UpdateWorkflowFields(r.Context(), id, fields); err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"id": id})
}

// HandleDelete serves DELETE /api/v1/workflows/{id}.
func (h *WorkflowHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteWorkflow(r.Context(), id); err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	h.logger.Info("workflow deleted", zap.String("workflow_id", id))
	WriteSuccess(w, map[string]string{"id": id})
}

// HandleGetGraph serves GET /api/v1/workspaces/{ws}/workflows/{id}/graph.
// A workflow whose graph was never saved yields NOT_FOUND; the editor treats
// that as an empty canvas.
func (h *WorkflowHandler) HandleGetGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.GetGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, snap)
}

// HandlePutGraph serves PUT /api/v1/workspaces/{ws}/workflows/{id}/graph.
// The body is a full snapshot replacing the stored one. Referential
// integrity and the node cap are validated before persisting.
func (h *WorkflowHandler) HandlePutGraph(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var snap graph.Snapshot
	if err := DecodeJSONBody(w, r, &snap, h.logger); err != nil {
		return
	}

	id := r.PathValue("id")
	start := time.Now()
	err := h.store.SaveGraph(r.Context(), id, &snap)
	if h.collector != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		h.collector.RecordGraphSave(id, status, len(snap.Nodes), time.Since(start))
	}
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	h.logger.Debug("graph saved",
		zap.String("workflow_id", id),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("edges", len(snap.Edges)),
	)
	h.hub.Broadcast(Event{
		Kind:       EventGraphSaved,
		WorkflowID: id,
		Nodes:      len(snap.Nodes),
		Edges:      len(snap.Edges),
	})

	WriteSuccess(w, map[string]string{"id": id})
}
