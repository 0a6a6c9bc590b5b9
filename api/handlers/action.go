package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/internal/metrics"
	"github.com/tideflow-io/tideflow/store"
	"github.com/tideflow-io/tideflow/types"
)

// =============================================================================
// Action handler
// =============================================================================

// ActionHandler serves action record endpoints.
type ActionHandler struct {
	store     store.Store
	collector *metrics.Collector
	hub       *EventHub
	logger    *zap.Logger
}

// NewActionHandler creates an action handler. collector and hub may be nil.
func NewActionHandler(s store.Store, collector *metrics.Collector, hub *EventHub, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{
		store:     s,
		collector: collector,
		hub:       hub,
		logger:    logger.With(zap.String("component", "action_handler")),
	}
}

func (h *ActionHandler) recordOp(operation string, err error) {
	if h.collector == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.collector.RecordActionOp(operation, status)
}

// CreateActionRequest is the create payload.
type CreateActionRequest struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// HandleCreate serves POST /api/v1/workflows/{id}/actions. The node cap is
// enforced here: the request creating the 51st action of a workflow is
// rejected with NODE_LIMIT_EXCEEDED and nothing is persisted.
func (h *ActionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req CreateActionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		h.recordOp("create", err)
		return
	}
	if req.Type == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "type is required", h.logger)
		h.recordOp("create", types.NewError(types.ErrValidationFailed, "type is required"))
		return
	}

	action := &types.Action{
		WorkflowID: r.PathValue("id"),
		Type:       req.Type,
		Title:      req.Title,
	}
	err := h.store.CreateAction(r.Context(), action)
	h.recordOp("create", err)
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	h.logger.Info("action created",
		zap.String("action_id", action.ID),
		zap.String("workflow_id", action.WorkflowID),
		zap.String("type", action.Type),
	)
	h.hub.Broadcast(Event{
		Kind:       EventNodeAdded,
		WorkflowID: action.WorkflowID,
		ActionID:   action.ID,
	})

	WriteSuccessStatus(w, http.StatusCreated, action)
}

// HandleGet serves GET /api/v1/actions/{id}.
func (h *ActionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	action, err := h.store.GetAction(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, action)
}

// HandleDelete serves DELETE /api/v1/actions/{id}.
func (h *ActionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// fetch first so the broadcast can carry the workflow id
	action, err := h.store.GetAction(r.Context(), id)
	if err != nil {
		h.recordOp("delete", err)
		WriteStoreError(w, err, h.logger)
		return
	}

	err = h.store.DeleteAction(r.Context(), id)
	h.recordOp("delete", err)
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	h.logger.Info("action deleted",
		zap.String("action_id", id),
		zap.String("workflow_id", action.WorkflowID),
	)
	h.hub.Broadcast(Event{
		Kind:       EventNodeRemoved,
		WorkflowID: action.WorkflowID,
		ActionID:   id,
	})

	WriteSuccess(w, map[string]string{"id": id})
}

// HandlePatch serves PATCH /api/v1/actions/{id}. Scoped partial update:
// only title, type and configured are accepted.
func (h *ActionHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var fields map[string]any
	if err := DecodeJSONBody(w, r, &fields, h.logger); err != nil {
		h.recordOp("update", err)
		return
	}
	if len(fields) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "no fields to update", h.logger)
		return
	}

	id := r.PathValue("id")
	err := h.store.UpdateActionFields(r.Context(), id, fields)
	h.recordOp("update", err)
	if err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"id": id})
}

// RecordEventRequest marks an action execution.
type RecordEventRequest struct {
	Failed bool `json:"failed,omitempty"`
}

// HandleRecordEvent serves POST /api/v1/actions/{id}/events, incrementing
// the action's event counters.
func (h *ActionHandler) HandleRecordEvent(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req RecordEventRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id := r.PathValue("id")
	if err := h.store.RecordActionEvent(r.Context(), id, req.Failed); err != nil {
		WriteStoreError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"id": id})
}
