package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/store"
	"github.com/tideflow-io/tideflow/types"
)

// =============================================================================
// Response envelope
// =============================================================================

// Response is the unified API response envelope.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo carries error details inside the envelope.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are out, nothing more to do
		return
	}
}

// WriteSuccess writes a success envelope with status 200.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

// WriteSuccessStatus writes a success envelope with an explicit status.
func WriteSuccessStatus(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError writes an error envelope from a structured error.
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	errorInfo := &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     errorInfo,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage writes a simple error envelope.
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	err := types.NewError(code, message).WithHTTPStatus(status)
	WriteError(w, err, logger)
}

// WriteStoreError maps store and graph errors to API errors.
func WriteStoreError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, types.NewNotFoundError(err.Error()), logger)
	case errors.Is(err, store.ErrAlreadyExists):
		WriteError(w, types.NewError(types.ErrConflict, err.Error()), logger)
	case errors.Is(err, store.ErrInvalidField):
		WriteError(w, types.NewError(types.ErrValidationFailed, err.Error()), logger)
	case errors.Is(err, graph.ErrNodeLimit):
		WriteError(w, types.NewError(types.ErrNodeLimitExceeded, err.Error()), logger)
	case errors.Is(err, graph.ErrUnknownNode):
		WriteError(w, types.NewError(types.ErrDanglingEdge, err.Error()), logger)
	case errors.Is(err, graph.ErrDuplicateNode):
		WriteError(w, types.NewError(types.ErrGraphInvalid, err.Error()), logger)
	case errors.Is(err, store.ErrStoreClosed):
		WriteError(w, types.NewError(types.ErrStoreUnavailable, err.Error()).WithRetryable(true), logger)
	default:
		WriteError(w, types.NewError(types.ErrInternalError, "internal error").WithCause(err), logger)
	}
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx
	case types.ErrInvalidRequest, types.ErrValidationFailed, types.ErrGraphInvalid, types.ErrDanglingEdge:
		return http.StatusBadRequest
	case types.ErrAuthentication, types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrConflict:
		return http.StatusConflict
	case types.ErrNodeLimitExceeded:
		return http.StatusUnprocessableEntity
	case types.ErrRateLimited:
		return http.StatusTooManyRequests

	// 5xx
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrStoreUnavailable, types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrInternalError:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Request validation helpers
// =============================================================================

// DecodeJSONBody decodes a JSON request body, rejecting unknown fields.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType requires application/json.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "application/json; charset=utf-8" {
		err := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteError(w, err, logger)
		return false
	}
	return true
}

// =============================================================================
// Status capturing writer
// =============================================================================

// ResponseWriter wraps http.ResponseWriter to capture the status code.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter creates a capturing writer defaulting to 200.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader records the first status code written.
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write marks the response as written.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
