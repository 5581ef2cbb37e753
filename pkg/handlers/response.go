package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/cloudsync"
)

// ApiResponse is the envelope of every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ConflictResponse lists the (label, source) pairs that blocked a write.
type ConflictResponse struct {
	Error     string                    `json:"error"`
	Message   string                    `json:"message"`
	Conflicts []apperrors.ClaimConflict `json:"conflicts"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error to its HTTP status.
// Unrecognized errors are logged and reported as 500 with fallbackCode.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, fallbackCode string, err error) {
	var (
		status   int
		code     string
		conflict *apperrors.ConflictError
	)

	switch {
	case errors.As(err, &conflict):
		if werr := WriteJSON(w, http.StatusConflict, ConflictResponse{
			Error:     "conflict",
			Message:   err.Error(),
			Conflicts: conflict.Conflicts,
		}); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperrors.ErrEmptyResult):
		status, code = http.StatusBadRequest, "empty_result"
	case errors.Is(err, apperrors.ErrRemoteNotConfigured):
		status, code = http.StatusServiceUnavailable, "sync_not_configured"
	case errors.Is(err, cloudsync.ErrOffline):
		status, code = http.StatusServiceUnavailable, "sync_offline"
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		status, code = http.StatusTooManyRequests, "quota_exceeded"
	default:
		logger.Error("Request failed", zap.String("code", fallbackCode), zap.Error(err))
		status, code = http.StatusInternalServerError, fallbackCode
	}

	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
