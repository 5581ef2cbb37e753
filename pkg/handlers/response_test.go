package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/cloudsync"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "bad_request", "invalid input"},
		{"not found", http.StatusNotFound, "not_found", "resource not found"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message)
			if err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}

			ct := resp.Header.Get("Content-Type")
			if ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}

			if body["error"] != tt.errorCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.errorCode)
			}
			if body["message"] != tt.message {
				t.Errorf("body[message] = %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestWriteJSON_NonOKStatus(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]int{"count": 5}

	err := WriteJSON(w, http.StatusCreated, data)
	if err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()
	data := make(chan int) // channels cannot be JSON-encoded

	err := WriteJSON(w, http.StatusOK, data)
	if err == nil {
		t.Error("expected error for unencodable data, got nil")
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("load: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"validation", apperrors.Validationf("bad %s", "input"), http.StatusBadRequest, "validation_error"},
		{"empty result", apperrors.ErrEmptyResult, http.StatusBadRequest, "empty_result"},
		{"plain conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"sync not configured", apperrors.ErrRemoteNotConfigured, http.StatusServiceUnavailable, "sync_not_configured"},
		{"offline", cloudsync.ErrOffline, http.StatusServiceUnavailable, "sync_offline"},
		{"quota", fmt.Errorf("commit: %w", apperrors.ErrQuotaExceeded), http.StatusTooManyRequests, "quota_exceeded"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "fallback_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			writeServiceError(w, zap.NewNop(), "fallback_code", tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.wantCode)
			}
		})
	}
}

func TestWriteServiceError_ConflictListsClaims(t *testing.T) {
	w := httptest.NewRecorder()
	err := &apperrors.ConflictError{Conflicts: []apperrors.ClaimConflict{
		{RawLabel: "Cardiology", SurveySource: "MGMA", MappingID: "m-1", CanonicalName: "Cardiology"},
		{RawLabel: "Derm", SurveySource: "MGMA"},
	}}

	writeServiceError(w, zap.NewNop(), "create_mapping_failed", err)

	if w.Code != http.StatusConflict {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusConflict)
	}
	var body ConflictResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if len(body.Conflicts) != 2 {
		t.Fatalf("len(conflicts) = %d, want 2", len(body.Conflicts))
	}
	if body.Conflicts[0].MappingID != "m-1" {
		t.Errorf("conflicts[0].mapping_id = %q, want m-1", body.Conflicts[0].MappingID)
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()

	var v map[string]any
	if decodeJSON(w, req, &v, zap.NewNop()) {
		t.Fatal("decodeJSON() = true for an empty body")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
