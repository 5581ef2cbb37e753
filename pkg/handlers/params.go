package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// ParseSurveyID extracts and validates the survey ID from the request path.
// Expects path parameter: sid
func ParseSurveyID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_survey_id", "Invalid survey ID format", logger)
}

// ParseMappingID extracts and validates the mapping ID from the request path.
// Expects path parameter: mid
func ParseMappingID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "mid", "invalid_mapping_id", "Invalid mapping ID format", logger)
}

// ParseMappingKind extracts the mapping kind from the request path.
// Both "provider_type" and "provider-type" are accepted.
// Expects path parameter: kind
func ParseMappingKind(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.MappingKind, bool) {
	kind, ok := models.ParseMappingKind(r.PathValue("kind"))
	if !ok {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_kind", "Unknown mapping kind"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return kind, true
}

// ParseProviderTypeQuery reads the optional provider_type query parameter.
// An absent parameter yields the empty provider type (no filter).
func ParseProviderTypeQuery(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.ProviderType, bool) {
	providerType, ok := models.ParseProviderType(r.URL.Query().Get("provider_type"))
	if !ok {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_provider_type", "Unknown provider type"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return providerType, true
}

// RequireUserID reads the authenticated user id, writing a 401 when absent.
func RequireUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", auth.MsgGeneric); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return userID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
