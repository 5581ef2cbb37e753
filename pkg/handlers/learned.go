package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

// LearnedListResponse for GET /api/learned/{kind}
type LearnedListResponse struct {
	Mappings map[string]string        `json:"mappings"`
	Entries  []*models.LearnedMapping `json:"entries"`
}

// SaveLearnedRequest for POST /api/learned/{kind}
type SaveLearnedRequest struct {
	Original     string              `json:"original"`
	Corrected    string              `json:"corrected"`
	ProviderType models.ProviderType `json:"provider_type,omitempty"`
	SurveySource string              `json:"survey_source,omitempty"`
}

// LearnedHandler exposes the learned-mapping dictionary.
type LearnedHandler struct {
	learnedService services.LearnedMappingService
	logger         *zap.Logger
}

// NewLearnedHandler creates a new learned-mapping handler.
func NewLearnedHandler(learnedService services.LearnedMappingService, logger *zap.Logger) *LearnedHandler {
	return &LearnedHandler{
		learnedService: learnedService,
		logger:         logger,
	}
}

// RegisterRoutes registers the learned-mapping handler's routes on the given mux.
func (h *LearnedHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/learned/{kind}", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/learned/{kind}", authMiddleware.RequireAuth(h.Save))
	mux.HandleFunc("DELETE /api/learned/{kind}", authMiddleware.RequireAuth(h.Delete))
}

// List handles GET /api/learned/{kind}?provider_type=..
func (h *LearnedHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}
	kind, ok := ParseMappingKind(w, r, h.logger)
	if !ok {
		return
	}
	providerType, ok := ParseProviderTypeQuery(w, r, h.logger)
	if !ok {
		return
	}

	entries, err := h.learnedService.Entries(r.Context(), userID, kind, providerType)
	if err != nil {
		writeServiceError(w, h.logger, "list_learned_failed", err)
		return
	}
	lookup, err := h.learnedService.Get(r.Context(), userID, kind, providerType)
	if err != nil {
		writeServiceError(w, h.logger, "list_learned_failed", err)
		return
	}

	writeOK(w, http.StatusOK, LearnedListResponse{Mappings: lookup, Entries: entries}, h.logger)
}

// Save handles POST /api/learned/{kind}
func (h *LearnedHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}
	kind, ok := ParseMappingKind(w, r, h.logger)
	if !ok {
		return
	}

	var req SaveLearnedRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	entry := &models.LearnedMapping{
		Type:         kind,
		Original:     req.Original,
		Corrected:    req.Corrected,
		ProviderType: req.ProviderType,
		SurveySource: req.SurveySource,
	}
	if err := h.learnedService.Save(r.Context(), userID, entry); err != nil {
		writeServiceError(w, h.logger, "save_learned_failed", err)
		return
	}

	writeOK(w, http.StatusCreated, entry, h.logger)
}

// Delete handles DELETE /api/learned/{kind}. With ?original=.. it removes one
// entry; without it clears the kind.
func (h *LearnedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}
	kind, ok := ParseMappingKind(w, r, h.logger)
	if !ok {
		return
	}

	var err error
	if original := r.URL.Query().Get("original"); original != "" {
		err = h.learnedService.Remove(r.Context(), userID, kind, original)
	} else {
		err = h.learnedService.Clear(r.Context(), userID, kind)
	}
	if err != nil {
		writeServiceError(w, h.logger, "delete_learned_failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
