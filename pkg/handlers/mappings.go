package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// MappingListResponse for GET /api/mappings/{kind}
type MappingListResponse struct {
	Mappings []*models.MappingRecord `json:"mappings"`
	Total    int                     `json:"total"`
}

// CreateMappingRequest for POST /api/mappings/{kind}
type CreateMappingRequest struct {
	CanonicalName string               `json:"canonical_name"`
	ProviderType  models.ProviderType  `json:"provider_type,omitempty"`
	Sources       []models.SourceEntry `json:"sources"`
}

// AddSourcesRequest for POST /api/mappings/{kind}/{mid}/sources
type AddSourcesRequest struct {
	Sources []models.SourceEntry `json:"sources"`
}

// UnmappedResponse for GET /api/mappings/{kind}/unmapped
type UnmappedResponse struct {
	Entities []models.UnmappedEntity `json:"entities"`
	Total    int                     `json:"total"`
}

// AutoMapRequest for POST /api/mappings/{kind}/auto
type AutoMapRequest struct {
	ProviderType models.ProviderType `json:"provider_type,omitempty"`
	models.AutoMapConfig
}

// ApplySuggestionsRequest for POST /api/mappings/{kind}/auto/apply
type ApplySuggestionsRequest struct {
	ProviderType models.ProviderType        `json:"provider_type,omitempty"`
	Suggestions  []models.AutoMapSuggestion `json:"suggestions"`
}

// ClearMappingsResponse for DELETE /api/mappings/{kind}
type ClearMappingsResponse struct {
	Deleted int64 `json:"deleted"`
}

// ============================================================================
// Handler
// ============================================================================

// MappingHandler handles mapping CRUD, unmapped detection and auto-mapping.
type MappingHandler struct {
	mappingService  services.MappingService
	unmappedService services.UnmappedService
	logger          *zap.Logger
}

// NewMappingHandler creates a new mapping handler.
func NewMappingHandler(
	mappingService services.MappingService,
	unmappedService services.UnmappedService,
	logger *zap.Logger,
) *MappingHandler {
	return &MappingHandler{
		mappingService:  mappingService,
		unmappedService: unmappedService,
		logger:          logger,
	}
}

// RegisterRoutes registers the mapping handler's routes on the given mux.
func (h *MappingHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/mappings/{kind}"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("DELETE "+base, authMiddleware.RequireAuth(h.Clear))
	mux.HandleFunc("GET "+base+"/unmapped", authMiddleware.RequireAuth(h.Unmapped))
	mux.HandleFunc("POST "+base+"/auto", authMiddleware.RequireAuth(h.AutoMap))
	mux.HandleFunc("POST "+base+"/auto/apply", authMiddleware.RequireAuth(h.ApplySuggestions))
	mux.HandleFunc("DELETE "+base+"/{mid}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("POST "+base+"/{mid}/sources", authMiddleware.RequireAuth(h.AddSources))
	mux.HandleFunc("DELETE "+base+"/{mid}/sources", authMiddleware.RequireAuth(h.RemoveSource))
}

// List handles GET /api/mappings/{kind}
func (h *MappingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.userAndKind(w, r)
	if !ok {
		return
	}

	mappings, err := h.mappingService.ListMappings(r.Context(), userID, kind)
	if err != nil {
		writeServiceError(w, h.logger, "list_mappings_failed", err)
		return
	}

	writeOK(w, http.StatusOK, MappingListResponse{Mappings: mappings, Total: len(mappings)}, h.logger)
}

// Create handles POST /api/mappings/{kind}
func (h *MappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.userAndKind(w, r)
	if !ok {
		return
	}

	var req CreateMappingRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	mapping, err := h.mappingService.CreateMapping(r.Context(), userID, kind, req.CanonicalName, req.ProviderType, req.Sources)
	if err != nil {
		writeServiceError(w, h.logger, "create_mapping_failed", err)
		return
	}

	writeOK(w, http.StatusCreated, mapping, h.logger)
}

// Clear handles DELETE /api/mappings/{kind}
func (h *MappingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.userAndKind(w, r)
	if !ok {
		return
	}

	deleted, err := h.mappingService.ClearAllMappings(r.Context(), userID, kind)
	if err != nil {
		writeServiceError(w, h.logger, "clear_mappings_failed", err)
		return
	}

	writeOK(w, http.StatusOK, ClearMappingsResponse{Deleted: deleted}, h.logger)
}

// Delete handles DELETE /api/mappings/{kind}/{mid}
func (h *MappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.userAndKind(w, r)
	if !ok {
		return
	}
	mappingID, ok := ParseMappingID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.mappingService.DeleteMapping(r.Context(), userID, mappingID); err != nil {
		writeServiceError(w, h.logger, "delete_mapping_failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddSources handles POST /api/mappings/{kind}/{mid}/sources
func (h *MappingHandler) AddSources(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.userAndKind(w, r)
	if !ok {
		return
	}
	mappingID, ok := ParseMappingID(w, r, h.logger)
	if !ok {
		return
	}

	var req AddSourcesRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	mapping, err := h.mappingService.AddSourceEntries(r.Context(), userID, mappingID, req.Sources)
	if err != nil {
		writeServiceError(w, h.logger, "add_sources_failed", err)
		return
	}

	writeOK(w, http.StatusOK, mapping, h.logger)
}

// RemoveSource handles DELETE /api/mappings/{kind}/{mid}/sources?raw_label=..&survey_source=..
func (h *MappingHandler) RemoveSource(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.userAndKind(w, r)
	if !ok {
		return
	}
	mappingID, ok := ParseMappingID(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	mapping, err := h.mappingService.RemoveSourceEntry(r.Context(), userID, mappingID, q.Get("raw_label"), q.Get("survey_source"))
	if err != nil {
		writeServiceError(w, h.logger, "remove_source_failed", err)
		return
	}

	writeOK(w, http.StatusOK, mapping, h.logger)
}

// Unmapped handles GET /api/mappings/{kind}/unmapped?provider_type=..
func (h *MappingHandler) Unmapped(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.userAndKind(w, r)
	if !ok {
		return
	}
	providerType, ok := ParseProviderTypeQuery(w, r, h.logger)
	if !ok {
		return
	}

	entities, err := h.unmappedService.GetUnmapped(r.Context(), userID, kind, providerType)
	if err != nil {
		writeServiceError(w, h.logger, "get_unmapped_failed", err)
		return
	}

	writeOK(w, http.StatusOK, UnmappedResponse{Entities: entities, Total: len(entities)}, h.logger)
}

// AutoMap handles POST /api/mappings/{kind}/auto. An empty body uses the
// default thresholds.
func (h *MappingHandler) AutoMap(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.userAndKind(w, r)
	if !ok {
		return
	}

	req := AutoMapRequest{AutoMapConfig: models.DefaultAutoMapConfig()}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req, h.logger) {
		return
	}

	suggestions, err := h.mappingService.AutoMap(r.Context(), userID, kind, req.ProviderType, req.AutoMapConfig)
	if err != nil {
		writeServiceError(w, h.logger, "auto_map_failed", err)
		return
	}

	writeOK(w, http.StatusOK, suggestions, h.logger)
}

// ApplySuggestions handles POST /api/mappings/{kind}/auto/apply
func (h *MappingHandler) ApplySuggestions(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.userAndKind(w, r)
	if !ok {
		return
	}

	var req ApplySuggestionsRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.mappingService.ApplySuggestions(r.Context(), userID, kind, req.ProviderType, req.Suggestions)
	if err != nil {
		writeServiceError(w, h.logger, "apply_suggestions_failed", err)
		return
	}

	writeOK(w, http.StatusOK, result, h.logger)
}

func (h *MappingHandler) userAndKind(w http.ResponseWriter, r *http.Request) (string, models.MappingKind, bool) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return "", "", false
	}
	kind, ok := ParseMappingKind(w, r, h.logger)
	if !ok {
		return "", "", false
	}
	return userID, kind, true
}
