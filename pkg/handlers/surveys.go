package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

// maxUploadBytes bounds the multipart form kept in memory.
const maxUploadBytes = 32 << 20

// SurveyListResponse for GET /api/surveys
type SurveyListResponse struct {
	Surveys []*models.SurveyRecord `json:"surveys"`
	Total   int                    `json:"total"`
}

// SurveyDetailResponse for GET /api/surveys/{sid}
type SurveyDetailResponse struct {
	Survey *models.SurveyRecord `json:"survey"`
	Rows   []models.SurveyRow   `json:"rows"`
}

// SurveyHandler handles survey upload and management requests.
type SurveyHandler struct {
	surveyService services.SurveyService
	logger        *zap.Logger
}

// NewSurveyHandler creates a new survey handler.
func NewSurveyHandler(surveyService services.SurveyService, logger *zap.Logger) *SurveyHandler {
	return &SurveyHandler{
		surveyService: surveyService,
		logger:        logger,
	}
}

// RegisterRoutes registers the survey handler's routes on the given mux.
func (h *SurveyHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/surveys", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/surveys", authMiddleware.RequireAuth(h.Upload))
	mux.HandleFunc("GET /api/surveys/{sid}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("DELETE /api/surveys/{sid}", authMiddleware.RequireAuth(h.Delete))
}

// List handles GET /api/surveys
func (h *SurveyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	surveys, err := h.surveyService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "list_surveys_failed", err)
		return
	}

	writeOK(w, http.StatusOK, SurveyListResponse{Surveys: surveys, Total: len(surveys)}, h.logger)
}

// Upload handles POST /api/surveys as multipart/form-data with a "file"
// part and name, year, type and provider_type fields.
func (h *SurveyHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form upload"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_file", "A CSV file is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer file.Close()

	req := &services.UploadRequest{
		Name: r.FormValue("name"),
		Type: r.FormValue("type"),
	}
	if year := r.FormValue("year"); year != "" {
		req.Year, err = strconv.Atoi(year)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_year", "Year must be a number"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}
	providerType, valid := models.ParseProviderType(r.FormValue("provider_type"))
	if !valid {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_provider_type", "Unknown provider type"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	req.ProviderType = providerType

	result, err := h.surveyService.Upload(r.Context(), userID, req, file)
	if err != nil {
		writeServiceError(w, h.logger, "upload_survey_failed", err)
		return
	}

	writeOK(w, http.StatusCreated, result, h.logger)
}

// Get handles GET /api/surveys/{sid}
func (h *SurveyHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}
	surveyID, ok := ParseSurveyID(w, r, h.logger)
	if !ok {
		return
	}

	survey, err := h.surveyService.Get(r.Context(), userID, surveyID)
	if err != nil {
		writeServiceError(w, h.logger, "get_survey_failed", err)
		return
	}
	rows, err := h.surveyService.GetRows(r.Context(), userID, surveyID)
	if err != nil {
		writeServiceError(w, h.logger, "get_survey_failed", err)
		return
	}

	writeOK(w, http.StatusOK, SurveyDetailResponse{Survey: survey, Rows: rows}, h.logger)
}

// Delete handles DELETE /api/surveys/{sid}
func (h *SurveyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}
	surveyID, ok := ParseSurveyID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.surveyService.Delete(r.Context(), userID, surveyID); err != nil {
		writeServiceError(w, h.logger, "delete_survey_failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
