package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StorageHandler handles whole-account export, restore and clear.
type StorageHandler struct {
	surveyService services.SurveyService
	exportService services.ExportService
	logger        *zap.Logger
}

// NewStorageHandler creates a new storage handler.
func NewStorageHandler(surveyService services.SurveyService, exportService services.ExportService, logger *zap.Logger) *StorageHandler {
	return &StorageHandler{
		surveyService: surveyService,
		exportService: exportService,
		logger:        logger,
	}
}

// RegisterRoutes registers the storage handler's routes on the given mux.
func (h *StorageHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/storage/export", authMiddleware.RequireAuth(h.Export))
	mux.HandleFunc("GET /api/storage/export.xlsx", authMiddleware.RequireAuth(h.ExportWorkbook))
	mux.HandleFunc("POST /api/storage/import", authMiddleware.RequireAuth(h.Import))
	mux.HandleFunc("DELETE /api/storage", authMiddleware.RequireAuth(h.ClearAll))
}

// Export handles GET /api/storage/export as a JSON backup download.
func (h *StorageHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	backup, err := h.surveyService.Export(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "export_failed", err)
		return
	}

	w.Header().Set("Content-Disposition", attachment("survey-backup", "json"))
	if err := WriteJSON(w, http.StatusOK, backup); err != nil {
		h.logger.Error("Failed to write backup", zap.Error(err))
	}
}

// ExportWorkbook handles GET /api/storage/export.xlsx
func (h *StorageHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment("survey-mappings", "xlsx"))
	if err := h.exportService.WriteMappingsWorkbook(r.Context(), userID, w); err != nil {
		w.Header().Del("Content-Disposition")
		writeServiceError(w, h.logger, "export_workbook_failed", err)
	}
}

// Import handles POST /api/storage/import with a backup document body.
func (h *StorageHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var backup models.BackupExport
	if err := json.NewDecoder(r.Body).Decode(&backup); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_backup", "Backup is not valid JSON"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.surveyService.Restore(r.Context(), userID, &backup)
	if err != nil {
		writeServiceError(w, h.logger, "import_failed", err)
		return
	}

	writeOK(w, http.StatusOK, result, h.logger)
}

// ClearAll handles DELETE /api/storage
func (h *StorageHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.surveyService.ClearAll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "clear_storage_failed", err)
		return
	}

	writeOK(w, http.StatusOK, result, h.logger)
}

func attachment(prefix, ext string) string {
	return fmt.Sprintf(`attachment; filename="%s-%s.%s"`, prefix, time.Now().UTC().Format("2006-01-02"), ext)
}
