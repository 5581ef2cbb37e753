package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/cloudsync"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

// ConnectivityMonitor reports and refreshes remote-store connectivity.
type ConnectivityMonitor interface {
	Status() cloudsync.Status
	Refresh(ctx context.Context) cloudsync.Status
}

// SurveyMigrator pushes local surveys to the remote store.
type SurveyMigrator interface {
	MigrateSurveys(ctx context.Context, userID string, surveys []models.SurveyBackup, progress cloudsync.ProgressFunc) (*cloudsync.MigrationResult, error)
}

var (
	_ ConnectivityMonitor = (*cloudsync.Monitor)(nil)
	_ SurveyMigrator      = (*cloudsync.Adapter)(nil)
)

// SyncHandler exposes cloud sync status and migration.
type SyncHandler struct {
	monitor       ConnectivityMonitor
	migrator      SurveyMigrator
	surveyService services.SurveyService
	logger        *zap.Logger
}

// NewSyncHandler creates a new sync handler. migrator is nil when cloud sync
// is not configured.
func NewSyncHandler(monitor ConnectivityMonitor, migrator SurveyMigrator, surveyService services.SurveyService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		monitor:       monitor,
		migrator:      migrator,
		surveyService: surveyService,
		logger:        logger,
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/sync/status", authMiddleware.RequireAuth(h.Status))
	mux.HandleFunc("POST /api/sync/refresh", authMiddleware.RequireAuth(h.Refresh))
	mux.HandleFunc("POST /api/sync/migrate", authMiddleware.RequireAuth(h.Migrate))
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, h.monitor.Status(), h.logger)
}

// Refresh handles POST /api/sync/refresh
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, h.monitor.Refresh(r.Context()), h.logger)
}

// Migrate handles POST /api/sync/migrate: every local survey of the user is
// pushed to the remote store.
func (h *SyncHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r, h.logger)
	if !ok {
		return
	}
	if h.migrator == nil {
		writeServiceError(w, h.logger, "migrate_failed", apperrors.ErrRemoteNotConfigured)
		return
	}

	backup, err := h.surveyService.Export(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "migrate_failed", err)
		return
	}

	result, err := h.migrator.MigrateSurveys(r.Context(), userID, backup.Surveys, nil)
	if err != nil {
		writeServiceError(w, h.logger, "migrate_failed", err)
		return
	}

	h.logger.Info("Migrated surveys to remote store",
		zap.String("user_id", userID),
		zap.Int("migrated", result.Migrated),
		zap.Int("failed", result.Failed))
	writeOK(w, http.StatusOK, result, h.logger)
}
