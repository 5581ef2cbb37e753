package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/cloudsync"
	"github.com/ekaya-inc/survey-engine/pkg/config"
	"github.com/ekaya-inc/survey-engine/pkg/database"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
	"github.com/ekaya-inc/survey-engine/pkg/services"
	"github.com/ekaya-inc/survey-engine/pkg/testhelpers"
)

const testUserID = "user-1"

// testServer routes requests through the real handlers and services over an
// in-memory local store.
type testServer struct {
	mux      *http.ServeMux
	surveys  services.SurveyService
	mappings services.MappingService
	monitor  *fakeMonitor
	migrator *fakeMigrator
}

func newTestServer(t *testing.T, migrator *fakeMigrator) *testServer {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.OpenLocal(&database.LocalConfig{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	surveyRepo := repositories.NewSurveyRepository(db)
	mappingRepo := repositories.NewMappingRepository(db)
	learned := services.NewLearnedMappingService(repositories.NewLearnedMappingRepository(db), time.Minute, time.Minute, logger)
	unmapped := services.NewUnmappedService(surveyRepo, mappingRepo, learned, logger)
	mappings := services.NewMappingService(mappingRepo, unmapped, nil, logger)
	surveys := services.NewSurveyService(surveyRepo, mappingRepo, learned, nil, logger)
	exports := services.NewExportService(mappingRepo, logger)

	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{EnableVerification: false})
	require.NoError(t, err)
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(validator, "", logger), logger)

	s := &testServer{
		mux:      http.NewServeMux(),
		surveys:  surveys,
		mappings: mappings,
		monitor:  &fakeMonitor{status: cloudsync.Status{State: cloudsync.StateDisconnected}},
		migrator: migrator,
	}

	var m SurveyMigrator
	if migrator != nil {
		m = migrator
	}

	NewHealthHandler(&config.Config{Version: "test", Env: "test"}, logger).RegisterRoutes(s.mux)
	NewSurveyHandler(surveys, logger).RegisterRoutes(s.mux, authMiddleware)
	NewMappingHandler(mappings, unmapped, logger).RegisterRoutes(s.mux, authMiddleware)
	NewLearnedHandler(learned, logger).RegisterRoutes(s.mux, authMiddleware)
	NewStorageHandler(surveys, exports, logger).RegisterRoutes(s.mux, authMiddleware)
	NewSyncHandler(s.monitor, m, surveys, logger).RegisterRoutes(s.mux, authMiddleware)
	return s
}

// do sends an authenticated JSON request; body may be nil.
func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer(testUserID, ""))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// uploadCSV posts a survey file as multipart form data.
func (s *testServer) uploadCSV(t *testing.T, fields map[string]string, csv string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if csv != "" {
		part, err := mw.CreateFormFile("file", "survey.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/surveys", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer(testUserID, ""))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the ApiResponse envelope into v.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope, got %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type fakeMonitor struct {
	status    cloudsync.Status
	refreshed int
}

func (m *fakeMonitor) Status() cloudsync.Status { return m.status }

func (m *fakeMonitor) Refresh(ctx context.Context) cloudsync.Status {
	m.refreshed++
	return m.status
}

type fakeMigrator struct {
	got    []models.SurveyBackup
	result *cloudsync.MigrationResult
	err    error
}

func (m *fakeMigrator) MigrateSurveys(ctx context.Context, userID string, surveys []models.SurveyBackup, progress cloudsync.ProgressFunc) (*cloudsync.MigrationResult, error) {
	m.got = surveys
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &cloudsync.MigrationResult{Migrated: len(surveys), Errors: []string{}}, nil
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
