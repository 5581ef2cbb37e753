package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/database"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
)

const testUserID = "user-1"

// testEnv wires every service over a private in-memory local store.
type testEnv struct {
	surveyRepo  repositories.SurveyRepository
	mappingRepo repositories.MappingRepository
	learned     LearnedMappingService
	unmapped    UnmappedService
	mappings    MappingService
	surveys     SurveyService
	exports     ExportService
	mirror      *mockMirror
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenLocal(&database.LocalConfig{Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zap.NewNop()
	env := &testEnv{
		surveyRepo:  repositories.NewSurveyRepository(db),
		mappingRepo: repositories.NewMappingRepository(db),
		mirror:      &mockMirror{},
	}
	env.learned = NewLearnedMappingService(repositories.NewLearnedMappingRepository(db), time.Minute, time.Minute, logger)
	env.unmapped = NewUnmappedService(env.surveyRepo, env.mappingRepo, env.learned, logger)
	env.mappings = NewMappingService(env.mappingRepo, env.unmapped, env.mirror, logger)
	env.surveys = NewSurveyService(env.surveyRepo, env.mappingRepo, env.learned, env.mirror, logger)
	env.exports = NewExportService(env.mappingRepo, logger)
	return env
}

// upload stores a CSV survey and fails the test on error.
func (e *testEnv) upload(t *testing.T, name, source, csv string) *models.SurveyRecord {
	t.Helper()
	result, err := e.surveys.Upload(context.Background(), testUserID, &UploadRequest{
		Name: name,
		Year: 2024,
		Type: source,
	}, strings.NewReader(csv))
	require.NoError(t, err)
	return result.Survey
}

func specialtyCSV(specialties ...string) string {
	var b strings.Builder
	b.WriteString("specialty,p50\n")
	for _, s := range specialties {
		b.WriteString(s)
		b.WriteString(",100000\n")
	}
	return b.String()
}

// mockMirror records calls and optionally fails them.
type mockMirror struct {
	mu        sync.Mutex
	saved     []uuid.UUID
	deleted   []uuid.UUID
	cleared   []models.MappingKind
	surveys   int
	clearUser int
	err       error
}

func (m *mockMirror) SaveSurvey(ctx context.Context, userID string, survey *models.SurveyRecord, rows []models.SurveyRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveys++
	return m.err
}

func (m *mockMirror) DeleteSurvey(ctx context.Context, userID string, surveyID uuid.UUID) error {
	return m.err
}

func (m *mockMirror) SaveMapping(ctx context.Context, userID string, mapping *models.MappingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, mapping.ID)
	return m.err
}

func (m *mockMirror) DeleteMapping(ctx context.Context, userID string, kind models.MappingKind, mappingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, mappingID)
	return m.err
}

func (m *mockMirror) ClearMappings(ctx context.Context, userID string, kind models.MappingKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, kind)
	return m.err
}

func (m *mockMirror) ClearUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearUser++
	return m.err
}
