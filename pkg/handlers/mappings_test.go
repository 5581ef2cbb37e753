package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

func seedSurvey(t *testing.T, s *testServer) {
	t.Helper()
	rec := s.uploadCSV(t, map[string]string{"name": "MGMA 2024", "type": "MGMA"}, mgmaCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func unmappedLabels(t *testing.T, s *testServer, query string) []string {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/mappings/specialty/unmapped"+query, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp UnmappedResponse
	decodeData(t, rec, &resp)
	labels := make([]string, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		labels = append(labels, e.RawLabel)
	}
	return labels
}

func TestMappingHandler_CreateAndConflict(t *testing.T) {
	s := newTestServer(t, nil)
	seedSurvey(t, s)

	assert.Equal(t, []string{"Cardiology", "Dermatology"}, unmappedLabels(t, s, ""))

	rec := s.do(t, http.MethodPost, "/api/mappings/specialty", CreateMappingRequest{
		CanonicalName: "Cardiology",
		Sources:       []models.SourceEntry{{RawLabel: "Cardiology", SurveySource: "MGMA", Frequency: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.MappingRecord
	decodeData(t, rec, &created)
	assert.NotEqual(t, uuid.Nil, created.ID)

	assert.Equal(t, []string{"Dermatology"}, unmappedLabels(t, s, ""))

	rec = s.do(t, http.MethodPost, "/api/mappings/specialty", CreateMappingRequest{
		CanonicalName: "Cardio",
		Sources:       []models.SourceEntry{{RawLabel: "cardiology ", SurveySource: "MGMA"}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict ConflictResponse
	require.NoError(t, jsonUnmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "conflict", conflict.Error)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "Cardiology", conflict.Conflicts[0].CanonicalName)

	rec = s.do(t, http.MethodGet, "/api/mappings/specialty", nil)
	var list MappingListResponse
	decodeData(t, rec, &list)
	assert.Equal(t, 1, list.Total)
}

func TestMappingHandler_SourcesAndDelete(t *testing.T) {
	s := newTestServer(t, nil)
	seedSurvey(t, s)

	rec := s.do(t, http.MethodPost, "/api/mappings/specialty", CreateMappingRequest{
		CanonicalName: "Skin",
		Sources:       []models.SourceEntry{{RawLabel: "Derm", SurveySource: "Sullivan Cotter"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mapping models.MappingRecord
	decodeData(t, rec, &mapping)
	base := "/api/mappings/specialty/" + mapping.ID.String()

	rec = s.do(t, http.MethodPost, base+"/sources", AddSourcesRequest{
		Sources: []models.SourceEntry{{RawLabel: "Dermatology", SurveySource: "MGMA"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Cardiology"}, unmappedLabels(t, s, ""))

	rec = s.do(t, http.MethodDelete, base+"/sources?raw_label=Dermatology&survey_source=MGMA", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Cardiology", "Dermatology"}, unmappedLabels(t, s, ""))

	rec = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMappingHandler_ClearIsIdempotent(t *testing.T) {
	s := newTestServer(t, nil)

	for _, name := range []string{"East", "West"} {
		rec := s.do(t, http.MethodPost, "/api/mappings/region", CreateMappingRequest{
			CanonicalName: name,
			Sources:       []models.SourceEntry{{RawLabel: name, SurveySource: "MGMA"}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodDelete, "/api/mappings/region", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared ClearMappingsResponse
	decodeData(t, rec, &cleared)
	assert.Equal(t, int64(2), cleared.Deleted)

	rec = s.do(t, http.MethodDelete, "/api/mappings/region", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &cleared)
	assert.Equal(t, int64(0), cleared.Deleted)
}

func TestMappingHandler_AutoMapAndApply(t *testing.T) {
	s := newTestServer(t, nil)
	seedSurvey(t, s)

	rec := s.do(t, http.MethodPost, "/api/mappings/specialty/auto", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var suggestions []models.AutoMapSuggestion
	decodeData(t, rec, &suggestions)
	require.Len(t, suggestions, 2)

	rec = s.do(t, http.MethodPost, "/api/mappings/specialty/auto/apply", ApplySuggestionsRequest{Suggestions: suggestions})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.ApplyResult
	decodeData(t, rec, &result)
	assert.Len(t, result.Applied, 2)
	assert.Empty(t, result.Errors)

	assert.Empty(t, unmappedLabels(t, s, ""))
}

func TestMappingHandler_BadInput(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown kind", http.MethodGet, "/api/mappings/widgets", nil, http.StatusBadRequest, "invalid_kind"},
		{"bad provider filter", http.MethodGet, "/api/mappings/specialty/unmapped?provider_type=nurse", nil, http.StatusBadRequest, "invalid_provider_type"},
		{"bad threshold", http.MethodPost, "/api/mappings/specialty/auto", map[string]any{"confidence_threshold": 2}, http.StatusBadRequest, "validation_error"},
		{"missing canonical name", http.MethodPost, "/api/mappings/specialty", CreateMappingRequest{}, http.StatusBadRequest, "validation_error"},
		{"bad mapping id", http.MethodDelete, "/api/mappings/specialty/xyz", nil, http.StatusBadRequest, "invalid_mapping_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeError(t, rec)["error"])
		})
	}
}

func TestMappingHandler_ProviderTypeFilter(t *testing.T) {
	s := newTestServer(t, nil)
	seedSurvey(t, s)

	assert.Len(t, unmappedLabels(t, s, "?provider_type=physician"), 2)
	assert.Empty(t, unmappedLabels(t, s, "?provider_type=APP"))
}

func TestMappingHandler_DashedKind(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/mappings/provider-type", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
