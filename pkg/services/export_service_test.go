package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/survey-engine/pkg/models"
)

func TestExportService_WriteMappingsWorkbook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.mappings.CreateMapping(ctx, testUserID, models.MappingKindSpecialty, "Cardiology", "", []models.SourceEntry{
		{RawLabel: "Cardiology", SurveySource: "MGMA", Frequency: 2},
		{RawLabel: "Cardiovascular Disease", SurveySource: "SullivanCotter", Frequency: 1},
	})
	require.NoError(t, err)
	_, err = env.mappings.CreateMapping(ctx, testUserID, models.MappingKindRegion, "Northeast", "", []models.SourceEntry{
		{RawLabel: "NE", SurveySource: "MGMA", Frequency: 1},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, env.exports.WriteMappingsWorkbook(ctx, testUserID, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, len(models.MappingKinds))
	for i, kind := range models.MappingKinds {
		assert.Equal(t, string(kind), sheets[i])
	}

	rows, err := f.GetRows(string(models.MappingKindSpecialty))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, mappingSheetHeader, rows[0])

	labels := map[string]string{}
	for _, row := range rows[1:] {
		require.GreaterOrEqual(t, len(row), 5)
		assert.Equal(t, "Cardiology", row[0])
		labels[row[2]] = row[3] + "/" + row[4]
	}
	assert.Equal(t, "MGMA/2", labels["Cardiology"])
	assert.Equal(t, "SullivanCotter/1", labels["Cardiovascular Disease"])

	rows, err = f.GetRows(string(models.MappingKindRegion))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "NE", rows[1][2])

	rows, err = f.GetRows(string(models.MappingKindColumn))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "empty kinds still carry a header")
}

func TestExportService_WriteMappingsWorkbook_OtherUserIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.mappings.CreateMapping(ctx, testUserID, models.MappingKindSpecialty, "Cardiology", "", []models.SourceEntry{
		{RawLabel: "Cardiology", SurveySource: "MGMA", Frequency: 1},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, env.exports.WriteMappingsWorkbook(ctx, "someone-else", &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(string(models.MappingKindSpecialty))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
