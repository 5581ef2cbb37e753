package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/survey-engine/pkg/models"
)

func TestUnmappedService_CaseInsensitiveDedup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "2024 Physician Compensation", "MGMA", specialtyCSV("Cardiology", "cardiology", "Cardio"))

	got, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindSpecialty, models.ProviderTypePhysician)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, models.UnmappedEntity{
		RawLabel: "Cardio", Frequency: 1, SurveySource: "MGMA", ProviderType: models.ProviderTypePhysician,
	}, got[0])
	assert.Equal(t, models.UnmappedEntity{
		RawLabel: "Cardiology", Frequency: 2, SurveySource: "MGMA", ProviderType: models.ProviderTypePhysician,
	}, got[1], "first-seen casing is kept")
}

func TestUnmappedService_NoSurveys(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.unmapped.GetUnmapped(context.Background(), testUserID, models.MappingKindSpecialty, "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUnmappedService_ProviderTypeFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "Physician Survey", "MGMA", specialtyCSV("Cardiology"))
	env.upload(t, "APP Survey", "MGMA", specialtyCSV("Nurse Practitioner - Cardiology"))
	env.upload(t, "Call Pay Survey", "SullivanCotter", specialtyCSV("Cardiology"))

	app, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindSpecialty, models.ProviderTypeAPP)
	require.NoError(t, err)
	require.Len(t, app, 1)
	assert.Equal(t, "Nurse Practitioner - Cardiology", app[0].RawLabel)
	assert.Equal(t, models.ProviderTypeAPP, app[0].ProviderType)

	call, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindSpecialty, models.ProviderTypeCall)
	require.NoError(t, err)
	require.Len(t, call, 1)
	assert.Equal(t, "SullivanCotter", call[0].SurveySource)

	all, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindSpecialty, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUnmappedService_LearnedEntriesAreScopedBySource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "Physician Survey", "MGMA", specialtyCSV("Cardio", "Derm"))
	env.upload(t, "Physician Survey", "Gallagher", specialtyCSV("Cardio", "Derm"))

	require.NoError(t, env.learned.Save(ctx, testUserID, &models.LearnedMapping{
		Type: models.MappingKindSpecialty, Original: "cardio", Corrected: "Cardiology",
	}))
	require.NoError(t, env.learned.Save(ctx, testUserID, &models.LearnedMapping{
		Type: models.MappingKindSpecialty, Original: "Derm", Corrected: "Dermatology", SurveySource: "MGMA",
	}))

	got, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindSpecialty, "")
	require.NoError(t, err)

	require.Len(t, got, 1, "source-less learned entries cover every source")
	assert.Equal(t, "Derm", got[0].RawLabel)
	assert.Equal(t, "Gallagher", got[0].SurveySource)
}

func TestUnmappedService_PartitionWithMappings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "Physician Survey", "MGMA", specialtyCSV("Cardiology", "Urology"))
	env.upload(t, "Physician Survey", "SullivanCotter", specialtyCSV("Cardiovascular Disease", "Cardiology"))
	env.upload(t, "Physician Survey", "Gallagher", specialtyCSV("Cardiology"))

	_, err := env.mappings.CreateMapping(ctx, testUserID, models.MappingKindSpecialty, "Cardiology", "", []models.SourceEntry{
		{RawLabel: "Cardiology", SurveySource: "MGMA", Frequency: 1},
		{RawLabel: "Cardiovascular Disease", SurveySource: "SullivanCotter", Frequency: 1},
	})
	require.NoError(t, err)

	got, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindSpecialty, models.ProviderTypePhysician)
	require.NoError(t, err)

	pairs := make(map[string]bool)
	for _, u := range got {
		pairs[u.RawLabel+"|"+u.SurveySource] = true
	}
	assert.False(t, pairs["Cardiology|MGMA"])
	assert.False(t, pairs["Cardiovascular Disease|SullivanCotter"])
	assert.True(t, pairs["Cardiology|SullivanCotter"])
	assert.True(t, pairs["Cardiology|Gallagher"], "the same label from an unmapped source still appears")
	assert.True(t, pairs["Urology|MGMA"])
	assert.Len(t, got, 3)
}

func TestUnmappedService_ColumnHeaders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "Physician Survey", "MGMA", "Specialty,Median TCC\nCardiology,1\nUrology,2\n")
	env.upload(t, "Physician Survey 2", "MGMA", "specialty,Median TCC,wRVU Median\nCardiology,1,2\n")

	got, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindColumn, "")
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "Median TCC", got[0].RawLabel)
	assert.Equal(t, 2, got[0].Frequency, "a header counts once per survey")
	assert.Equal(t, "Specialty", got[1].RawLabel)
	assert.Equal(t, 2, got[1].Frequency)
	assert.Equal(t, "wRVU Median", got[2].RawLabel)
}

func TestUnmappedService_RawAliasFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "Physician Survey", "AMGA", "Geographic Region,p50\nNortheast,1\nnortheast,2\n")

	got, err := env.unmapped.GetUnmapped(ctx, testUserID, models.MappingKindRegion, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Northeast", got[0].RawLabel)
	assert.Equal(t, 2, got[0].Frequency)
}

func TestUnmappedService_UnknownKind(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.unmapped.GetUnmapped(context.Background(), testUserID, "nope", "")
	require.Error(t, err)
}
