package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// Mirror receives local changes that should also reach the remote store.
// Implementations queue writes while offline; a returned error is logged by
// the caller and never fails the local operation.
type Mirror interface {
	SaveSurvey(ctx context.Context, userID string, survey *models.SurveyRecord, rows []models.SurveyRow) error
	DeleteSurvey(ctx context.Context, userID string, surveyID uuid.UUID) error
	SaveMapping(ctx context.Context, userID string, mapping *models.MappingRecord) error
	DeleteMapping(ctx context.Context, userID string, kind models.MappingKind, mappingID uuid.UUID) error
	ClearMappings(ctx context.Context, userID string, kind models.MappingKind) error
	ClearUser(ctx context.Context, userID string) error
}
