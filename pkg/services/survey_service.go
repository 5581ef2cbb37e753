package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/csvimport"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
)

// UploadRequest describes a survey file being uploaded.
type UploadRequest struct {
	Name         string              `json:"name"`
	Year         int                 `json:"year"`
	Type         string              `json:"type"`
	ProviderType models.ProviderType `json:"provider_type,omitempty"`
}

// UploadResult is the stored survey plus parsing statistics.
type UploadResult struct {
	Survey      *models.SurveyRecord `json:"survey"`
	SkippedRows int                  `json:"skipped_rows"`
}

// RestoreResult reports how many surveys a backup restore created.
type RestoreResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ClearResult reports what a clear-all removed locally.
type ClearResult struct {
	Surveys  int64 `json:"surveys"`
	Mappings int64 `json:"mappings"`
}

// SurveyService manages uploaded surveys and whole-account storage operations.
type SurveyService interface {
	Upload(ctx context.Context, userID string, req *UploadRequest, file io.Reader) (*UploadResult, error)
	List(ctx context.Context, userID string) ([]*models.SurveyRecord, error)
	Get(ctx context.Context, userID string, surveyID uuid.UUID) (*models.SurveyRecord, error)
	GetRows(ctx context.Context, userID string, surveyID uuid.UUID) ([]models.SurveyRow, error)

	// Delete removes a survey and its rows.
	Delete(ctx context.Context, userID string, surveyID uuid.UUID) error

	// Export returns every survey with its rows as a backup document.
	Export(ctx context.Context, userID string) (*models.BackupExport, error)

	// Restore imports a backup. Surveys whose id already exists are skipped.
	Restore(ctx context.Context, userID string, backup *models.BackupExport) (*RestoreResult, error)

	// ClearAll removes every survey, mapping and learned mapping of the user.
	ClearAll(ctx context.Context, userID string) (*ClearResult, error)
}

type surveyService struct {
	surveyRepo  repositories.SurveyRepository
	mappingRepo repositories.MappingRepository
	learned     LearnedMappingService
	mirror      Mirror
	logger      *zap.Logger
}

// NewSurveyService creates a new SurveyService. mirror may be nil.
func NewSurveyService(
	surveyRepo repositories.SurveyRepository,
	mappingRepo repositories.MappingRepository,
	learned LearnedMappingService,
	mirror Mirror,
	logger *zap.Logger,
) SurveyService {
	return &surveyService{
		surveyRepo:  surveyRepo,
		mappingRepo: mappingRepo,
		learned:     learned,
		mirror:      mirror,
		logger:      logger.Named("surveys"),
	}
}

var _ SurveyService = (*surveyService)(nil)

func (s *surveyService) Upload(ctx context.Context, userID string, req *UploadRequest, file io.Reader) (*UploadResult, error) {
	name := strings.TrimSpace(req.Name)
	source := strings.TrimSpace(req.Type)
	if name == "" || source == "" {
		return nil, apperrors.Validationf("survey name and type are required")
	}
	if req.ProviderType != "" && !req.ProviderType.IsValid() {
		return nil, apperrors.Validationf("unknown provider type %q", req.ProviderType)
	}

	parsed, err := csvimport.Parse(file)
	if err != nil {
		return nil, err
	}

	survey := &models.SurveyRecord{
		UserID:       userID,
		Name:         name,
		Year:         req.Year,
		Type:         source,
		ProviderType: req.ProviderType,
		Columns:      parsed.Columns,
		UploadedAt:   time.Now().UTC(),
	}
	if err := s.surveyRepo.Create(ctx, survey, parsed.Rows); err != nil {
		return nil, err
	}

	s.logger.Info("Uploaded survey",
		zap.String("survey_id", survey.ID.String()),
		zap.String("type", survey.Type),
		zap.Int("rows", survey.RowCount),
		zap.Int("skipped_rows", parsed.Skipped))

	if s.mirror != nil {
		if err := s.mirror.SaveSurvey(ctx, userID, survey, parsed.Rows); err != nil {
			s.logger.Warn("Failed to mirror survey",
				zap.String("survey_id", survey.ID.String()),
				zap.Error(err))
		}
	}
	return &UploadResult{Survey: survey, SkippedRows: parsed.Skipped}, nil
}

func (s *surveyService) List(ctx context.Context, userID string) ([]*models.SurveyRecord, error) {
	return s.surveyRepo.List(ctx, userID)
}

func (s *surveyService) Get(ctx context.Context, userID string, surveyID uuid.UUID) (*models.SurveyRecord, error) {
	return s.surveyRepo.GetByID(ctx, userID, surveyID)
}

func (s *surveyService) GetRows(ctx context.Context, userID string, surveyID uuid.UUID) ([]models.SurveyRow, error) {
	if _, err := s.surveyRepo.GetByID(ctx, userID, surveyID); err != nil {
		return nil, err
	}
	return s.surveyRepo.GetRows(ctx, userID, surveyID)
}

func (s *surveyService) Delete(ctx context.Context, userID string, surveyID uuid.UUID) error {
	if err := s.surveyRepo.Delete(ctx, userID, surveyID); err != nil {
		return err
	}
	s.logger.Info("Deleted survey", zap.String("survey_id", surveyID.String()))

	if s.mirror != nil {
		if err := s.mirror.DeleteSurvey(ctx, userID, surveyID); err != nil {
			s.logger.Warn("Failed to mirror survey delete",
				zap.String("survey_id", surveyID.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (s *surveyService) Export(ctx context.Context, userID string) (*models.BackupExport, error) {
	surveys, err := s.surveyRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	backup := &models.BackupExport{
		Surveys:      make([]models.SurveyBackup, 0, len(surveys)),
		ExportDate:   time.Now().UTC().Format(time.RFC3339),
		Version:      models.BackupVersion,
		TotalSurveys: len(surveys),
	}
	for _, survey := range surveys {
		rows, err := s.surveyRepo.GetRows(ctx, userID, survey.ID)
		if err != nil {
			return nil, err
		}
		backup.Surveys = append(backup.Surveys, models.SurveyBackup{SurveyRecord: *survey, Rows: rows})
	}
	return backup, nil
}

func (s *surveyService) Restore(ctx context.Context, userID string, backup *models.BackupExport) (*RestoreResult, error) {
	if backup == nil || backup.Version != models.BackupVersion {
		return nil, apperrors.Validationf("unsupported backup version")
	}

	// Records are normalized like uploads so their source matches mapping claims.
	surveys := make([]models.SurveyRecord, len(backup.Surveys))
	for i := range backup.Surveys {
		survey := backup.Surveys[i].SurveyRecord
		survey.Name = strings.TrimSpace(survey.Name)
		survey.Type = strings.TrimSpace(survey.Type)
		if survey.Name == "" || survey.Type == "" {
			return nil, apperrors.Validationf("backup survey %d: name and type are required", i+1)
		}
		if survey.ProviderType != "" && !survey.ProviderType.IsValid() {
			return nil, apperrors.Validationf("backup survey %d: unknown provider type %q", i+1, survey.ProviderType)
		}
		survey.UserID = userID
		surveys[i] = survey
	}

	result := &RestoreResult{}
	for i := range backup.Surveys {
		entry := backup.Surveys[i]
		survey := surveys[i]

		if survey.ID != uuid.Nil {
			_, err := s.surveyRepo.GetByID(ctx, userID, survey.ID)
			if err == nil {
				result.Skipped++
				continue
			}
			if !errors.Is(err, apperrors.ErrNotFound) {
				return result, err
			}
		}
		if survey.UploadedAt.IsZero() {
			survey.UploadedAt = time.Now().UTC()
		}

		rows := make([]models.SurveyRow, len(entry.Rows))
		for j, row := range entry.Rows {
			row.ID = 0
			rows[j] = row
		}
		if err := s.surveyRepo.Create(ctx, &survey, rows); err != nil {
			return result, fmt.Errorf("failed to restore survey %q: %w", survey.Name, err)
		}
		result.Imported++
	}

	s.logger.Info("Restored backup",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *surveyService) ClearAll(ctx context.Context, userID string) (*ClearResult, error) {
	surveys, err := s.surveyRepo.DeleteAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	mappings, err := s.mappingRepo.DeleteAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, kind := range models.MappingKinds {
		if err := s.learned.Clear(ctx, userID, kind); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Cleared all local data",
		zap.Int64("surveys", surveys),
		zap.Int64("mappings", mappings))

	if s.mirror != nil {
		if err := s.mirror.ClearUser(ctx, userID); err != nil {
			s.logger.Warn("Failed to clear remote data", zap.Error(err))
		}
	}
	return &ClearResult{Surveys: surveys, Mappings: mappings}, nil
}
