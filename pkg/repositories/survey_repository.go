package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// rowInsertBatchSize bounds the number of rows per INSERT statement.
const rowInsertBatchSize = 200

// SurveyRepository provides local data access for surveys and their rows.
type SurveyRepository interface {
	Create(ctx context.Context, survey *models.SurveyRecord, rows []models.SurveyRow) error
	GetByID(ctx context.Context, userID string, surveyID uuid.UUID) (*models.SurveyRecord, error)
	List(ctx context.Context, userID string) ([]*models.SurveyRecord, error)
	GetRows(ctx context.Context, userID string, surveyID uuid.UUID) ([]models.SurveyRow, error)
	Delete(ctx context.Context, userID string, surveyID uuid.UUID) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type surveyRepository struct {
	db *gorm.DB
}

// NewSurveyRepository creates a new SurveyRepository.
func NewSurveyRepository(db *gorm.DB) SurveyRepository {
	return &surveyRepository{db: db}
}

var _ SurveyRepository = (*surveyRepository)(nil)

func (r *surveyRepository) Create(ctx context.Context, survey *models.SurveyRecord, rows []models.SurveyRow) error {
	if survey.ID == uuid.Nil {
		survey.ID = uuid.New()
	}
	for i := range rows {
		rows[i].SurveyID = survey.ID
		rows[i].UserID = survey.UserID
	}
	survey.RowCount = len(rows)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(survey).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, rowInsertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create survey: %w", err)
	}
	return nil
}

func (r *surveyRepository) GetByID(ctx context.Context, userID string, surveyID uuid.UUID) (*models.SurveyRecord, error) {
	var survey models.SurveyRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, surveyID).
		First(&survey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}
	return &survey, nil
}

func (r *surveyRepository) List(ctx context.Context, userID string) ([]*models.SurveyRecord, error) {
	var surveys []*models.SurveyRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at, id").
		Find(&surveys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}
	return surveys, nil
}

func (r *surveyRepository) GetRows(ctx context.Context, userID string, surveyID uuid.UUID) ([]models.SurveyRow, error) {
	var rows []models.SurveyRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND survey_id = ?", userID, surveyID).
		Order("row_index").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get survey rows: %w", err)
	}
	return rows, nil
}

// Delete removes a survey and cascades to its rows.
func (r *surveyRepository) Delete(ctx context.Context, userID string, surveyID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND survey_id = ?", userID, surveyID).
			Delete(&models.SurveyRow{}).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ? AND id = ?", userID, surveyID).Delete(&models.SurveyRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete survey: %w", err)
	}
	return nil
}

// DeleteAll removes every survey and row of the user. Returns the number of surveys removed.
func (r *surveyRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.SurveyRow{}).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ?", userID).Delete(&models.SurveyRecord{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete surveys: %w", err)
	}
	return deleted, nil
}
