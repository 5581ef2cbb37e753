package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// LearnedMappingRepository provides local data access for learned label corrections.
type LearnedMappingRepository interface {
	Upsert(ctx context.Context, entry *models.LearnedMapping) error
	ListByType(ctx context.Context, userID string, kind models.MappingKind) ([]*models.LearnedMapping, error)
	Delete(ctx context.Context, userID string, kind models.MappingKind, original string) error
	DeleteByType(ctx context.Context, userID string, kind models.MappingKind) (int64, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type learnedMappingRepository struct {
	db *gorm.DB
}

// NewLearnedMappingRepository creates a new LearnedMappingRepository.
func NewLearnedMappingRepository(db *gorm.DB) LearnedMappingRepository {
	return &learnedMappingRepository{db: db}
}

var _ LearnedMappingRepository = (*learnedMappingRepository)(nil)

// Upsert stores the entry, replacing any earlier correction of the same original label.
func (r *learnedMappingRepository) Upsert(ctx context.Context, entry *models.LearnedMapping) error {
	entry.OriginalKey = models.NormalizeLabel(entry.Original)
	entry.UpdatedAt = time.Now().UTC()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "type"}, {Name: "original_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"original", "corrected", "provider_type", "survey_source", "updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to save learned mapping: %w", err)
	}
	return nil
}

func (r *learnedMappingRepository) ListByType(ctx context.Context, userID string, kind models.MappingKind) ([]*models.LearnedMapping, error) {
	var entries []*models.LearnedMapping
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, kind).
		Order("original_key").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list learned mappings: %w", err)
	}
	return entries, nil
}

func (r *learnedMappingRepository) Delete(ctx context.Context, userID string, kind models.MappingKind, original string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND original_key = ?", userID, kind, models.NormalizeLabel(original)).
		Delete(&models.LearnedMapping{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete learned mapping: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *learnedMappingRepository) DeleteByType(ctx context.Context, userID string, kind models.MappingKind) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, kind).
		Delete(&models.LearnedMapping{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear learned mappings: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *learnedMappingRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.LearnedMapping{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete learned mappings: %w", result.Error)
	}
	return result.RowsAffected, nil
}
