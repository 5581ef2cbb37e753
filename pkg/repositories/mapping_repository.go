package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// MappingRepository provides local data access for mapping records and their source entries.
type MappingRepository interface {
	Create(ctx context.Context, mapping *models.MappingRecord) error
	GetByID(ctx context.Context, userID string, mappingID uuid.UUID) (*models.MappingRecord, error)
	ListByKind(ctx context.Context, userID string, kind models.MappingKind) ([]*models.MappingRecord, error)
	AddSources(ctx context.Context, userID string, mappingID uuid.UUID, entries []models.SourceEntry) error
	RemoveSource(ctx context.Context, userID string, mappingID uuid.UUID, claim models.SourceClaim) error
	Delete(ctx context.Context, userID string, mappingID uuid.UUID) error
	DeleteByKind(ctx context.Context, userID string, kind models.MappingKind) (int64, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepository{db: db}
}

var _ MappingRepository = (*mappingRepository)(nil)

func (r *mappingRepository) Create(ctx context.Context, mapping *models.MappingRecord) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	prepareSources(mapping.UserID, mapping.ID, mapping.Kind, mapping.Sources, 0)

	// Sources are inserted explicitly: association saving would use
	// ON CONFLICT DO NOTHING and silently drop duplicate claims.
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(mapping).Error; err != nil {
			return err
		}
		if len(mapping.Sources) == 0 {
			return nil
		}
		return tx.Create(&mapping.Sources).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create mapping: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create mapping: %w", err)
	}
	return nil
}

func (r *mappingRepository) GetByID(ctx context.Context, userID string, mappingID uuid.UUID) (*models.MappingRecord, error) {
	var mapping models.MappingRecord
	err := r.db.WithContext(ctx).
		Preload("Sources", orderByPosition).
		Where("user_id = ? AND id = ?", userID, mappingID).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return &mapping, nil
}

// ListByKind returns the user's mappings of a kind in creation order.
func (r *mappingRepository) ListByKind(ctx context.Context, userID string, kind models.MappingKind) ([]*models.MappingRecord, error) {
	var mappings []*models.MappingRecord
	err := r.db.WithContext(ctx).
		Preload("Sources", orderByPosition).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("created_at, rowid").
		Find(&mappings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mappings, nil
}

func (r *mappingRepository) AddSources(ctx context.Context, userID string, mappingID uuid.UUID, entries []models.SourceEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mapping models.MappingRecord
		if err := tx.Where("user_id = ? AND id = ?", userID, mappingID).First(&mapping).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		// Positions continue after the highest one in use; removals leave gaps.
		var next int
		if err := tx.Model(&models.SourceEntry{}).
			Where("mapping_id = ?", mappingID).
			Select("COALESCE(MAX(position) + 1, 0)").
			Scan(&next).Error; err != nil {
			return err
		}

		prepareSources(userID, mappingID, mapping.Kind, entries, next)
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}
		return tx.Model(&mapping).Update("updated_at", time.Now().UTC()).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to add mapping sources: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to add mapping sources: %w", err)
	}
	return nil
}

func (r *mappingRepository) RemoveSource(ctx context.Context, userID string, mappingID uuid.UUID, claim models.SourceClaim) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND mapping_id = ? AND label_key = ? AND survey_source = ?",
			userID, mappingID, claim.LabelKey, claim.SurveySource).
		Delete(&models.SourceEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove mapping source: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes a mapping and all its source entries.
func (r *mappingRepository) Delete(ctx context.Context, userID string, mappingID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND mapping_id = ?", userID, mappingID).
			Delete(&models.SourceEntry{}).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ? AND id = ?", userID, mappingID).Delete(&models.MappingRecord{})
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
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

// DeleteByKind removes every mapping of a kind. Deleting nothing is not an error.
func (r *mappingRepository) DeleteByKind(ctx context.Context, userID string, kind models.MappingKind) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND kind = ?", userID, kind).
			Delete(&models.SourceEntry{}).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ? AND kind = ?", userID, kind).Delete(&models.MappingRecord{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear mappings: %w", err)
	}
	return deleted, nil
}

func (r *mappingRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.SourceEntry{}).Error; err != nil {
			return err
		}
		result := tx.Where("user_id = ?", userID).Delete(&models.MappingRecord{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete mappings: %w", err)
	}
	return deleted, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// prepareSources stamps ownership, claim key and order onto new source entries.
func prepareSources(userID string, mappingID uuid.UUID, kind models.MappingKind, entries []models.SourceEntry, offset int) {
	for i := range entries {
		entries[i].ID = 0
		entries[i].MappingID = mappingID
		entries[i].UserID = userID
		entries[i].Kind = kind
		entries[i].LabelKey = models.NormalizeLabel(entries[i].RawLabel)
		entries[i].Position = offset + i
	}
}

// isUniqueViolation reports whether err is a unique constraint failure.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
