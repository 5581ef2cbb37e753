package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
)

// MappingService groups raw source labels under canonical names.
type MappingService interface {
	// CreateMapping stores a new mapping. It fails with *apperrors.ConflictError
	// when any (label, source) pair is already claimed by a mapping of the same
	// kind or repeated within entries.
	CreateMapping(ctx context.Context, userID string, kind models.MappingKind, canonicalName string, providerType models.ProviderType, entries []models.SourceEntry) (*models.MappingRecord, error)

	// AddSourceEntries appends entries to an existing mapping under the same conflict rule.
	AddSourceEntries(ctx context.Context, userID string, mappingID uuid.UUID, entries []models.SourceEntry) (*models.MappingRecord, error)

	// RemoveSourceEntry detaches one (label, source) pair, returning it to the unmapped set.
	RemoveSourceEntry(ctx context.Context, userID string, mappingID uuid.UUID, rawLabel, surveySource string) (*models.MappingRecord, error)

	GetMapping(ctx context.Context, userID string, mappingID uuid.UUID) (*models.MappingRecord, error)
	ListMappings(ctx context.Context, userID string, kind models.MappingKind) ([]*models.MappingRecord, error)

	// DeleteMapping removes a mapping and all its entries.
	DeleteMapping(ctx context.Context, userID string, mappingID uuid.UUID) error

	// ClearAllMappings removes every mapping of a kind. It is idempotent.
	ClearAllMappings(ctx context.Context, userID string, kind models.MappingKind) (int64, error)

	// AutoMap suggests groupings for the currently unmapped labels. Nothing is persisted.
	AutoMap(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType, cfg models.AutoMapConfig) ([]models.AutoMapSuggestion, error)

	// ApplySuggestions persists suggestions, continuing past individual failures.
	ApplySuggestions(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType, suggestions []models.AutoMapSuggestion) (*ApplyResult, error)
}

// ApplyResult reports the outcome of ApplySuggestions.
type ApplyResult struct {
	Applied []*models.MappingRecord `json:"applied"`
	Errors  []string                `json:"errors"`
}

type mappingService struct {
	mappingRepo repositories.MappingRepository
	unmapped    UnmappedService
	mirror      Mirror
	logger      *zap.Logger
}

// NewMappingService creates a new MappingService. mirror may be nil when
// cloud sync is not configured.
func NewMappingService(
	mappingRepo repositories.MappingRepository,
	unmapped UnmappedService,
	mirror Mirror,
	logger *zap.Logger,
) MappingService {
	return &mappingService{
		mappingRepo: mappingRepo,
		unmapped:    unmapped,
		mirror:      mirror,
		logger:      logger.Named("mappings"),
	}
}

var _ MappingService = (*mappingService)(nil)

func (s *mappingService) CreateMapping(
	ctx context.Context,
	userID string,
	kind models.MappingKind,
	canonicalName string,
	providerType models.ProviderType,
	entries []models.SourceEntry,
) (*models.MappingRecord, error) {
	if !kind.IsValid() {
		return nil, apperrors.Validationf("unknown mapping kind %q", kind)
	}
	canonicalName = strings.TrimSpace(canonicalName)
	if canonicalName == "" {
		return nil, apperrors.Validationf("canonical name is required")
	}
	if providerType != "" && !providerType.IsValid() {
		return nil, apperrors.Validationf("unknown provider type %q", providerType)
	}
	entries, err := cleanEntries(entries)
	if err != nil {
		return nil, err
	}

	existing, err := s.mappingRepo.ListByKind(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	if err := checkClaims(existing, entries); err != nil {
		return nil, err
	}

	mapping := &models.MappingRecord{
		UserID:        userID,
		Kind:          kind,
		CanonicalName: canonicalName,
		ProviderType:  providerType,
		Sources:       entries,
	}
	if err := s.mappingRepo.Create(ctx, mapping); err != nil {
		return nil, err
	}

	s.logger.Info("Created mapping",
		zap.String("mapping_id", mapping.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("canonical_name", canonicalName),
		zap.Int("sources", len(entries)))

	s.mirrorSave(ctx, userID, mapping)
	return mapping, nil
}

func (s *mappingService) AddSourceEntries(ctx context.Context, userID string, mappingID uuid.UUID, entries []models.SourceEntry) (*models.MappingRecord, error) {
	entries, err := cleanEntries(entries)
	if err != nil {
		return nil, err
	}

	mapping, err := s.mappingRepo.GetByID(ctx, userID, mappingID)
	if err != nil {
		return nil, err
	}
	existing, err := s.mappingRepo.ListByKind(ctx, userID, mapping.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	if err := checkClaims(existing, entries); err != nil {
		return nil, err
	}

	if err := s.mappingRepo.AddSources(ctx, userID, mappingID, entries); err != nil {
		return nil, err
	}
	updated, err := s.mappingRepo.GetByID(ctx, userID, mappingID)
	if err != nil {
		return nil, err
	}

	s.mirrorSave(ctx, userID, updated)
	return updated, nil
}

func (s *mappingService) RemoveSourceEntry(ctx context.Context, userID string, mappingID uuid.UUID, rawLabel, surveySource string) (*models.MappingRecord, error) {
	claim := models.SourceClaim{LabelKey: models.NormalizeLabel(rawLabel), SurveySource: strings.TrimSpace(surveySource)}
	if claim.LabelKey == "" || claim.SurveySource == "" {
		return nil, apperrors.Validationf("raw label and survey source are required")
	}
	if err := s.mappingRepo.RemoveSource(ctx, userID, mappingID, claim); err != nil {
		return nil, err
	}
	updated, err := s.mappingRepo.GetByID(ctx, userID, mappingID)
	if err != nil {
		return nil, err
	}

	s.mirrorSave(ctx, userID, updated)
	return updated, nil
}

func (s *mappingService) GetMapping(ctx context.Context, userID string, mappingID uuid.UUID) (*models.MappingRecord, error) {
	return s.mappingRepo.GetByID(ctx, userID, mappingID)
}

func (s *mappingService) ListMappings(ctx context.Context, userID string, kind models.MappingKind) ([]*models.MappingRecord, error) {
	if !kind.IsValid() {
		return nil, apperrors.Validationf("unknown mapping kind %q", kind)
	}
	return s.mappingRepo.ListByKind(ctx, userID, kind)
}

func (s *mappingService) DeleteMapping(ctx context.Context, userID string, mappingID uuid.UUID) error {
	mapping, err := s.mappingRepo.GetByID(ctx, userID, mappingID)
	if err != nil {
		return err
	}
	if err := s.mappingRepo.Delete(ctx, userID, mappingID); err != nil {
		return err
	}

	s.logger.Info("Deleted mapping",
		zap.String("mapping_id", mappingID.String()),
		zap.String("kind", string(mapping.Kind)))

	if s.mirror != nil {
		if err := s.mirror.DeleteMapping(ctx, userID, mapping.Kind, mappingID); err != nil {
			s.logger.Warn("Failed to mirror mapping delete",
				zap.String("mapping_id", mappingID.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (s *mappingService) ClearAllMappings(ctx context.Context, userID string, kind models.MappingKind) (int64, error) {
	if !kind.IsValid() {
		return 0, apperrors.Validationf("unknown mapping kind %q", kind)
	}
	removed, err := s.mappingRepo.DeleteByKind(ctx, userID, kind)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Cleared mappings",
		zap.String("kind", string(kind)),
		zap.Int64("removed", removed))

	if s.mirror != nil {
		if err := s.mirror.ClearMappings(ctx, userID, kind); err != nil {
			s.logger.Warn("Failed to mirror mapping clear",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	return removed, nil
}

// autoMapGroup is a suggestion under construction.
type autoMapGroup struct {
	name       string
	existingID *uuid.UUID
	dataType   ColumnDataType
	entries    []models.SourceEntry
	score      float64
}

func (s *mappingService) AutoMap(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType, cfg models.AutoMapConfig) ([]models.AutoMapSuggestion, error) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, apperrors.Validationf("confidence threshold must be between 0 and 1")
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = models.DefaultAutoMapConfig().ConfidenceThreshold
	}

	unmapped, err := s.unmapped.GetUnmapped(ctx, userID, kind, providerType)
	if err != nil {
		return nil, err
	}
	if len(unmapped) == 0 {
		return []models.AutoMapSuggestion{}, nil
	}

	existing, err := s.mappingRepo.ListByKind(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	useTypes := cfg.IncludeDataTypeMatching && kind == models.MappingKindColumn
	groups := make([]*autoMapGroup, 0, len(existing))
	for _, m := range existing {
		id := m.ID
		groups = append(groups, &autoMapGroup{
			name:       m.CanonicalName,
			existingID: &id,
			dataType:   InferColumnDataType(m.CanonicalName),
			score:      1,
		})
	}

	for _, u := range unmapped {
		dataType := InferColumnDataType(u.RawLabel)
		var best *autoMapGroup
		bestScore := 0.0
		for _, g := range groups {
			score := LabelSimilarity(u.RawLabel, g.name)
			if useTypes && dataType != ColumnDataTypeUnknown && g.dataType != ColumnDataTypeUnknown {
				if dataType != g.dataType {
					continue
				}
				score += 0.1
				if score > 1 {
					score = 1
				}
			}
			// Strictly greater keeps the first-seen group on ties.
			if score >= cfg.ConfidenceThreshold && score > bestScore {
				best, bestScore = g, score
			}
		}
		if best == nil {
			best = &autoMapGroup{name: u.RawLabel, dataType: dataType, score: 1}
			groups = append(groups, best)
			bestScore = 1
		}
		best.entries = append(best.entries, models.SourceEntry{
			RawLabel:     u.RawLabel,
			SurveySource: u.SurveySource,
			Frequency:    u.Frequency,
		})
		if bestScore < best.score {
			best.score = bestScore
		}
	}

	suggestions := make([]models.AutoMapSuggestion, 0, len(groups))
	for _, g := range groups {
		if len(g.entries) == 0 {
			continue
		}
		suggestions = append(suggestions, models.AutoMapSuggestion{
			CanonicalName:     g.name,
			ExistingMappingID: g.existingID,
			Sources:           g.entries,
			Score:             g.score,
		})
	}

	s.logger.Debug("Computed auto-map suggestions",
		zap.String("kind", string(kind)),
		zap.Int("unmapped", len(unmapped)),
		zap.Int("suggestions", len(suggestions)))
	return suggestions, nil
}

func (s *mappingService) ApplySuggestions(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType, suggestions []models.AutoMapSuggestion) (*ApplyResult, error) {
	if !kind.IsValid() {
		return nil, apperrors.Validationf("unknown mapping kind %q", kind)
	}

	result := &ApplyResult{Applied: []*models.MappingRecord{}, Errors: []string{}}
	for _, sug := range suggestions {
		var (
			mapping *models.MappingRecord
			err     error
		)
		if sug.ExistingMappingID != nil {
			mapping, err = s.AddSourceEntries(ctx, userID, *sug.ExistingMappingID, sug.Sources)
		} else {
			mapping, err = s.CreateMapping(ctx, userID, kind, sug.CanonicalName, providerType, sug.Sources)
		}
		if err != nil {
			if !isUserError(err) {
				return result, err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sug.CanonicalName, err))
			continue
		}
		result.Applied = append(result.Applied, mapping)
	}
	return result, nil
}

func (s *mappingService) mirrorSave(ctx context.Context, userID string, mapping *models.MappingRecord) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SaveMapping(ctx, userID, mapping); err != nil {
		s.logger.Warn("Failed to mirror mapping",
			zap.String("mapping_id", mapping.ID.String()),
			zap.Error(err))
	}
}

// cleanEntries trims entries and rejects incomplete ones.
func cleanEntries(entries []models.SourceEntry) ([]models.SourceEntry, error) {
	if len(entries) == 0 {
		return nil, apperrors.Validationf("at least one source entry is required")
	}
	cleaned := make([]models.SourceEntry, 0, len(entries))
	for _, e := range entries {
		e.RawLabel = strings.TrimSpace(e.RawLabel)
		e.SurveySource = strings.TrimSpace(e.SurveySource)
		if e.RawLabel == "" || e.SurveySource == "" {
			return nil, apperrors.Validationf("source entries need a raw label and a survey source")
		}
		if e.Frequency < 0 {
			e.Frequency = 0
		}
		cleaned = append(cleaned, e)
	}
	return cleaned, nil
}

// checkClaims returns a ConflictError listing every entry already claimed by
// one of existing or repeated within entries.
func checkClaims(existing []*models.MappingRecord, entries []models.SourceEntry) error {
	claimed := make(map[models.SourceClaim]*models.MappingRecord)
	for _, m := range existing {
		for _, src := range m.Sources {
			claimed[src.Claim()] = m
		}
	}

	var conflicts []apperrors.ClaimConflict
	seen := make(map[models.SourceClaim]bool, len(entries))
	for _, e := range entries {
		claim := e.Claim()
		if owner, ok := claimed[claim]; ok {
			conflicts = append(conflicts, apperrors.ClaimConflict{
				RawLabel:      e.RawLabel,
				SurveySource:  e.SurveySource,
				MappingID:     owner.ID.String(),
				CanonicalName: owner.CanonicalName,
			})
			continue
		}
		if seen[claim] {
			conflicts = append(conflicts, apperrors.ClaimConflict{
				RawLabel:     e.RawLabel,
				SurveySource: e.SurveySource,
			})
			continue
		}
		seen[claim] = true
	}

	if len(conflicts) > 0 {
		return &apperrors.ConflictError{Conflicts: conflicts}
	}
	return nil
}

// isUserError reports whether err stems from the request rather than the store.
func isUserError(err error) bool {
	return errors.Is(err, apperrors.ErrConflict) ||
		errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotFound)
}
