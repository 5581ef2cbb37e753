package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
)

// UnmappedService finds raw labels that no mapping or learned correction covers.
type UnmappedService interface {
	// GetUnmapped returns one entity per (label, survey source) pair, sorted by
	// lower-cased label then source. An empty provider type means all buckets.
	GetUnmapped(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) ([]models.UnmappedEntity, error)
}

type unmappedService struct {
	surveyRepo  repositories.SurveyRepository
	mappingRepo repositories.MappingRepository
	learned     LearnedMappingService
	logger      *zap.Logger
}

// NewUnmappedService creates a new UnmappedService.
func NewUnmappedService(
	surveyRepo repositories.SurveyRepository,
	mappingRepo repositories.MappingRepository,
	learned LearnedMappingService,
	logger *zap.Logger,
) UnmappedService {
	return &unmappedService{
		surveyRepo:  surveyRepo,
		mappingRepo: mappingRepo,
		learned:     learned,
		logger:      logger.Named("unmapped"),
	}
}

var _ UnmappedService = (*unmappedService)(nil)

type unmappedAccumulator struct {
	display      string
	frequency    int
	providerType models.ProviderType
}

func (s *unmappedService) GetUnmapped(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) ([]models.UnmappedEntity, error) {
	if !kind.IsValid() {
		return nil, apperrors.Validationf("unknown mapping kind %q", kind)
	}

	surveys, err := s.surveyRepo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}
	if len(surveys) == 0 {
		return []models.UnmappedEntity{}, nil
	}

	mapped, err := s.mappedClaims(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	learned, err := s.learnedByKey(ctx, userID, kind, providerType)
	if err != nil {
		return nil, err
	}

	accs := make(map[models.SourceClaim]*unmappedAccumulator)
	observe := func(label, source string, bucket models.ProviderType) {
		key := models.NormalizeLabel(label)
		if key == "" {
			return
		}
		claim := models.SourceClaim{LabelKey: key, SurveySource: source}
		if _, ok := mapped[claim]; ok {
			return
		}
		for _, entry := range learned[key] {
			if entry.AppliesTo(source) {
				return
			}
		}
		acc, ok := accs[claim]
		if !ok {
			acc = &unmappedAccumulator{display: label, providerType: bucket}
			accs[claim] = acc
		}
		acc.frequency++
	}

	field, hasField := models.LabelFieldForKind(kind)
	for _, survey := range surveys {
		bucket := ClassifyProviderType(survey)
		if providerType != "" && bucket != providerType {
			continue
		}
		source := survey.Source()

		if !hasField {
			for _, header := range survey.Columns {
				observe(header, source, bucket)
			}
			continue
		}

		rows, err := s.surveyRepo.GetRows(ctx, userID, survey.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rows of survey %s: %w", survey.ID, err)
		}
		for i := range rows {
			observe(rows[i].Label(field), source, bucket)
		}
	}

	result := make([]models.UnmappedEntity, 0, len(accs))
	for claim, acc := range accs {
		result = append(result, models.UnmappedEntity{
			RawLabel:     acc.display,
			Frequency:    acc.frequency,
			SurveySource: claim.SurveySource,
			ProviderType: acc.providerType,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		ki, kj := models.NormalizeLabel(result[i].RawLabel), models.NormalizeLabel(result[j].RawLabel)
		if ki != kj {
			return ki < kj
		}
		return result[i].SurveySource < result[j].SurveySource
	})

	s.logger.Debug("Computed unmapped entities",
		zap.String("kind", string(kind)),
		zap.String("provider_type", string(providerType)),
		zap.Int("surveys", len(surveys)),
		zap.Int("unmapped", len(result)))
	return result, nil
}

func (s *unmappedService) mappedClaims(ctx context.Context, userID string, kind models.MappingKind) (map[models.SourceClaim]struct{}, error) {
	mappings, err := s.mappingRepo.ListByKind(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	claims := make(map[models.SourceClaim]struct{})
	for _, m := range mappings {
		for _, src := range m.Sources {
			claims[src.Claim()] = struct{}{}
		}
	}
	return claims, nil
}

func (s *unmappedService) learnedByKey(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) (map[string][]*models.LearnedMapping, error) {
	entries, err := s.learned.Entries(ctx, userID, kind, providerType)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string][]*models.LearnedMapping, len(entries))
	for _, e := range entries {
		key := models.NormalizeLabel(e.Original)
		byKey[key] = append(byKey[key], e)
	}
	return byKey, nil
}
