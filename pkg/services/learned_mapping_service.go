package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
)

// LearnedMappingService remembers label corrections per mapping kind.
type LearnedMappingService interface {
	// Get returns original label -> corrected label. A non-empty provider type
	// limits the result to entries of that type or without one.
	Get(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) (map[string]string, error)

	// Entries is Get with the full entries, used where the survey source matters.
	Entries(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) ([]*models.LearnedMapping, error)

	// Save stores a correction; a later save of the same original label wins.
	Save(ctx context.Context, userID string, entry *models.LearnedMapping) error

	Remove(ctx context.Context, userID string, kind models.MappingKind, original string) error

	// Clear removes every entry of a kind. Clearing an empty kind is not an error.
	Clear(ctx context.Context, userID string, kind models.MappingKind) error
}

type learnedMappingService struct {
	repo   repositories.LearnedMappingRepository
	cache  *cache.Cache
	logger *zap.Logger
}

// NewLearnedMappingService creates a LearnedMappingService whose reads are
// cached for ttl. The cache janitor runs every cleanupInterval.
func NewLearnedMappingService(
	repo repositories.LearnedMappingRepository,
	ttl, cleanupInterval time.Duration,
	logger *zap.Logger,
) LearnedMappingService {
	return &learnedMappingService{
		repo:   repo,
		cache:  cache.New(ttl, cleanupInterval),
		logger: logger.Named("learned-mappings"),
	}
}

var _ LearnedMappingService = (*learnedMappingService)(nil)

func (s *learnedMappingService) Get(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) (map[string]string, error) {
	entries, err := s.Entries(ctx, userID, kind, providerType)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(entries))
	for _, e := range entries {
		result[e.Original] = e.Corrected
	}
	return result, nil
}

func (s *learnedMappingService) Entries(ctx context.Context, userID string, kind models.MappingKind, providerType models.ProviderType) ([]*models.LearnedMapping, error) {
	if !kind.IsValid() {
		return nil, apperrors.Validationf("unknown mapping type %q", kind)
	}

	key := learnedCacheKey(userID, kind, providerType)
	if cached, found := s.cache.Get(key); found {
		return cached.([]*models.LearnedMapping), nil
	}

	all, err := s.repo.ListByType(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load learned mappings: %w", err)
	}

	entries := make([]*models.LearnedMapping, 0, len(all))
	for _, e := range all {
		if providerType == "" || e.ProviderType == "" || e.ProviderType == providerType {
			entries = append(entries, e)
		}
	}

	s.cache.SetDefault(key, entries)
	return entries, nil
}

func (s *learnedMappingService) Save(ctx context.Context, userID string, entry *models.LearnedMapping) error {
	if !entry.Type.IsValid() {
		return apperrors.Validationf("unknown mapping type %q", entry.Type)
	}
	entry.Original = strings.TrimSpace(entry.Original)
	entry.Corrected = strings.TrimSpace(entry.Corrected)
	if entry.Original == "" || entry.Corrected == "" {
		return apperrors.Validationf("original and corrected labels are required")
	}
	if entry.ProviderType != "" && !entry.ProviderType.IsValid() {
		return apperrors.Validationf("unknown provider type %q", entry.ProviderType)
	}

	entry.UserID = userID
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return err
	}
	s.invalidate(userID, entry.Type)

	s.logger.Debug("Saved learned mapping",
		zap.String("type", string(entry.Type)),
		zap.String("original", entry.Original),
		zap.String("corrected", entry.Corrected))
	return nil
}

func (s *learnedMappingService) Remove(ctx context.Context, userID string, kind models.MappingKind, original string) error {
	if err := s.repo.Delete(ctx, userID, kind, original); err != nil {
		return err
	}
	s.invalidate(userID, kind)
	return nil
}

func (s *learnedMappingService) Clear(ctx context.Context, userID string, kind models.MappingKind) error {
	removed, err := s.repo.DeleteByType(ctx, userID, kind)
	if err != nil {
		return err
	}
	s.invalidate(userID, kind)

	s.logger.Info("Cleared learned mappings",
		zap.String("type", string(kind)),
		zap.Int64("removed", removed))
	return nil
}

// invalidate drops every provider-type view of (user, kind).
func (s *learnedMappingService) invalidate(userID string, kind models.MappingKind) {
	s.cache.Delete(learnedCacheKey(userID, kind, ""))
	for _, pt := range models.ProviderTypes {
		s.cache.Delete(learnedCacheKey(userID, kind, pt))
	}
}

func learnedCacheKey(userID string, kind models.MappingKind, providerType models.ProviderType) string {
	return userID + "|" + string(kind) + "|" + string(providerType)
}
