package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/database"
	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/retry"
)

// MaxChunkSize is the largest number of documents committed atomically.
const MaxChunkSize = 500

// ErrOffline is returned by reads attempted while the remote store is unreachable.
var ErrOffline = errors.New("cloud sync is offline")

// ProgressFunc receives upload progress as a percentage.
type ProgressFunc func(percent float64)

// Config tunes batching, retries and the offline queue.
type Config struct {
	ChunkSize       int
	InterChunkDelay time.Duration
	// Progress is reported within [ProgressStart, ProgressEnd].
	ProgressStart float64
	ProgressEnd   float64
	// MaxDrainAttempts bounds how often a queued operation is retried; 0 is unbounded.
	MaxDrainAttempts int
	Transient        *retry.Config
	Throttled        *retry.Config
}

// DefaultConfig returns the production batching and retry settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:        MaxChunkSize,
		InterChunkDelay:  100 * time.Millisecond,
		ProgressStart:    70,
		ProgressEnd:      100,
		MaxDrainAttempts: 5,
		Transient: &retry.Config{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
		},
		Throttled: &retry.Config{
			MaxRetries:   5,
			InitialDelay: 5 * time.Second,
			MaxDelay:     2 * time.Minute,
			Multiplier:   2,
		},
	}
}

// Adapter writes survey data to a DocumentStore. While offline, mirror
// writes are queued and replayed in order once the store is reachable again.
type Adapter struct {
	store   DocumentStore
	cfg     Config
	queue   *Queue
	metrics *Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	online bool
}

// NewAdapter creates an Adapter. It starts offline until SetOnline(true).
func NewAdapter(store DocumentStore, cfg Config, metrics *Metrics, logger *zap.Logger) *Adapter {
	defaults := DefaultConfig()
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > MaxChunkSize {
		cfg.ChunkSize = MaxChunkSize
	}
	if cfg.ProgressEnd <= cfg.ProgressStart {
		cfg.ProgressStart, cfg.ProgressEnd = defaults.ProgressStart, defaults.ProgressEnd
	}
	if cfg.Transient == nil {
		cfg.Transient = defaults.Transient
	}
	if cfg.Throttled == nil {
		cfg.Throttled = defaults.Throttled
	}

	return &Adapter{
		store:   store,
		cfg:     cfg,
		queue:   NewQueue(cfg.MaxDrainAttempts),
		metrics: metrics,
		logger:  logger.Named("cloudsync"),
	}
}

// Store returns the underlying document store.
func (a *Adapter) Store() DocumentStore {
	return a.store
}

// IsOnline reports whether writes are sent immediately.
func (a *Adapter) IsOnline() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.online
}

// QueueLen returns the number of writes waiting for connectivity.
func (a *Adapter) QueueLen() int {
	return a.queue.Len()
}

// SetOnline switches between immediate and queued writes. Going online
// drains the queue before returning.
func (a *Adapter) SetOnline(ctx context.Context, online bool) {
	a.mu.Lock()
	changed := a.online != online
	a.online = online
	a.mu.Unlock()

	a.metrics.setOnline(online)
	if changed {
		a.logger.Info("Cloud sync connectivity changed", zap.Bool("online", online))
	}
	if online && a.queue.Len() > 0 {
		a.drain(ctx)
	}
}

func (a *Adapter) drain(ctx context.Context) {
	a.logger.Info("Draining offline queue", zap.Int("pending", a.queue.Len()))
	result := a.queue.Drain(ctx, a.IsOnline)

	a.metrics.addDropped(result.Dropped)
	a.metrics.setQueueDepth(a.queue.Len())
	a.logger.Info("Offline queue drained",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("requeued", result.Requeued),
		zap.Int("dropped", result.Dropped),
		zap.Int("remaining", a.queue.Len()))
}

// submit runs op now when online; offline it queues op and returns nil.
// Replay failures are logged.
func (a *Adapter) submit(ctx context.Context, name string, op Operation) error {
	logged := func(ctx context.Context) error {
		err := op(ctx)
		if err != nil {
			a.logger.Warn("Remote operation failed", zap.String("operation", name), zap.Error(err))
		}
		return err
	}
	done, queued := a.runOrEnqueue(ctx, name, logged)
	if queued {
		return nil
	}
	return <-done
}

func (a *Adapter) runOrEnqueue(ctx context.Context, name string, op Operation) (<-chan error, bool) {
	a.mu.RLock()
	if !a.online {
		done := a.queue.Enqueue(name, op)
		a.mu.RUnlock()
		a.metrics.setQueueDepth(a.queue.Len())
		a.logger.Debug("Queued remote operation while offline", zap.String("operation", name))
		return done, true
	}
	a.mu.RUnlock()

	done := make(chan error, 1)
	done <- op(ctx)
	return done, false
}

// commit writes one atomic batch, retrying throttled and transient failures.
func (a *Adapter) commit(ctx context.Context, userID string, writes []Write) error {
	policy := &retry.Policy{
		Transient: a.cfg.Transient,
		Throttled: a.cfg.Throttled,
		Classify:  classifyError,
		OnRetry: func(class retry.Class, attempt int, delay time.Duration, err error) {
			a.metrics.recordRetry(class)
			a.logger.Warn("Retrying remote commit",
				zap.String("class", class.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}

	start := time.Now()
	err := retry.DoWithPolicy(ctx, policy, func() error {
		return a.store.Commit(ctx, userID, writes)
	})
	a.metrics.recordCommit(len(writes), time.Since(start).Seconds(), err)

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Class == retry.Throttled {
		return fmt.Errorf("%w: %w", apperrors.ErrQuotaExceeded, err)
	}
	return err
}

// SaveRows writes rows in sequential chunks of at most ChunkSize documents.
// Each chunk commits atomically; chunks committed before a failure stay committed.
// progress, when set, receives ProgressStart first and then one increasing
// value per committed chunk, ending at ProgressEnd.
func (a *Adapter) SaveRows(ctx context.Context, userID string, surveyID uuid.UUID, rows []models.SurveyRow, progress ProgressFunc) error {
	if userID == "" {
		return database.ErrMissingUserID
	}
	report := func(p float64) {
		if progress != nil {
			progress(p)
		}
	}
	report(a.cfg.ProgressStart)

	size := a.cfg.ChunkSize
	chunks := (len(rows) + size - 1) / size
	if chunks == 0 {
		report(a.cfg.ProgressEnd)
		return nil
	}
	span := a.cfg.ProgressEnd - a.cfg.ProgressStart

	for c := 0; c < chunks; c++ {
		lo := c * size
		hi := lo + size
		if hi > len(rows) {
			hi = len(rows)
		}

		writes := make([]Write, 0, hi-lo)
		for i := lo; i < hi; i++ {
			data, err := toDocumentData(rows[i])
			if err != nil {
				return err
			}
			writes = append(writes, Write{
				Collection: CollectionSurveyRows,
				DocID:      RowDocumentID(surveyID, i),
				Data:       data,
			})
		}

		if err := a.commit(ctx, userID, writes); err != nil {
			a.logger.Error("Failed to commit survey rows",
				zap.String("survey_id", surveyID.String()),
				zap.Int("chunk", c+1),
				zap.Int("chunks", chunks),
				zap.Error(err))
			return fmt.Errorf("failed to commit chunk %d of %d: %w", c+1, chunks, err)
		}

		if c == chunks-1 {
			report(a.cfg.ProgressEnd)
			break
		}
		report(a.cfg.ProgressStart + span*float64(c+1)/float64(chunks))

		if err := sleep(ctx, a.cfg.InterChunkDelay); err != nil {
			return err
		}
	}

	a.logger.Debug("Saved survey rows",
		zap.String("survey_id", surveyID.String()),
		zap.Int("rows", len(rows)),
		zap.Int("chunks", chunks))
	return nil
}

// saveSurveyNow writes the survey document followed by its rows.
func (a *Adapter) saveSurveyNow(ctx context.Context, userID string, survey *models.SurveyRecord, rows []models.SurveyRow, progress ProgressFunc) error {
	data, err := toDocumentData(survey)
	if err != nil {
		return err
	}
	if err := a.commit(ctx, userID, []Write{{
		Collection: CollectionSurveys,
		DocID:      survey.ID.String(),
		Data:       data,
	}}); err != nil {
		return fmt.Errorf("failed to save survey document: %w", err)
	}
	return a.SaveRows(ctx, userID, survey.ID, rows, progress)
}

// SaveSurvey mirrors a survey and its rows.
func (a *Adapter) SaveSurvey(ctx context.Context, userID string, survey *models.SurveyRecord, rows []models.SurveyRow) error {
	return a.submit(ctx, "save-survey", func(ctx context.Context) error {
		return a.saveSurveyNow(ctx, userID, survey, rows, nil)
	})
}

// DeleteSurvey removes a survey document and all its row documents.
func (a *Adapter) DeleteSurvey(ctx context.Context, userID string, surveyID uuid.UUID) error {
	return a.submit(ctx, "delete-survey", func(ctx context.Context) error {
		if _, err := a.store.DeleteByPrefix(ctx, userID, CollectionSurveyRows, RowDocumentPrefix(surveyID)); err != nil {
			return fmt.Errorf("failed to delete survey rows: %w", err)
		}
		return a.commit(ctx, userID, []Write{{
			Collection: CollectionSurveys,
			DocID:      surveyID.String(),
			Delete:     true,
		}})
	})
}

// SaveMapping mirrors a mapping record.
func (a *Adapter) SaveMapping(ctx context.Context, userID string, mapping *models.MappingRecord) error {
	data, err := toDocumentData(mapping)
	if err != nil {
		return err
	}
	write := Write{Collection: mapping.Kind.Collection(), DocID: mapping.ID.String(), Data: data}
	return a.submit(ctx, "save-mapping", func(ctx context.Context) error {
		return a.commit(ctx, userID, []Write{write})
	})
}

// DeleteMapping removes a mirrored mapping.
func (a *Adapter) DeleteMapping(ctx context.Context, userID string, kind models.MappingKind, mappingID uuid.UUID) error {
	write := Write{Collection: kind.Collection(), DocID: mappingID.String(), Delete: true}
	return a.submit(ctx, "delete-mapping", func(ctx context.Context) error {
		return a.commit(ctx, userID, []Write{write})
	})
}

// ClearMappings removes every mirrored mapping of a kind.
func (a *Adapter) ClearMappings(ctx context.Context, userID string, kind models.MappingKind) error {
	return a.submit(ctx, "clear-mappings", func(ctx context.Context) error {
		_, err := a.store.DeleteCollection(ctx, userID, kind.Collection())
		return err
	})
}

// ClearUser removes every remote document of the user.
func (a *Adapter) ClearUser(ctx context.Context, userID string) error {
	return a.submit(ctx, "clear-user", func(ctx context.Context) error {
		_, err := a.store.DeleteUser(ctx, userID)
		return err
	})
}

// Query reads documents of a collection. It needs connectivity.
func (a *Adapter) Query(ctx context.Context, userID, collection string, filter Filter) ([]Document, error) {
	if !a.IsOnline() {
		return nil, ErrOffline
	}
	return a.store.Query(ctx, userID, collection, filter)
}

// MigrationResult reports a bulk push of local surveys.
type MigrationResult struct {
	Migrated int      `json:"migrated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// MigrateSurveys pushes every survey to the remote store. A failing survey is
// recorded in Errors and the remaining surveys are still pushed. progress
// covers the whole migration.
func (a *Adapter) MigrateSurveys(ctx context.Context, userID string, surveys []models.SurveyBackup, progress ProgressFunc) (*MigrationResult, error) {
	if !a.IsOnline() {
		return nil, ErrOffline
	}

	result := &MigrationResult{Errors: []string{}}
	for i := range surveys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		survey := surveys[i].SurveyRecord
		if err := a.saveSurveyNow(ctx, userID, &survey, surveys[i].Rows, nil); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", survey.Name, err))
			a.logger.Warn("Failed to migrate survey",
				zap.String("survey_id", survey.ID.String()),
				zap.Error(err))
		} else {
			result.Migrated++
		}
		if progress != nil {
			progress(100 * float64(i+1) / float64(len(surveys)))
		}
	}

	a.logger.Info("Migrated surveys",
		zap.Int("migrated", result.Migrated),
		zap.Int("failed", result.Failed))
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
