// Package detection implements workspace duplicate scans
package detection

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/aster/internal/metrics"
	"github.com/harborcrm/aster/internal/redis"
	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/models"
	"github.com/harborcrm/aster/pkg/scoring"
)

// AccountSource lists live accounts for a workspace in stable id order
type AccountSource interface {
	ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]models.Account, error)
}

// ContactSource lists live contacts for a workspace in stable id order
type ContactSource interface {
	ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]models.Contact, error)
}

// CandidateStore persists flagged pairs
type CandidateStore interface {
	Upsert(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, error)
	GetByPair(ctx context.Context, workspaceID string, entityType models.EntityType, entityA, entityB string) (*models.DuplicateCandidate, error)
}

// Lock is a held scan lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes scans per workspace
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Emitter publishes duplicate.detected events
type Emitter interface {
	EmitDuplicateDetected(ctx context.Context, candidate *models.DuplicateCandidate) error
}

type redisLocker struct {
	locker *redis.Locker
}

// NewRedisLocker adapts the shared Redis locker to the driver's Locker
func NewRedisLocker(locker *redis.Locker) Locker {
	return &redisLocker{locker: locker}
}

func (r *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := r.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Config contains detection driver settings
type Config struct {
	Threshold           float64       // default minimum score to flag a pair
	ChunkSize           int           // entities loaded per page during scans
	LockTTL             time.Duration // scan lock expiry
	RescanResolvedPairs bool          // when false, dismissed pairs are never re-flagged
}

// DefaultConfig returns default detection settings
func DefaultConfig() Config {
	return Config{
		Threshold: scoring.DefaultThreshold,
		ChunkSize: 200,
		LockTTL:   5 * time.Minute,
	}
}

// Driver runs duplicate detection scans over a workspace
type Driver struct {
	logger     ectologger.Logger
	scorer     *scoring.SimilarityScorer
	accounts   AccountSource
	contacts   ContactSource
	candidates CandidateStore
	locker     Locker
	emitter    Emitter
	config     Config
}

// NewDriver creates a new detection driver. The emitter may be nil when event
// publishing is disabled.
func NewDriver(
	logger ectologger.Logger,
	scorer *scoring.SimilarityScorer,
	accounts AccountSource,
	contacts ContactSource,
	candidates CandidateStore,
	locker Locker,
	emitter Emitter,
	config Config,
) *Driver {
	if config.Threshold <= 0 {
		config.Threshold = scoring.DefaultThreshold
	}
	if config.ChunkSize < 1 {
		config.ChunkSize = 200
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 5 * time.Minute
	}
	return &Driver{
		logger:     logger,
		scorer:     scorer,
		accounts:   accounts,
		contacts:   contacts,
		candidates: candidates,
		locker:     locker,
		emitter:    emitter,
		config:     config,
	}
}

// Scan compares every live entity pair of the requested type in a workspace
// and upserts a pending candidate for each pair scoring at or above the
// threshold. Passing an empty entity type scans accounts and contacts.
// A zero threshold uses the configured default. Only one scan runs per
// workspace at a time; a second request returns 409.
func (d *Driver) Scan(ctx context.Context, workspaceID string, entityType models.EntityType, threshold float64) (*models.DetectionSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Driver.Scan")
	defer span.End()

	if threshold <= 0 {
		threshold = d.config.Threshold
	}
	if threshold > 100 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "threshold must be between 0 and 100")
	}
	if entityType != "" && !entityType.Valid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid entity type")
	}

	lock, err := d.locker.Acquire(ctx, "detect:"+workspaceID, d.config.LockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a detection scan is already running for this workspace")
		}
		d.logger.WithContext(ctx).WithError(err).Error("Failed to acquire scan lock")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start detection scan")
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("Failed to release scan lock")
		}
	}()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": workspaceID,
		"entity_type":  entityType,
		"threshold":    threshold,
	})
	log.Info("Starting detection scan")

	start := time.Now()
	summary := &models.DetectionSummary{
		WorkspaceID: workspaceID,
		Threshold:   threshold,
	}

	if entityType == "" || entityType == models.EntityTypeAccount {
		if err := d.scanAccounts(ctx, workspaceID, threshold, summary); err != nil {
			metrics.RecordScan(workspaceID, string(models.EntityTypeAccount), "failed", time.Since(start).Seconds())
			return nil, err
		}
		metrics.RecordScan(workspaceID, string(models.EntityTypeAccount), "success", time.Since(start).Seconds())
	}
	if entityType == "" || entityType == models.EntityTypeContact {
		if err := d.scanContacts(ctx, workspaceID, threshold, summary); err != nil {
			metrics.RecordScan(workspaceID, string(models.EntityTypeContact), "failed", time.Since(start).Seconds())
			return nil, err
		}
		metrics.RecordScan(workspaceID, string(models.EntityTypeContact), "success", time.Since(start).Seconds())
	}

	log.WithFields(map[string]any{
		"accounts_scanned":    summary.AccountsScanned,
		"contacts_scanned":    summary.ContactsScanned,
		"pairs_compared":      summary.PairsCompared,
		"candidates_upserted": summary.CandidatesUpserted,
		"duration":            time.Since(start).String(),
	}).Info("Detection scan complete")

	return summary, nil
}

func (d *Driver) scanAccounts(ctx context.Context, workspaceID string, threshold float64, summary *models.DetectionSummary) error {
	ctx, span := tracing.StartSpan(ctx, "detection.Driver.scanAccounts")
	defer span.End()

	var all []models.Account
	for offset := 0; ; offset += d.config.ChunkSize {
		chunk, err := d.accounts.ListByWorkspace(ctx, workspaceID, d.config.ChunkSize, offset)
		if err != nil {
			return err
		}
		all = append(all, chunk...)
		if len(chunk) < d.config.ChunkSize {
			break
		}
	}
	summary.AccountsScanned = len(all)

	entities := make([]scanEntity, len(all))
	for i := range all {
		entities[i] = scanEntity{id: all[i].ID, value: &all[i]}
	}
	return d.comparePairs(ctx, workspaceID, models.EntityTypeAccount, entities, threshold, summary)
}

func (d *Driver) scanContacts(ctx context.Context, workspaceID string, threshold float64, summary *models.DetectionSummary) error {
	ctx, span := tracing.StartSpan(ctx, "detection.Driver.scanContacts")
	defer span.End()

	var all []models.Contact
	for offset := 0; ; offset += d.config.ChunkSize {
		chunk, err := d.contacts.ListByWorkspace(ctx, workspaceID, d.config.ChunkSize, offset)
		if err != nil {
			return err
		}
		all = append(all, chunk...)
		if len(chunk) < d.config.ChunkSize {
			break
		}
	}
	summary.ContactsScanned = len(all)

	entities := make([]scanEntity, len(all))
	for i := range all {
		entities[i] = scanEntity{id: all[i].ID, value: &all[i]}
	}
	return d.comparePairs(ctx, workspaceID, models.EntityTypeContact, entities, threshold, summary)
}

type scanEntity struct {
	id    string
	value any
}

// comparePairs scores every unordered pair once. Pairs never cross the
// entity type boundary; an account is never compared against a contact.
func (d *Driver) comparePairs(ctx context.Context, workspaceID string, entityType models.EntityType, entities []scanEntity, threshold float64, summary *models.DetectionSummary) error {
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			summary.PairsCompared++
			metrics.PairsCompared.WithLabelValues(workspaceID, string(entityType)).Inc()

			result, err := d.scorer.Score(entityType, entities[i].value, entities[j].value)
			if err != nil {
				d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"entity_id_1": entities[i].id,
					"entity_id_2": entities[j].id,
				}).Warn("Failed to score pair")
				continue
			}
			if result.Score < threshold {
				continue
			}

			if err := d.flagPair(ctx, workspaceID, entityType, entities[i].id, entities[j].id, result, summary); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) flagPair(ctx context.Context, workspaceID string, entityType models.EntityType, idA, idB string, result *models.SimilarityResult, summary *models.DetectionSummary) error {
	if !d.config.RescanResolvedPairs {
		existing, err := d.candidates.GetByPair(ctx, workspaceID, entityType, idA, idB)
		if err != nil {
			return err
		}
		// A dismissed pair stays dismissed across rescans
		if existing != nil && !existing.IsPending() {
			return nil
		}
	}

	candidate := &models.DuplicateCandidate{
		WorkspaceID:       workspaceID,
		EntityType:        entityType,
		EntityID1:         idA,
		EntityID2:         idB,
		SimilarityScore:   result.Score,
		MatchingFields:    result.MatchingFieldsJSON(),
		FieldSimilarities: result.FieldSimilaritiesJSON(),
		DetectionMethod:   result.DetectionMethod,
	}

	saved, err := d.candidates.Upsert(ctx, candidate)
	if err != nil {
		return err
	}

	summary.CandidatesUpserted++
	metrics.CandidatesUpserted.WithLabelValues(workspaceID, string(entityType)).Inc()

	// Events are best effort; a publish failure never fails the scan
	if d.emitter != nil && saved.CreatedAt.Equal(saved.UpdatedAt) {
		if err := d.emitter.EmitDuplicateDetected(ctx, saved); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("Failed to emit duplicate.detected event")
		}
	}

	return nil
}
