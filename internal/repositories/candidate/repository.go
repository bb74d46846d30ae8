// Package candidate persists duplicate candidate records. It is the only
// writer of the duplicate_candidates table.
package candidate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/harborcrm/aster/internal/database"
	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/models"
)

const candidateColumns = "id, workspace_id, entity_type, entity_id_1, entity_id_2, similarity_score, matching_fields, field_similarities, detection_method, status, merged_into, resolved_by, resolved_at, created_at, updated_at"

// Repository handles duplicate candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// Upsert inserts a pending candidate for an unordered pair, or refreshes the
// score and breakdown of the pending row that already covers the pair. The
// entity ids are stored in canonical order; the partial unique index on
// pending rows guarantees at most one pending candidate per pair.
func (r *Repository) Upsert(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Upsert")
	defer span.End()

	if candidate.EntityID1 == candidate.EntityID2 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "candidate entities must differ")
	}
	candidate.EntityID1, candidate.EntityID2 = models.CanonicalPair(candidate.EntityID1, candidate.EntityID2)

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	candidate.Status = models.CandidateStatusPending
	candidate.CreatedAt = time.Now().UTC()
	candidate.UpdatedAt = candidate.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("duplicate_candidates")
	sb.Cols("id", "workspace_id", "entity_type", "entity_id_1", "entity_id_2", "similarity_score", "matching_fields", "field_similarities", "detection_method", "status", "created_at", "updated_at")
	sb.Values(candidate.ID, candidate.WorkspaceID, candidate.EntityType, candidate.EntityID1, candidate.EntityID2, candidate.SimilarityScore, string(candidate.MatchingFields), string(candidate.FieldSimilarities), candidate.DetectionMethod, candidate.Status, candidate.CreatedAt, candidate.UpdatedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (workspace_id, entity_type, entity_id_1, entity_id_2) WHERE status = 'pending'
		DO UPDATE SET similarity_score = EXCLUDED.similarity_score,
			matching_fields = EXCLUDED.matching_fields,
			field_similarities = EXCLUDED.field_similarities,
			detection_method = EXCLUDED.detection_method,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + candidateColumns

	var saved models.DuplicateCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &saved, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"workspace_id": candidate.WorkspaceID,
			"entity_id_1":  candidate.EntityID1,
			"entity_id_2":  candidate.EntityID2,
		}).Error("Failed to upsert duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert duplicate candidate")
	}

	return &saved, nil
}

// Get retrieves a candidate by ID within a workspace
func (r *Repository) Get(ctx context.Context, workspaceID string, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns)
	sb.From("duplicate_candidates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("workspace_id", workspaceID),
	)

	query, args := sb.Build()
	var candidate models.DuplicateCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}

	return &candidate, nil
}

// GetByPair returns the most recent candidate covering an unordered pair in
// any status, or nil when the pair has never been flagged
func (r *Repository) GetByPair(ctx context.Context, workspaceID string, entityType models.EntityType, entityA, entityB string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByPair")
	defer span.End()

	lo, hi := models.CanonicalPair(entityA, entityB)

	query := `
		SELECT ` + candidateColumns + `
		FROM duplicate_candidates
		WHERE workspace_id = $1 AND entity_type = $2 AND entity_id_1 = $3 AND entity_id_2 = $4
		ORDER BY created_at DESC
		LIMIT 1
	`

	var candidate models.DuplicateCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &candidate, query, workspaceID, entityType, lo, hi); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // pair never flagged
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get duplicate candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}

	return &candidate, nil
}

// List retrieves candidates for a workspace with optional filters, newest
// first (created_at DESC, id DESC for a stable order), plus the unpaginated
// total for the same filters.
func (r *Repository) List(ctx context.Context, workspaceID string, filter models.CandidateListFilter) ([]models.DuplicateCandidate, int, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.List")
	defer span.End()

	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	build := func(sb *sqlbuilder.SelectBuilder) {
		where := []string{sb.Equal("workspace_id", workspaceID)}
		if filter.EntityType != "" {
			where = append(where, sb.Equal("entity_type", filter.EntityType))
		}
		if filter.Status != "" {
			where = append(where, sb.Equal("status", filter.Status))
		}
		if filter.MinScore > 0 {
			where = append(where, sb.GreaterEqualThan("similarity_score", filter.MinScore))
		}
		sb.Where(where...)
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("duplicate_candidates")
	build(countBuilder)

	query, args := countBuilder.Build()
	var total int
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate candidates")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns)
	sb.From("duplicate_candidates")
	build(sb)
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(filter.Limit)
	sb.Offset(filter.Offset)

	query, args = sb.Build()
	candidates := []models.DuplicateCandidate{}
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate candidates")
	}

	return candidates, total, nil
}

// Resolve transitions a pending candidate to not_duplicate or ignored. The
// transition is one-way; resolving a candidate in any other status fails.
func (r *Repository) Resolve(ctx context.Context, workspaceID string, id string, status string, resolvedBy string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Resolve")
	defer span.End()

	if status != models.CandidateStatusNotDuplicate && status != models.CandidateStatusIgnored {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid resolution status %q", status))
	}

	now := time.Now().UTC()
	query := `
		UPDATE duplicate_candidates
		SET status = $1, resolved_by = $2, resolved_at = $3, updated_at = $3
		WHERE id = $4 AND workspace_id = $5 AND status = 'pending'
		RETURNING ` + candidateColumns

	var updated models.DuplicateCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &updated, query, status, resolvedBy, now, id, workspaceID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			// Either missing or already resolved; look it up to say which
			existing, getErr := r.Get(ctx, workspaceID, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("duplicate candidate %s is already %s", id, existing.Status))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve duplicate candidate")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": id,
		"status":       status,
		"resolved_by":  resolvedBy,
	}).Info("Resolved duplicate candidate")

	return &updated, nil
}

// MarkMerged records a completed merge on the candidate. Called only by the
// merge executor inside its transaction.
func (r *Repository) MarkMerged(ctx context.Context, workspaceID string, id string, keptID string, resolvedBy string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.MarkMerged")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE duplicate_candidates
		SET status = $1, merged_into = $2, resolved_by = $3, resolved_at = $4, updated_at = $4
		WHERE id = $5 AND workspace_id = $6 AND status = 'pending'
		RETURNING ` + candidateColumns

	var updated models.DuplicateCandidate
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &updated, query, models.CandidateStatusMerged, keptID, resolvedBy, now, id, workspaceID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("duplicate candidate %s is not pending", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark duplicate candidate merged")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark duplicate candidate merged")
	}

	return &updated, nil
}

// DeletePendingByEntityID removes pending candidates involving an entity.
// Used when an entity disappears in a merge so no candidate row keeps
// referencing the deleted id.
func (r *Repository) DeletePendingByEntityID(ctx context.Context, workspaceID string, entityID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.DeletePendingByEntityID")
	defer span.End()

	query := `
		DELETE FROM duplicate_candidates
		WHERE workspace_id = $1
		AND status = 'pending'
		AND (entity_id_1 = $2 OR entity_id_2 = $2)
	`

	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, workspaceID, entityID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete duplicate candidates by entity id")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete duplicate candidates")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// Stats aggregates candidate counts for a workspace. Average and max scores
// cover pending candidates only.
func (r *Repository) Stats(ctx context.Context, workspaceID string, entityType models.EntityType) (*models.CandidateStats, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Stats")
	defer span.End()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'merged') AS merged,
			COUNT(*) FILTER (WHERE status = 'not_duplicate') AS not_duplicate,
			COUNT(*) FILTER (WHERE status = 'ignored') AS ignored,
			COUNT(*) AS total,
			AVG(similarity_score) FILTER (WHERE status = 'pending') AS avg_score,
			MAX(similarity_score) FILTER (WHERE status = 'pending') AS max_score
		FROM duplicate_candidates
		WHERE workspace_id = $1
	`
	args := []any{workspaceID}
	if entityType != "" {
		query += " AND entity_type = $2"
		args = append(args, entityType)
	}

	var stats models.CandidateStats
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &stats, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate duplicate candidate stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate duplicate candidate stats")
	}

	return &stats, nil
}
