// Package merging executes duplicate merges. A merge keeps one record of a
// flagged pair, folds the other into it, and removes the losing record so
// nothing in the workspace references it afterward.
package merging

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/aster/internal/database"
	"github.com/harborcrm/aster/internal/metrics"
	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/models"
)

// CandidateStore persists candidate state transitions
type CandidateStore interface {
	Get(ctx context.Context, workspaceID string, id string) (*models.DuplicateCandidate, error)
	MarkMerged(ctx context.Context, workspaceID string, id string, keptID string, resolvedBy string) (*models.DuplicateCandidate, error)
	DeletePendingByEntityID(ctx context.Context, workspaceID string, entityID string) (int64, error)
	DB() database.DB
}

// AccountStore reads and writes account records
type AccountStore interface {
	Get(ctx context.Context, workspaceID string, id string) (*models.Account, error)
	UpdateFields(ctx context.Context, workspaceID string, id string, fields map[string]any) error
	Delete(ctx context.Context, workspaceID string, id string) error
}

// ContactStore reads and writes contact records
type ContactStore interface {
	Get(ctx context.Context, workspaceID string, id string) (*models.Contact, error)
	UpdateFields(ctx context.Context, workspaceID string, id string, fields map[string]any) error
	Delete(ctx context.Context, workspaceID string, id string) error
	RepointAccount(ctx context.Context, workspaceID string, fromAccountID, toAccountID string) (int64, error)
}

// ActivityStore repoints activity foreign keys
type ActivityStore interface {
	RepointAccount(ctx context.Context, workspaceID string, fromAccountID, toAccountID string) (int64, error)
	RepointContact(ctx context.Context, workspaceID string, fromContactID, toContactID string) (int64, error)
}

// Emitter publishes entity.merged events
type Emitter interface {
	EmitEntityMerged(ctx context.Context, result *models.MergeResult) error
}

// Executor runs merges over a candidate's entity pair
type Executor struct {
	logger     ectologger.Logger
	candidates CandidateStore
	accounts   AccountStore
	contacts   ContactStore
	activities ActivityStore
	emitter    Emitter
}

// NewExecutor creates a new merge executor. The emitter may be nil when event
// publishing is disabled.
func NewExecutor(
	logger ectologger.Logger,
	candidates CandidateStore,
	accounts AccountStore,
	contacts ContactStore,
	activities ActivityStore,
	emitter Emitter,
) *Executor {
	return &Executor{
		logger:     logger,
		candidates: candidates,
		accounts:   accounts,
		contacts:   contacts,
		activities: activities,
		emitter:    emitter,
	}
}

// Merge folds the losing record of a pending candidate into the kept one.
// Field survivorship, foreign key repointing, deletion of the loser, and the
// candidate status change all commit in one transaction; any failure leaves
// the workspace untouched.
func (e *Executor) Merge(ctx context.Context, workspaceID string, candidateID string, req *models.MergeRequest, mergedBy string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.Merge")
	defer span.End()

	start := time.Now()

	candidate, err := e.candidates.Get(ctx, workspaceID, candidateID)
	if err != nil {
		return nil, err
	}
	if !candidate.IsPending() {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("duplicate candidate %s is already %s", candidateID, candidate.Status))
	}
	if req.KeepID == req.MergeID {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "keep_id and merge_id must differ")
	}
	// Both ids must be exactly the candidate's pair, in either order
	if !candidate.MatchesPair(req.KeepID, req.MergeID) {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "keep_id and merge_id must be the candidate's entity pair")
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": workspaceID,
		"candidate_id": candidateID,
		"entity_type":  candidate.EntityType,
		"keep_id":      req.KeepID,
		"merge_id":     req.MergeID,
	})

	ctxTx, tx, err := e.candidates.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin merge transaction")
	}
	// Rollback with the parent context so it fires on any failure path;
	// once Commit succeeds it is a no-op
	defer tx.Rollback(ctx)

	result := &models.MergeResult{
		CandidateID: candidateID,
		WorkspaceID: workspaceID,
		EntityType:  candidate.EntityType,
		KeptID:      req.KeepID,
		MergedID:    req.MergeID,
		MergedBy:    mergedBy,
	}

	switch candidate.EntityType {
	case models.EntityTypeAccount:
		err = e.mergeAccounts(ctxTx, workspaceID, req, result)
	case models.EntityTypeContact:
		err = e.mergeContacts(ctxTx, workspaceID, req, result)
	default:
		err = httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("unknown entity type %q", candidate.EntityType))
	}
	if err != nil {
		metrics.RecordMerge(workspaceID, string(candidate.EntityType), "failed", time.Since(start).Seconds())
		return nil, err
	}

	if _, err := e.candidates.MarkMerged(ctxTx, workspaceID, candidateID, req.KeepID, mergedBy); err != nil {
		metrics.RecordMerge(workspaceID, string(candidate.EntityType), "failed", time.Since(start).Seconds())
		return nil, err
	}
	// Other pending candidates naming the deleted record are now meaningless
	if _, err := e.candidates.DeletePendingByEntityID(ctxTx, workspaceID, req.MergeID); err != nil {
		metrics.RecordMerge(workspaceID, string(candidate.EntityType), "failed", time.Since(start).Seconds())
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		metrics.RecordMerge(workspaceID, string(candidate.EntityType), "failed", time.Since(start).Seconds())
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit merge")
	}

	metrics.RecordMerge(workspaceID, string(candidate.EntityType), "success", time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"contacts_repointed":   result.ContactsRepointed,
		"activities_repointed": result.ActivitiesRepointed,
	}).Info("Merge complete")

	// The merge is durable at this point; a publish failure is only logged
	if e.emitter != nil {
		if err := e.emitter.EmitEntityMerged(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to emit entity.merged event")
		}
	}

	return result, nil
}

func (e *Executor) mergeAccounts(ctx context.Context, workspaceID string, req *models.MergeRequest, result *models.MergeResult) error {
	// Both records must still exist; a 404 here surfaces a stale candidate
	if _, err := e.accounts.Get(ctx, workspaceID, req.KeepID); err != nil {
		return err
	}
	if _, err := e.accounts.Get(ctx, workspaceID, req.MergeID); err != nil {
		return err
	}

	if len(req.MergedData) > 0 {
		if err := e.accounts.UpdateFields(ctx, workspaceID, req.KeepID, req.MergedData); err != nil {
			return err
		}
	}

	contacts, err := e.contacts.RepointAccount(ctx, workspaceID, req.MergeID, req.KeepID)
	if err != nil {
		return err
	}
	result.ContactsRepointed = contacts

	activities, err := e.activities.RepointAccount(ctx, workspaceID, req.MergeID, req.KeepID)
	if err != nil {
		return err
	}
	result.ActivitiesRepointed = activities

	return e.accounts.Delete(ctx, workspaceID, req.MergeID)
}

func (e *Executor) mergeContacts(ctx context.Context, workspaceID string, req *models.MergeRequest, result *models.MergeResult) error {
	if _, err := e.contacts.Get(ctx, workspaceID, req.KeepID); err != nil {
		return err
	}
	if _, err := e.contacts.Get(ctx, workspaceID, req.MergeID); err != nil {
		return err
	}

	if len(req.MergedData) > 0 {
		if err := e.contacts.UpdateFields(ctx, workspaceID, req.KeepID, req.MergedData); err != nil {
			return err
		}
	}

	activities, err := e.activities.RepointContact(ctx, workspaceID, req.MergeID, req.KeepID)
	if err != nil {
		return err
	}
	result.ActivitiesRepointed = activities

	return e.contacts.Delete(ctx, workspaceID, req.MergeID)
}
