// Package activity provides persistence for CRM activity records (calls,
// emails, meetings, notes) attached to accounts and contacts.
package activity

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/aster/internal/database"
	"github.com/harborcrm/aster/internal/tracing"
)

// Repository handles activity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new activity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// RepointAccount moves activities from one account to another
func (r *Repository) RepointAccount(ctx context.Context, workspaceID string, fromAccountID, toAccountID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.RepointAccount")
	defer span.End()

	query := `
		UPDATE activities
		SET account_id = $1, updated_at = $2
		WHERE workspace_id = $3 AND account_id = $4
	`
	return r.repoint(ctx, query, toAccountID, workspaceID, fromAccountID)
}

// RepointContact moves activities from one contact to another
func (r *Repository) RepointContact(ctx context.Context, workspaceID string, fromContactID, toContactID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.RepointContact")
	defer span.End()

	query := `
		UPDATE activities
		SET contact_id = $1, updated_at = $2
		WHERE workspace_id = $3 AND contact_id = $4
	`
	return r.repoint(ctx, query, toContactID, workspaceID, fromContactID)
}

func (r *Repository) repoint(ctx context.Context, query string, toID, workspaceID, fromID string) (int64, error) {
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, toID, time.Now().UTC(), workspaceID, fromID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_id": fromID,
			"to_id":   toID,
		}).Error("Failed to repoint activities")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint activities")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
