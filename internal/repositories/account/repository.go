// Package account provides persistence for CRM account records.
package account

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/harborcrm/aster/internal/database"
	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/models"
)

const accountColumns = "id, workspace_id, name, domain, website, industry, city, state, created_at, updated_at, deleted_at"

// Columns callers may rewrite when merging two accounts. Everything else on
// the row is system-owned.
var mergeableColumns = map[string]bool{
	"name":     true,
	"domain":   true,
	"website":  true,
	"industry": true,
	"city":     true,
	"state":    true,
}

// Repository handles account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a live account by ID within a workspace
func (r *Repository) Get(ctx context.Context, workspaceID string, id string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns)
	sb.From("accounts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var account models.Account
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &account, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// ListByWorkspace pages through live accounts in id order. The stable order
// lets scan callers walk the full workspace without missing or repeating
// rows between chunks.
func (r *Repository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.ListByWorkspace")
	defer span.End()

	if limit < 1 {
		limit = 200
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns)
	sb.From("accounts")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	accounts := []models.Account{}
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list accounts")
	}

	return accounts, nil
}

// UpdateFields rewrites the mergeable columns of an account. Unknown columns
// are rejected rather than ignored so a bad merged payload fails loudly.
func (r *Repository) UpdateFields(ctx context.Context, workspaceID string, id string, fields map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.UpdateFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("accounts")
	assignments := []string{}
	for column, value := range fields {
		if !mergeableColumns[column] {
			return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("field %q cannot be set on an account", column))
		}
		assignments = append(assignments, ub.Assign(column, value))
	}
	assignments = append(assignments, ub.Assign("updated_at", time.Now().UTC()))
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("workspace_id", workspaceID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update account fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update account")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
	}

	return nil
}

// Delete hard-deletes an account row. Merge removes the losing record
// entirely so nothing can reference it afterward.
func (r *Repository) Delete(ctx context.Context, workspaceID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Delete")
	defer span.End()

	query := `DELETE FROM accounts WHERE id = $1 AND workspace_id = $2`
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, id, workspaceID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete account")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
	}

	return nil
}
