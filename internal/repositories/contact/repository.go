// Package contact provides persistence for CRM contact records.
package contact

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

const contactColumns = "id, workspace_id, account_id, first_name, last_name, email, phone, title, city, created_at, updated_at, deleted_at"

var mergeableColumns = map[string]bool{
	"first_name": true,
	"last_name":  true,
	"email":      true,
	"phone":      true,
	"title":      true,
	"city":       true,
	"account_id": true,
}

// Repository handles contact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a live contact by ID within a workspace
func (r *Repository) Get(ctx context.Context, workspaceID string, id string) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns)
	sb.From("contacts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var contact models.Contact
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &contact, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contact")
	}

	return &contact, nil
}

// ListByWorkspace pages through live contacts in id order
func (r *Repository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListByWorkspace")
	defer span.End()

	if limit < 1 {
		limit = 200
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns)
	sb.From("contacts")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	contacts := []models.Contact{}
	if err := database.ExecutorFor(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}

	return contacts, nil
}

// UpdateFields rewrites the mergeable columns of a contact
func (r *Repository) UpdateFields(ctx context.Context, workspaceID string, id string, fields map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	assignments := []string{}
	for column, value := range fields {
		if !mergeableColumns[column] {
			return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("field %q cannot be set on a contact", column))
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update contact fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update contact")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %s not found", id))
	}

	return nil
}

// Delete hard-deletes a contact row
func (r *Repository) Delete(ctx context.Context, workspaceID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Delete")
	defer span.End()

	query := `DELETE FROM contacts WHERE id = $1 AND workspace_id = $2`
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, id, workspaceID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete contact")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %s not found", id))
	}

	return nil
}

// RepointAccount moves every contact on one account to another. Returns the
// number of contacts moved.
func (r *Repository) RepointAccount(ctx context.Context, workspaceID string, fromAccountID, toAccountID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.RepointAccount")
	defer span.End()

	query := `
		UPDATE contacts
		SET account_id = $1, updated_at = $2
		WHERE workspace_id = $3 AND account_id = $4
	`
	result, err := database.ExecutorFor(ctx, r.db).ExecContext(ctx, query, toAccountID, time.Now().UTC(), workspaceID, fromAccountID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_account_id": fromAccountID,
			"to_account_id":   toAccountID,
		}).Error("Failed to repoint contacts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint contacts")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
