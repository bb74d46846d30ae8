// Package workspace provides workspace and membership lookups used by the
// tenancy guard on every request.
package workspace

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/harborcrm/aster/internal/database"
	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/models"
)

// Repository handles workspace lookups
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new workspace repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetMember returns a user's membership in a workspace, or nil when the user
// does not belong to it
func (r *Repository) GetMember(ctx context.Context, workspaceID string, userID string) (*models.WorkspaceMember, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.GetMember")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, workspace_id, user_id, role, created_at")
	sb.From("workspace_members")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.Equal("user_id", userID),
	)

	query, args := sb.Build()
	var member models.WorkspaceMember
	if err := database.ExecutorFor(ctx, r.db).GetContext(ctx, &member, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get workspace member")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get workspace member")
	}

	return &member, nil
}
