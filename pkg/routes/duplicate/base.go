package duplicate

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/aster/internal/appcontext"
)

// requireUser extracts the authenticated user id set by the context
// middleware. Requests without an identity get 401.
func requireUser(c echo.Context) (string, error) {
	userID := appcontext.GetUserID(c.Request().Context())
	if userID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return userID, nil
}

// requireMember checks that the user belongs to the workspace. Non-members
// get 403 regardless of whether the workspace exists, so the check leaks
// nothing about other tenants.
func (h *Handler) requireMember(ctx context.Context, workspaceID, userID string) error {
	member, err := h.workspaces.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return httperror.NewHTTPError(http.StatusForbidden, "not a member of this workspace")
	}
	return nil
}

func badRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
