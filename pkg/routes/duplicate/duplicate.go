// Package duplicate exposes the duplicate candidate API: listing, detail,
// detection scans, resolution, merges, and workspace stats.
package duplicate

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/models"
)

// CandidateStore reads and resolves stored candidates
type CandidateStore interface {
	List(ctx context.Context, workspaceID string, filter models.CandidateListFilter) ([]models.DuplicateCandidate, int, error)
	Get(ctx context.Context, workspaceID string, id string) (*models.DuplicateCandidate, error)
	Resolve(ctx context.Context, workspaceID string, id string, status string, resolvedBy string) (*models.DuplicateCandidate, error)
	Stats(ctx context.Context, workspaceID string, entityType models.EntityType) (*models.CandidateStats, error)
}

// AccountStore fetches accounts for the detail view
type AccountStore interface {
	Get(ctx context.Context, workspaceID string, id string) (*models.Account, error)
}

// ContactStore fetches contacts for the detail view
type ContactStore interface {
	Get(ctx context.Context, workspaceID string, id string) (*models.Contact, error)
}

// WorkspaceStore checks workspace membership
type WorkspaceStore interface {
	GetMember(ctx context.Context, workspaceID string, userID string) (*models.WorkspaceMember, error)
}

// Detector runs detection scans
type Detector interface {
	Scan(ctx context.Context, workspaceID string, entityType models.EntityType, threshold float64) (*models.DetectionSummary, error)
}

// Merger executes merges
type Merger interface {
	Merge(ctx context.Context, workspaceID string, candidateID string, req *models.MergeRequest, mergedBy string) (*models.MergeResult, error)
}

// Emitter publishes duplicate.resolved events
type Emitter interface {
	EmitDuplicateResolved(ctx context.Context, candidate *models.DuplicateCandidate) error
}

// Handler handles duplicate API endpoints
type Handler struct {
	candidates CandidateStore
	accounts   AccountStore
	contacts   ContactStore
	workspaces WorkspaceStore
	detector   Detector
	merger     Merger
	emitter    Emitter
	validate   *validator.Validate
	logger     ectologger.Logger
}

// NewHandler creates a new duplicate handler. The emitter may be nil when
// event publishing is disabled.
func NewHandler(
	candidates CandidateStore,
	accounts AccountStore,
	contacts ContactStore,
	workspaces WorkspaceStore,
	detector Detector,
	merger Merger,
	emitter Emitter,
	logger ectologger.Logger,
) *Handler {
	return &Handler{
		candidates: candidates,
		accounts:   accounts,
		contacts:   contacts,
		workspaces: workspaces,
		detector:   detector,
		merger:     merger,
		emitter:    emitter,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Register registers duplicate routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.POST("/detect", h.Detect)
	g.GET("/:id", h.GetByID)
	g.PATCH("/:id/resolve", h.Resolve)
	g.POST("/:id/merge", h.Merge)
}

// ListResponse wraps a page of candidates
type ListResponse struct {
	Duplicates []models.DuplicateCandidate `json:"duplicates"`
	Total      int                         `json:"total"`
	Limit      int                         `json:"limit"`
	Offset     int                         `json:"offset"`
}

// List returns candidates for a workspace, newest first
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicate.Handler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	workspaceID := c.QueryParam("workspace_id")
	if workspaceID == "" {
		return badRequest("workspace_id query parameter is required")
	}
	if err := h.requireMember(ctx, workspaceID, userID); err != nil {
		return err
	}

	filter := models.CandidateListFilter{
		EntityType: models.EntityType(c.QueryParam("entity_type")),
		Status:     c.QueryParam("status"),
		Limit:      50,
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return badRequest("entity_type must be account or contact")
	}
	if raw := c.QueryParam("min_score"); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil || score < 0 || score > 100 {
			return badRequest("min_score must be a number between 0 and 100")
		}
		filter.MinScore = score
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			return badRequest("limit must be between 1 and 500")
		}
		filter.Limit = limit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return badRequest("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	duplicates, total, err := h.candidates.List(ctx, workspaceID, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &ListResponse{
		Duplicates: duplicates,
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// DetailResponse is a candidate with both entity records attached
type DetailResponse struct {
	Duplicate *models.DuplicateCandidate `json:"duplicate"`
	Entity1   any                        `json:"entity1"`
	Entity2   any                        `json:"entity2"`
}

// GetByID returns a candidate with its two entity records. A merged or
// deleted entity comes back null rather than failing the whole response.
func (h *Handler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicate.Handler.GetByID")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	workspaceID := c.QueryParam("workspace_id")
	if workspaceID == "" {
		return badRequest("workspace_id query parameter is required")
	}
	if err := h.requireMember(ctx, workspaceID, userID); err != nil {
		return err
	}

	candidate, err := h.candidates.Get(ctx, workspaceID, c.Param("id"))
	if err != nil {
		return err
	}

	resp := &DetailResponse{Duplicate: candidate}
	resp.Entity1 = h.fetchEntity(ctx, workspaceID, candidate.EntityType, candidate.EntityID1)
	resp.Entity2 = h.fetchEntity(ctx, workspaceID, candidate.EntityType, candidate.EntityID2)

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) fetchEntity(ctx context.Context, workspaceID string, entityType models.EntityType, id string) any {
	switch entityType {
	case models.EntityTypeAccount:
		account, err := h.accounts.Get(ctx, workspaceID, id)
		if err != nil {
			return nil
		}
		return account
	case models.EntityTypeContact:
		contact, err := h.contacts.Get(ctx, workspaceID, id)
		if err != nil {
			return nil
		}
		return contact
	}
	return nil
}

// Detect triggers a synchronous detection scan and returns its summary
func (h *Handler) Detect(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicate.Handler.Detect")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.DetectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EntityType != "" && !req.EntityType.Valid() {
		return badRequest("entity_type must be account or contact")
	}
	if err := h.requireMember(ctx, req.WorkspaceID, userID); err != nil {
		return err
	}

	threshold := 0.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	summary, err := h.detector.Scan(ctx, req.WorkspaceID, req.EntityType, threshold)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, summary)
}

// Resolve dismisses a pending candidate as not_duplicate or ignored
func (h *Handler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicate.Handler.Resolve")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireMember(ctx, req.WorkspaceID, userID); err != nil {
		return err
	}

	candidate, err := h.candidates.Resolve(ctx, req.WorkspaceID, c.Param("id"), req.Status, userID)
	if err != nil {
		return err
	}

	if h.emitter != nil {
		if err := h.emitter.EmitDuplicateResolved(ctx, candidate); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Failed to emit duplicate.resolved event")
		}
	}

	return c.JSON(http.StatusOK, candidate)
}

// MergeResponse reports a completed merge
type MergeResponse struct {
	Success             bool              `json:"success"`
	KeptID              string            `json:"kept_id"`
	MergedID            string            `json:"merged_id"`
	EntityType          models.EntityType `json:"entity_type"`
	ContactsRepointed   int64             `json:"contacts_repointed"`
	ActivitiesRepointed int64             `json:"activities_repointed"`
}

// Merge folds one record of a candidate's pair into the other
func (h *Handler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicate.Handler.Merge")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.MergeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireMember(ctx, req.WorkspaceID, userID); err != nil {
		return err
	}

	result, err := h.merger.Merge(ctx, req.WorkspaceID, c.Param("id"), &req, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &MergeResponse{
		Success:             true,
		KeptID:              result.KeptID,
		MergedID:            result.MergedID,
		EntityType:          result.EntityType,
		ContactsRepointed:   result.ContactsRepointed,
		ActivitiesRepointed: result.ActivitiesRepointed,
	})
}

// Stats returns candidate aggregates for a workspace
func (h *Handler) Stats(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicate.Handler.Stats")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	workspaceID := c.QueryParam("workspace_id")
	if workspaceID == "" {
		return badRequest("workspace_id query parameter is required")
	}
	if err := h.requireMember(ctx, workspaceID, userID); err != nil {
		return err
	}

	entityType := models.EntityType(c.QueryParam("entity_type"))
	if entityType != "" && !entityType.Valid() {
		return badRequest("entity_type must be account or contact")
	}

	stats, err := h.candidates.Stats(ctx, workspaceID, entityType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
