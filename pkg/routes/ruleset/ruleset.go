package ruleset

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/ruleset"
	ctxmiddleware "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
)

var validate = validator.New()

// Register registers rule set routes
func Register(g *echo.Group) {
	g.GET("", ListRuleSets)
	g.POST("", CreateRuleSet)
	g.GET("/:id", GetRuleSet)
	g.PUT("/:id", UpdateRuleSet)
	g.DELETE("/:id", DeleteRuleSet)
}

// ListRuleSets lists rule sets for the tenant, optionally filtered by entity type
func ListRuleSets(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var entityType *string
	if et := c.QueryParam("entity_type"); et != "" {
		entityType = &et
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	resp, err := repo.List(ctx, tenantID, entityType, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetRuleSet gets a rule set by ID
func GetRuleSet(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	ruleSet, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ruleSet)
}

// CreateRuleSetRequest is the request body for creating a rule set
type CreateRuleSetRequest struct {
	EntityType     string             `json:"entity_type" validate:"required,oneof=account contact"`
	Name           string             `json:"name" validate:"required"`
	Description    *string            `json:"description,omitempty"`
	MatchThreshold float64            `json:"match_threshold" validate:"required,gt=0,lte=1"`
	Criteria       []models.Criterion `json:"criteria" validate:"required,min=1,dive"`
	IsActive       bool               `json:"is_active"`
}

// CreateRuleSet creates a new rule set. The criteria are compiled once up
// front so a policy that can never run is rejected at write time.
func CreateRuleSet(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req CreateRuleSetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	criteriaJSON, err := json.Marshal(req.Criteria)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid criteria")
	}

	if err := compileCheck(req.EntityType, req.MatchThreshold, criteriaJSON); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	created, err := repo.Create(ctx, tenantID, models.CreateRuleSetRequest{
		EntityType:     req.EntityType,
		Name:           req.Name,
		Description:    req.Description,
		MatchThreshold: req.MatchThreshold,
		Criteria:       criteriaJSON,
		IsActive:       req.IsActive,
	})
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"id": created.ID}).Info("Created rule set")
	}

	return c.JSON(http.StatusCreated, created)
}

// UpdateRuleSetRequest is the request body for updating a rule set
type UpdateRuleSetRequest struct {
	Name           *string            `json:"name,omitempty"`
	Description    *string            `json:"description,omitempty"`
	MatchThreshold *float64           `json:"match_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	Criteria       []models.Criterion `json:"criteria,omitempty" validate:"omitempty,min=1,dive"`
	IsActive       *bool              `json:"is_active,omitempty"`
}

// UpdateRuleSet updates a rule set
func UpdateRuleSet(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	id := c.Param("id")

	var req UpdateRuleSetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var criteriaJSON json.RawMessage
	if len(req.Criteria) > 0 {
		criteriaJSON, _ = json.Marshal(req.Criteria)
	}

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	existing, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	// Compile the policy as it would look after the update
	entityType := existing.EntityType
	threshold := existing.MatchThreshold
	if req.MatchThreshold != nil {
		threshold = *req.MatchThreshold
	}
	criteria := existing.Criteria
	if criteriaJSON != nil {
		criteria = criteriaJSON
	}
	if err := compileCheck(entityType, threshold, criteria); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := repo.Update(ctx, tenantID, id, models.UpdateRuleSetRequest{
		Name:           req.Name,
		Description:    req.Description,
		MatchThreshold: req.MatchThreshold,
		Criteria:       criteriaJSON,
		IsActive:       req.IsActive,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// DeleteRuleSet soft deletes a rule set
func DeleteRuleSet(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Delete(ctx, tenantID, c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// compileCheck verifies that a stored policy compiles into a runnable rule set
func compileCheck(entityType string, threshold float64, criteria json.RawMessage) error {
	stored := &models.RuleSet{
		EntityType:     entityType,
		Name:           "candidate",
		MatchThreshold: threshold,
		Criteria:       criteria,
	}
	_, err := matching.Compile(stored)
	return err
}
