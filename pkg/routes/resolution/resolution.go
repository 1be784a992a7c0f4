package resolution

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/resolutionrun"
	ctxmiddleware "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/export"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/resolution"
)

var validate = validator.New()

// Register registers resolution run routes
func Register(g *echo.Group) {
	g.POST("/runs", TriggerRun)
	g.GET("/runs", ListRuns)
	g.GET("/runs/:id", GetRun)
	g.GET("/runs/:id/groups", GetRunGroups)
	g.GET("/runs/:id/export", ExportRun)
}

// RunResponse is returned when a run is triggered synchronously
type RunResponse struct {
	Run    *models.ResolutionRun `json:"run"`
	Report *resolution.Report    `json:"report"`
}

// TriggerRun executes a resolution run for the tenant and returns the report
func TriggerRun(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req resolution.RunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution service")
	}

	run, report, err := svc.Resolve(ctx, tenantID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, RunResponse{Run: run, Report: report})
}

// ListRuns lists resolution runs for the tenant, newest first
func ListRuns(c echo.Context) error {
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

	ctx, repo, err := ectoinject.GetContext[*resolutionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	resp, err := repo.List(ctx, tenantID, entityType, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetRun gets a resolution run by ID
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*resolutionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	run, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// GetRunGroups gets the identity groups a run produced
func GetRunGroups(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*resolutionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	// Confirm the run exists so a bad id is a 404, not an empty list
	if _, err := repo.Get(ctx, tenantID, id); err != nil {
		return err
	}

	groups, err := repo.GetGroups(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, groups)
}

// ExportRun downloads a completed run's report as CSV or JSON
func ExportRun(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	id := c.Param("id")
	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		return httperror.NewHTTPError(http.StatusBadRequest, "format must be csv or json")
	}

	ctx, repo, err := ectoinject.GetContext[*resolutionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	run, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusCompleted {
		return httperror.NewHTTPErrorf(http.StatusConflict, "run %s is %s; only completed runs can be exported", id, run.Status)
	}

	groups, err := repo.GetGroups(ctx, tenantID, id)
	if err != nil {
		return err
	}

	report, err := export.FromRun(run, groups)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to rebuild report")
	}

	if format == "json" {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "resolution-"+run.ID+".json"))
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		return export.WriteJSON(c.Response(), report)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "resolution-"+run.ID+".csv"))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteCSV(c.Response(), report)
}
