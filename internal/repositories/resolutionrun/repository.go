// Package resolutionrun persists resolution runs and their identity groups
package resolutionrun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/resolution"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var runColumns = []string{
	"id", "tenant_id", "entity_type", "rule_set_id", "match_threshold", "blocking",
	"status", "total_records", "groups_found", "unique_identities", "duplicates",
	"error", "started_at", "completed_at", "created_at",
}

var groupColumns = []string{
	"id", "run_id", "tenant_id", "identity_token", "entity_type", "primary_record_id",
	"record_ids", "confidence", "match_kind", "matched_criteria",
	"recommended_action", "data_quality", "created_at",
}

// Repository handles resolution run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resolution run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records a new pending run
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateRunRequest) (*models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Create",
		"tenant_id":   tenantID,
		"entity_type": req.EntityType,
	})

	now := time.Now().UTC()
	run := &models.ResolutionRun{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		EntityType:     req.EntityType,
		RuleSetID:      req.RuleSetID,
		MatchThreshold: req.MatchThreshold,
		Blocking:       req.Blocking,
		Status:         models.RunStatusPending,
		StartedAt:      now,
		CreatedAt:      now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("resolution_runs")
	sb.Cols("id", "tenant_id", "entity_type", "rule_set_id", "match_threshold", "blocking", "status", "started_at", "created_at")
	sb.Values(run.ID, run.TenantID, run.EntityType, run.RuleSetID, run.MatchThreshold, run.Blocking, run.Status, run.StartedAt, run.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create resolution run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create resolution run")
	}

	log.WithFields(map[string]any{"id": run.ID}).Info("Created resolution run")
	return run, nil
}

// MarkRunning transitions a run to the running state
func (r *Repository) MarkRunning(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.MarkRunning")
	defer span.End()

	return r.setStatus(ctx, tenantID, id, models.RunStatusRunning, nil)
}

// Complete records the run totals and marks it completed
func (r *Repository) Complete(ctx context.Context, tenantID, id string, report *resolution.Report) error {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("resolution_runs")
	sb.Set(
		sb.Assign("status", models.RunStatusCompleted),
		sb.Assign("total_records", report.TotalRecords),
		sb.Assign("groups_found", report.GroupsFound),
		sb.Assign("unique_identities", report.UniqueIdentities),
		sb.Assign("duplicates", report.Duplicates),
		sb.Assign("completed_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to complete resolution run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete resolution run")
	}
	return nil
}

// Fail records the failure cause and marks the run failed
func (r *Repository) Fail(ctx context.Context, tenantID, id string, cause error) error {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Fail")
	defer span.End()

	msg := cause.Error()
	return r.setStatus(ctx, tenantID, id, models.RunStatusFailed, &msg)
}

func (r *Repository) setStatus(ctx context.Context, tenantID, id string, status models.RunStatus, errMsg *string) error {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("resolution_runs")
	assignments := []string{sb.Assign("status", status)}
	if errMsg != nil {
		assignments = append(assignments, sb.Assign("error", *errMsg))
		assignments = append(assignments, sb.Assign("completed_at", time.Now().UTC()))
	}
	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to update run status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update run status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("resolution run %s not found", id))
	}
	return nil
}

// SaveGroups persists every group a run produced
func (r *Repository) SaveGroups(ctx context.Context, tenantID, runID string, groups []resolution.Group, entityType models.EntityType) error {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.SaveGroups")
	defer span.End()

	if len(groups) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("identity_groups")
	sb.Cols("id", "run_id", "tenant_id", "identity_token", "entity_type", "primary_record_id", "record_ids", "confidence", "match_kind", "matched_criteria", "recommended_action", "data_quality", "created_at")

	for i := range groups {
		group := &groups[i]
		recordIDs, err := json.Marshal(group.RecordIDs)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode group record ids")
		}
		criteria, err := json.Marshal(group.MatchedCriteria)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode group criteria")
		}

		sb.Values(
			uuid.New().String(), runID, tenantID, group.IdentityToken, entityType,
			group.PrimaryRecordID, recordIDs, group.Confidence, group.MatchKind,
			criteria, group.RecommendedAction, group.DataQuality, now,
		)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID, "group_count": len(groups)}).Error("Failed to save identity groups")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save identity groups")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":      runID,
		"group_count": len(groups),
	}).Info("Saved identity groups")
	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ResolutionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("resolution_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var run models.ResolutionRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("resolution run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get resolution run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution run")
	}

	return &run, nil
}

// List retrieves runs for a tenant with pagination, newest first
func (r *Repository) List(ctx context.Context, tenantID string, entityType *string, page, pageSize int) (*models.RunListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("resolution_runs")
	countWhere := []string{countSb.Equal("tenant_id", tenantID)}
	if entityType != nil {
		countWhere = append(countWhere, countSb.Equal("entity_type", *entityType))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count resolution runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count resolution runs")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("resolution_runs")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if entityType != nil {
		where = append(where, sb.Equal("entity_type", *entityType))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var runs []models.ResolutionRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list resolution runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list resolution runs")
	}

	return &models.RunListResponse{
		Items:      runs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// GetGroups retrieves the identity groups for a run
func (r *Repository) GetGroups(ctx context.Context, tenantID, runID string) ([]models.IdentityGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "resolutionrun.Repository.GetGroups")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(groupColumns...)
	sb.From("identity_groups")
	sb.Where(
		sb.Equal("run_id", runID),
		sb.Equal("tenant_id", tenantID),
	)
	sb.OrderBy("confidence DESC", "created_at")

	query, args := sb.Build()
	var groups []models.IdentityGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to get identity groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity groups")
	}
	return groups, nil
}
