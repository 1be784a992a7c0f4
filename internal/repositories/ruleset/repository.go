// Package ruleset persists stored matching policies
package ruleset

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var columns = []string{
	"id", "tenant_id", "entity_type", "name", "description",
	"match_threshold", "criteria", "is_active",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles rule set persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule set repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new rule set
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateRuleSetRequest) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Create",
		"tenant_id":   tenantID,
		"entity_type": req.EntityType,
		"name":        req.Name,
	})

	id := uuid.New().String()
	now := time.Now().UTC()

	ruleSet := &models.RuleSet{
		ID:             id,
		TenantID:       tenantID,
		EntityType:     req.EntityType,
		Name:           req.Name,
		Description:    req.Description,
		MatchThreshold: req.MatchThreshold,
		Criteria:       req.Criteria,
		IsActive:       req.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("rule_sets")
	sb.Cols("id", "tenant_id", "entity_type", "name", "description", "match_threshold", "criteria", "is_active", "created_at", "updated_at")
	sb.Values(ruleSet.ID, ruleSet.TenantID, ruleSet.EntityType, ruleSet.Name, ruleSet.Description, ruleSet.MatchThreshold, ruleSet.Criteria, ruleSet.IsActive, ruleSet.CreatedAt, ruleSet.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create rule set")
	}

	log.WithFields(map[string]any{"id": id}).Info("Created rule set")
	return ruleSet, nil
}

// Get retrieves a rule set by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("rule_sets")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var ruleSet models.RuleSet
	if err := r.db.GetContext(ctx, &ruleSet, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule set %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule set")
	}

	return &ruleSet, nil
}

// GetByID is an alias for Get
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.RuleSet, error) {
	return r.Get(ctx, tenantID, id)
}

// GetActiveByEntityType returns the most recently updated active rule set
// for an entity type, or nil when the tenant has none. Runs fall back to the
// built-in defaults in that case.
func (r *Repository) GetActiveByEntityType(ctx context.Context, tenantID, entityType string) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.GetActiveByEntityType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("rule_sets")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var ruleSet models.RuleSet
	if err := r.db.GetContext(ctx, &ruleSet, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get active rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active rule set")
	}

	return &ruleSet, nil
}

// List retrieves rule sets for a tenant with pagination
func (r *Repository) List(ctx context.Context, tenantID string, entityType *string, page, pageSize int) (*models.RuleSetListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.List")
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
	countSb.From("rule_sets")
	countWhere := []string{
		countSb.Equal("tenant_id", tenantID),
		countSb.IsNull("deleted_at"),
	}
	if entityType != nil {
		countWhere = append(countWhere, countSb.Equal("entity_type", *entityType))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count rule sets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count rule sets")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("rule_sets")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	}
	if entityType != nil {
		where = append(where, sb.Equal("entity_type", *entityType))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var ruleSets []models.RuleSet
	if err := r.db.SelectContext(ctx, &ruleSets, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list rule sets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list rule sets")
	}

	return &models.RuleSetListResponse{
		Items:      ruleSets,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Update updates a rule set
func (r *Repository) Update(ctx context.Context, tenantID, id string, req models.UpdateRuleSetRequest) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	if req.MatchThreshold != nil {
		existing.MatchThreshold = *req.MatchThreshold
	}
	if req.Criteria != nil {
		existing.Criteria = req.Criteria
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	existing.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("rule_sets")
	sb.Set(
		sb.Assign("name", existing.Name),
		sb.Assign("description", existing.Description),
		sb.Assign("match_threshold", existing.MatchThreshold),
		sb.Assign("criteria", existing.Criteria),
		sb.Assign("is_active", existing.IsActive),
		sb.Assign("updated_at", existing.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update rule set")
	}

	return existing, nil
}

// Delete soft deletes a rule set
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("rule_sets")
	sb.Set(sb.Assign("deleted_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete rule set")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete rule set")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule set %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted rule set")
	return nil
}
