// Package record persists staged CRM records awaiting resolution
package record

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
	"github.com/Ramsey-B/sage/pkg/fingerprint"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var columns = []string{
	"id", "tenant_id", "entity_type", "source_id", "source_system",
	"data", "fingerprint", "previous_fingerprint",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles staged record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staged record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Record    *models.StagedRecord
	IsNew     bool
	IsChanged bool
}

// Upsert creates or updates a staged record keyed by
// (tenant_id, entity_type, source_id, source_system). Data payloads are
// shallow-merged in the database; the fingerprint detects real changes.
func (r *Repository) Upsert(ctx context.Context, tenantID string, req models.CreateStagedRecordRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "Upsert",
		"tenant_id":     tenantID,
		"entity_type":   req.EntityType,
		"source_id":     req.SourceID,
		"source_system": req.SourceSystem,
	})

	now := time.Now().UTC()
	id := uuid.New().String()

	fp, err := fingerprint.GenerateFromJSON(req.Data)
	if err != nil {
		log.WithError(err).Error("Failed to generate fingerprint")
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid record data")
	}

	// The upsert and the fingerprint recompute must land together
	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		WITH upsert AS (
			INSERT INTO staged_records (
				id, tenant_id, entity_type, source_id, source_system,
				data, fingerprint, previous_fingerprint, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (tenant_id, entity_type, source_id, source_system)
			DO UPDATE SET
				data = staged_records.data || EXCLUDED.data,
				deleted_at = NULL
			RETURNING
				id, tenant_id, entity_type, source_id, source_system,
				data, fingerprint, previous_fingerprint, created_at, updated_at, deleted_at,
				(xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.StagedRecord
		Inserted bool `db:"inserted"`
	}

	err = tx.GetContext(ctx, &result, query,
		id, tenantID, req.EntityType, req.SourceID, req.SourceSystem,
		req.Data, fp, "", now, now,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert staged record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert staged record")
	}

	if result.Inserted {
		if err := tx.Commit(ctx); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
		}
		log.WithFields(map[string]any{"id": result.ID}).Info("Created staged record")
		return &UpsertResult{Record: &result.StagedRecord, IsNew: true, IsChanged: true}, nil
	}

	// For updates, recompute the fingerprint over the merged payload
	mergedFp, err := fingerprint.GenerateFromJSON(result.Data)
	if err != nil {
		log.WithError(err).WithFields(map[string]any{"id": result.ID}).Error("Failed to generate fingerprint for merged data")
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid merged record data")
	}

	if fingerprint.HasChanged(result.Fingerprint, mergedFp) {
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("staged_records")
		sb.Set(sb.Assign("fingerprint", mergedFp), sb.Assign("previous_fingerprint", result.Fingerprint), sb.Assign("updated_at", now))
		sb.Where(sb.Equal("id", result.ID))
		query, args := sb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).WithFields(map[string]any{"id": result.ID}).Error("Failed to update fingerprint after merge")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update fingerprint")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
		}

		result.PreviousFingerprint = result.Fingerprint
		result.Fingerprint = mergedFp
		result.UpdatedAt = now

		log.WithFields(map[string]any{"id": result.ID}).Info("Updated staged record")
		return &UpsertResult{Record: &result.StagedRecord, IsNew: false, IsChanged: true}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	log.WithFields(map[string]any{"id": result.ID}).Debug("Staged record unchanged")
	return &UpsertResult{Record: &result.StagedRecord, IsNew: false, IsChanged: false}, nil
}

// Get retrieves a staged record by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.StagedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staged_records")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var record models.StagedRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "staged record %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to get staged record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged record")
	}

	return &record, nil
}

// GetBySourceID retrieves a staged record by its upstream identity
func (r *Repository) GetBySourceID(ctx context.Context, tenantID, entityType, sourceID, sourceSystem string) (*models.StagedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.GetBySourceID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staged_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("source_id", sourceID),
		sb.Equal("source_system", sourceSystem),
		sb.IsNull("deleted_at"),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var record models.StagedRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "entity_type": entityType, "source_id": sourceID}).Error("Failed to get staged record by source_id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged record")
	}

	return &record, nil
}

// ListByEntityType returns every live staged record of one entity type for a
// tenant, in insertion order. Resolution runs operate on this full set.
func (r *Repository) ListByEntityType(ctx context.Context, tenantID, entityType string) ([]models.StagedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.ListByEntityType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staged_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var records []models.StagedRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "entity_type": entityType}).Error("Failed to list staged records by entity type")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged records")
	}
	return records, nil
}

// List retrieves staged records with filtering and pagination
func (r *Repository) List(ctx context.Context, tenantID string, entityType *string, page, pageSize int) (*models.StagedRecordListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.List")
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
	countSb.From("staged_records")
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
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "entity_type": entityType}).Error("Failed to count staged records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count staged records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staged_records")
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
	var records []models.StagedRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "entity_type": entityType}).Error("Failed to list staged records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged records")
	}

	return &models.StagedRecordListResponse{
		Items:      records,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// SoftDelete marks a staged record as deleted
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staged_records")
	sb.Set(sb.Assign("deleted_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "tenant_id": tenantID}).Error("Failed to soft delete staged record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete staged record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("staged record %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted staged record")
	return nil
}
