package resolution

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/extractor"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// RecordSource supplies the staged records a run operates on
type RecordSource interface {
	ListByEntityType(ctx context.Context, tenantID, entityType string) ([]models.StagedRecord, error)
}

// RuleSetSource supplies stored matching policies
type RuleSetSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.RuleSet, error)
	GetActiveByEntityType(ctx context.Context, tenantID, entityType string) (*models.RuleSet, error)
}

// RunStore persists runs and their groups
type RunStore interface {
	Create(ctx context.Context, tenantID string, req models.CreateRunRequest) (*models.ResolutionRun, error)
	MarkRunning(ctx context.Context, tenantID, id string) error
	Complete(ctx context.Context, tenantID, id string, report *Report) error
	Fail(ctx context.Context, tenantID, id string, cause error) error
	SaveGroups(ctx context.Context, tenantID, runID string, groups []Group, entityType models.EntityType) error
}

// EventSink publishes run lifecycle events
type EventSink interface {
	EmitResolutionCompleted(ctx context.Context, tenantID, runID string, report *Report) error
	EmitGroupCreated(ctx context.Context, tenantID, runID string, group *Group) error
}

// ServiceConfig carries the resolution defaults from application config
type ServiceConfig struct {
	MatchThreshold float64 // contact composite threshold (default: 0.95)
	Blocking       string  // default blocking strategy name
}

// DefaultServiceConfig returns the built-in resolution defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MatchThreshold: 0.95,
		Blocking:       BlockingNone,
	}
}

// Service orchestrates resolution runs: it loads records, compiles the
// rule set, executes the resolver, and persists and publishes the outcome
type Service struct {
	engine    *matching.Engine
	records   RecordSource
	ruleSets  RuleSetSource
	runs      RunStore
	events    EventSink
	extractor *extractor.Extractor
	logger    ectologger.Logger
	config    ServiceConfig
}

// NewService creates a new resolution service. The event sink may be nil
// when event publishing is disabled.
func NewService(
	engine *matching.Engine,
	records RecordSource,
	ruleSets RuleSetSource,
	runs RunStore,
	events EventSink,
	logger ectologger.Logger,
	config ServiceConfig,
) *Service {
	return &Service{
		engine:    engine,
		records:   records,
		ruleSets:  ruleSets,
		runs:      runs,
		events:    events,
		extractor: extractor.New(),
		logger:    logger,
		config:    config,
	}
}

// RunRequest describes one requested resolution run
type RunRequest struct {
	EntityType     models.EntityType `json:"entity_type" validate:"required,oneof=account contact"`
	RuleSetID      *string           `json:"rule_set_id,omitempty"`
	MatchThreshold *float64          `json:"match_threshold,omitempty"`
	Blocking       string            `json:"blocking,omitempty"`
}

// Resolve executes a full resolution run for a tenant. Configuration
// errors fail before any scoring happens; the run row records the failure.
func (s *Service) Resolve(ctx context.Context, tenantID string, req RunRequest) (*models.ResolutionRun, *Report, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Resolve")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"entity_type": req.EntityType,
	})

	ruleSet, ruleSetID, err := s.resolveRuleSet(ctx, tenantID, req)
	if err != nil {
		return nil, nil, err
	}

	blockingName := req.Blocking
	if blockingName == "" {
		blockingName = s.config.Blocking
	}
	blocking, err := ParseBlocking(blockingName)
	if err != nil {
		return nil, nil, err
	}

	run, err := s.runs.Create(ctx, tenantID, models.CreateRunRequest{
		EntityType:     string(req.EntityType),
		RuleSetID:      ruleSetID,
		MatchThreshold: ruleSet.MatchThreshold,
		Blocking:       blocking.Name(),
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.runs.MarkRunning(ctx, tenantID, run.ID); err != nil {
		return nil, nil, err
	}

	report, err := s.execute(ctx, tenantID, ruleSet, blocking)
	if err != nil {
		log.WithError(err).Error("Resolution run failed")
		if failErr := s.runs.Fail(ctx, tenantID, run.ID, err); failErr != nil {
			log.WithError(failErr).Error("Failed to record run failure")
		}
		return run, nil, err
	}
	report.Metadata.RunID = run.ID

	if err := s.runs.SaveGroups(ctx, tenantID, run.ID, report.Groups, req.EntityType); err != nil {
		return run, nil, err
	}
	if err := s.runs.Complete(ctx, tenantID, run.ID, report); err != nil {
		return run, nil, err
	}

	s.publish(ctx, tenantID, run.ID, report)

	log.WithFields(map[string]any{
		"run_id":       run.ID,
		"groups_found": report.GroupsFound,
	}).Info("Resolution run completed")

	return run, report, nil
}

// resolveRuleSet picks the policy for a run: an explicit rule set id, the
// tenant's active stored policy, or the built-in default for the entity
// type. Threshold overrides apply after selection.
func (s *Service) resolveRuleSet(ctx context.Context, tenantID string, req RunRequest) (*matching.RuleSet, *string, error) {
	var stored *models.RuleSet
	var err error

	switch {
	case req.RuleSetID != nil:
		stored, err = s.ruleSets.GetByID(ctx, tenantID, *req.RuleSetID)
		if err != nil {
			return nil, nil, err
		}
	default:
		stored, err = s.ruleSets.GetActiveByEntityType(ctx, tenantID, string(req.EntityType))
		if err != nil {
			return nil, nil, err
		}
	}

	var ruleSet *matching.RuleSet
	var ruleSetID *string
	if stored != nil {
		ruleSet, err = matching.Compile(stored)
		if err != nil {
			return nil, nil, err
		}
		ruleSetID = &stored.ID
	} else {
		ruleSet, err = matching.DefaultRuleSet(req.EntityType)
		if err != nil {
			return nil, nil, err
		}
		if req.EntityType == models.EntityTypeContact && s.config.MatchThreshold > 0 {
			ruleSet.MatchThreshold = s.config.MatchThreshold
		}
	}

	if req.MatchThreshold != nil {
		ruleSet.MatchThreshold = *req.MatchThreshold
	}
	if err := ruleSet.Validate(); err != nil {
		return nil, nil, err
	}

	return ruleSet, ruleSetID, nil
}

// execute loads and projects the record set, then runs the resolver
func (s *Service) execute(ctx context.Context, tenantID string, ruleSet *matching.RuleSet, blocking Blocking) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.execute")
	defer span.End()

	staged, err := s.records.ListByEntityType(ctx, tenantID, string(ruleSet.EntityType))
	if err != nil {
		return nil, err
	}

	records := make([]*models.Record, 0, len(staged))
	for i := range staged {
		rec, err := s.project(&staged[i])
		if err != nil {
			// Malformed payloads degrade to an empty record rather than
			// failing the run; they score 0 against everything.
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"record_id": staged[i].ID,
			}).Warn("Failed to project staged record")
			rec = &models.Record{ID: staged[i].ID, EntityType: models.EntityType(staged[i].EntityType)}
		}
		records = append(records, rec)
	}

	resolver := NewResolver(s.engine, s.logger, blocking)
	return resolver.Resolve(ctx, ruleSet, records)
}

// projectedFields are the payload paths pulled into the flat record view
var projectedFields = map[models.EntityType][]string{
	models.EntityTypeAccount: {
		models.FieldEnterpriseID,
		models.FieldAccountName,
		models.FieldSegment,
		models.FieldRevenue,
		models.FieldEmployees,
	},
	models.EntityTypeContact: {
		models.FieldFirstName,
		models.FieldLastName,
		models.FieldEmail,
		models.FieldPhone,
		models.FieldAccountID,
		models.FieldSegment,
		models.FieldContactType,
	},
}

// project flattens a staged record's JSONB payload into the field view the
// engine scores against
func (s *Service) project(staged *models.StagedRecord) (*models.Record, error) {
	entityType := models.EntityType(staged.EntityType)
	if !entityType.Valid() {
		return nil, fmt.Errorf("staged record %s has unknown entity type %q", staged.ID, staged.EntityType)
	}

	data, err := extractor.FromJSON(staged.Data)
	if err != nil {
		return nil, fmt.Errorf("staged record %s has invalid payload: %w", staged.ID, err)
	}

	fields := make(map[string]string)
	for _, path := range projectedFields[entityType] {
		value, err := s.extractor.ExtractString(data, path)
		if err != nil || value == nil {
			continue
		}
		fields[path] = *value
	}

	return &models.Record{
		ID:         staged.ID,
		EntityType: entityType,
		Fields:     fields,
	}, nil
}

// publish emits run events; failures are logged, never fatal
func (s *Service) publish(ctx context.Context, tenantID, runID string, report *Report) {
	if s.events == nil {
		return
	}

	if err := s.events.EmitResolutionCompleted(ctx, tenantID, runID, report); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to emit resolution.completed event")
	}
	for i := range report.Groups {
		if err := s.events.EmitGroupCreated(ctx, tenantID, runID, &report.Groups[i]); err != nil {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to emit identity.group.created event")
		}
	}
}
