// Package events handles event emission for the resolution pipeline
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/resolution"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes pipeline events to the output topic
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) publish(ctx context.Context, key string, base BaseEvent, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return e.producer.Publish(ctx, &kafka.Event{
		EventType: string(base.EventType),
		TenantID:  base.TenantID,
		Key:       key,
		Payload:   data,
		Timestamp: base.Timestamp,
	})
}

// EmitRecordStaged emits a record.staged event after ingestion
func (e *Emitter) EmitRecordStaged(ctx context.Context, tenantID, recordID, entityType, sourceSystem, sourceID string, isNew bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordStaged")
	defer span.End()

	event := RecordStagedEvent{
		BaseEvent:    NewBaseEvent(EventTypeRecordStaged, tenantID),
		RecordID:     recordID,
		EntityType:   entityType,
		SourceSystem: sourceSystem,
		SourceID:     sourceID,
		IsNew:        isNew,
	}

	if err := e.publish(ctx, recordID, event.BaseEvent, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit record.staged event")
		return err
	}
	return nil
}

// EmitResolutionCompleted emits a resolution.completed event with run totals
func (e *Emitter) EmitResolutionCompleted(ctx context.Context, tenantID, runID string, report *resolution.Report) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolutionCompleted")
	defer span.End()

	event := ResolutionCompletedEvent{
		BaseEvent:        NewBaseEvent(EventTypeResolutionCompleted, tenantID),
		RunID:            runID,
		EntityType:       string(report.Metadata.EntityType),
		RuleSetName:      report.Metadata.RuleSetName,
		MatchThreshold:   report.Metadata.MatchThreshold,
		TotalRecords:     report.TotalRecords,
		GroupsFound:      report.GroupsFound,
		UniqueIdentities: report.UniqueIdentities,
		Duplicates:       report.Duplicates,
		ReductionPercent: report.ReductionPercent,
	}

	if err := e.publish(ctx, runID, event.BaseEvent, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit resolution.completed event")
		return err
	}
	return nil
}

// EmitResolutionFailed emits a resolution.failed event
func (e *Emitter) EmitResolutionFailed(ctx context.Context, tenantID, runID, entityType string, cause error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolutionFailed")
	defer span.End()

	event := ResolutionFailedEvent{
		BaseEvent:  NewBaseEvent(EventTypeResolutionFailed, tenantID),
		RunID:      runID,
		EntityType: entityType,
		Error:      cause.Error(),
	}

	if err := e.publish(ctx, runID, event.BaseEvent, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit resolution.failed event")
		return err
	}
	return nil
}

// EmitGroupCreated emits an identity.group.created event for one group
func (e *Emitter) EmitGroupCreated(ctx context.Context, tenantID, runID string, group *resolution.Group) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitGroupCreated")
	defer span.End()

	event := GroupCreatedEvent{
		BaseEvent:         NewBaseEvent(EventTypeGroupCreated, tenantID),
		RunID:             runID,
		IdentityToken:     group.IdentityToken,
		PrimaryRecordID:   group.PrimaryRecordID,
		RecordIDs:         group.RecordIDs,
		Confidence:        group.Confidence,
		MatchKind:         group.MatchKind,
		MatchedCriteria:   group.MatchedCriteria,
		RecommendedAction: group.RecommendedAction,
		DataQuality:       group.DataQuality,
	}

	if err := e.publish(ctx, group.IdentityToken, event.BaseEvent, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit identity.group.created event")
		return err
	}
	return nil
}
