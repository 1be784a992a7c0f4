// Package processor handles incoming record messages and manages the
// staging pipeline. This is the ingestion layer; resolution runs read from
// the staged tables on demand.
package processor

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/internal/repositories/record"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// RecordStagedNotifier is notified after a record lands in staging
type RecordStagedNotifier interface {
	EmitRecordStaged(ctx context.Context, tenantID, recordID, entityType, sourceSystem, sourceID string, isNew bool) error
}

// Processor handles message processing for the staging layer
type Processor struct {
	logger     ectologger.Logger
	recordRepo *record.Repository
	notifier   RecordStagedNotifier
}

// NewProcessor creates a new message processor for ingestion. The notifier
// may be nil when event publishing is disabled.
func NewProcessor(logger ectologger.Logger, recordRepo *record.Repository, notifier RecordStagedNotifier) *Processor {
	return &Processor{
		logger:     logger,
		recordRepo: recordRepo,
		notifier:   notifier,
	}
}

// ProcessMessage handles an incoming Kafka message. Messages missing
// required identity fields are skipped, not retried.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	if msg.RecordMessage == nil {
		if err := msg.ParseRecordMessage(); err != nil {
			log.WithError(err).Error("Failed to parse record message")
			return err
		}
	}

	tenantID := msg.GetTenantID()
	if tenantID == "" {
		log.Error("Missing tenant_id in message")
		return nil
	}

	entityType := msg.GetEntityType()
	sourceID := msg.GetSourceID()
	sourceSystem := msg.GetSourceSystem()
	data := msg.GetData()

	log = log.WithFields(map[string]any{
		"tenant_id":     tenantID,
		"entity_type":   entityType,
		"source_id":     sourceID,
		"source_system": sourceSystem,
	})

	if !models.EntityType(entityType).Valid() {
		log.Warn("Skipping record: unknown entity type")
		return nil
	}
	if sourceID == "" || sourceSystem == "" {
		log.Warn("Skipping record: missing required identity fields (source_id, source_system)")
		return nil
	}
	if !json.Valid(data) {
		log.Warn("Skipping record: payload is not valid JSON")
		return nil
	}

	result, err := p.recordRepo.Upsert(ctx, tenantID, models.CreateStagedRecordRequest{
		EntityType:   entityType,
		SourceID:     sourceID,
		SourceSystem: sourceSystem,
		Data:         data,
	})
	if err != nil {
		log.WithError(err).Error("Failed to upsert staged record")
		return err
	}

	log.WithFields(map[string]any{
		"record_id":  result.Record.ID,
		"is_new":     result.IsNew,
		"is_changed": result.IsChanged,
	}).Info("Record staged")

	if p.notifier != nil && result.IsChanged {
		if err := p.notifier.EmitRecordStaged(ctx, tenantID, result.Record.ID, entityType, sourceSystem, sourceID, result.IsNew); err != nil {
			// Staging succeeded; a lost notification is not worth a redelivery
			log.WithError(err).Warn("Failed to emit record.staged event")
		}
	}

	return nil
}
