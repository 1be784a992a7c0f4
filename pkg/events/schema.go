package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Record events
	EventTypeRecordStaged EventType = "record.staged"

	// Resolution run events
	EventTypeResolutionCompleted EventType = "resolution.completed"
	EventTypeResolutionFailed    EventType = "resolution.failed"

	// Identity group events
	EventTypeGroupCreated EventType = "identity.group.created"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RecordStagedEvent is emitted when an upstream record lands in staging
type RecordStagedEvent struct {
	BaseEvent
	RecordID     string `json:"record_id"`
	EntityType   string `json:"entity_type"`
	SourceSystem string `json:"source_system"`
	SourceID     string `json:"source_id"`
	IsNew        bool   `json:"is_new"`
}

// ResolutionCompletedEvent is emitted when a resolution run finishes
type ResolutionCompletedEvent struct {
	BaseEvent
	RunID            string  `json:"run_id"`
	EntityType       string  `json:"entity_type"`
	RuleSetName      string  `json:"rule_set_name"`
	MatchThreshold   float64 `json:"match_threshold"`
	TotalRecords     int     `json:"total_records"`
	GroupsFound      int     `json:"groups_found"`
	UniqueIdentities int     `json:"unique_identities"`
	Duplicates       int     `json:"duplicates"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// ResolutionFailedEvent is emitted when a resolution run fails
type ResolutionFailedEvent struct {
	BaseEvent
	RunID      string `json:"run_id"`
	EntityType string `json:"entity_type"`
	Error      string `json:"error"`
}

// GroupCreatedEvent is emitted for each duplicate group a run produces
type GroupCreatedEvent struct {
	BaseEvent
	RunID             string   `json:"run_id"`
	IdentityToken     string   `json:"identity_token"`
	PrimaryRecordID   string   `json:"primary_record_id"`
	RecordIDs         []string `json:"record_ids"`
	Confidence        float64  `json:"confidence"`
	MatchKind         string   `json:"match_kind"`
	MatchedCriteria   []string `json:"matched_criteria"`
	RecommendedAction string   `json:"recommended_action"`
	DataQuality       float64  `json:"data_quality"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
