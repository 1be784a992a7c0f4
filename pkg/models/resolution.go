package models

import (
	"encoding/json"
	"time"
)

// RunStatus tracks the lifecycle of a resolution run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// MatchKind labels the confidence band a group landed in
const (
	MatchKindExact         = "Exact Match"
	MatchKindProbabilistic = "Probabilistic Match"
	MatchKindFuzzy         = "Fuzzy Match"
)

// RecommendedAction values produced for each identity group
const (
	ActionAutoMerge         = "High Confidence - Auto-Merge"
	ActionManualReview      = "Manual Review Required"
	ActionDataQualityReview = "Data Quality Review Required"
	ActionBelowThreshold    = "No Action - Below Threshold"
)

// ResolutionRun records a single execution of the resolver over a record set
type ResolutionRun struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	EntityType       string     `json:"entity_type" db:"entity_type"`
	RuleSetID        *string    `json:"rule_set_id,omitempty" db:"rule_set_id"`
	MatchThreshold   float64    `json:"match_threshold" db:"match_threshold"`
	Blocking         string     `json:"blocking" db:"blocking"`
	Status           RunStatus  `json:"status" db:"status"`
	TotalRecords     int        `json:"total_records" db:"total_records"`
	GroupsFound      int        `json:"groups_found" db:"groups_found"`
	UniqueIdentities int        `json:"unique_identities" db:"unique_identities"`
	Duplicates       int        `json:"duplicates" db:"duplicates"`
	Error            *string    `json:"error,omitempty" db:"error"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// IdentityGroup is a persisted duplicate group from a resolution run.
// RecordIDs and MatchedCriteria are stored as JSONB arrays.
type IdentityGroup struct {
	ID                string          `json:"id" db:"id"`
	RunID             string          `json:"run_id" db:"run_id"`
	TenantID          string          `json:"tenant_id" db:"tenant_id"`
	IdentityToken     string          `json:"identity_token" db:"identity_token"`
	EntityType        string          `json:"entity_type" db:"entity_type"`
	PrimaryRecordID   string          `json:"primary_record_id" db:"primary_record_id"`
	RecordIDs         json.RawMessage `json:"record_ids" db:"record_ids"`
	Confidence        float64         `json:"confidence" db:"confidence"`
	MatchKind         string          `json:"match_kind" db:"match_kind"`
	MatchedCriteria   json.RawMessage `json:"matched_criteria" db:"matched_criteria"`
	RecommendedAction string          `json:"recommended_action" db:"recommended_action"`
	DataQuality       float64         `json:"data_quality" db:"data_quality"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// CreateRunRequest is the repository-level request for recording a new run
type CreateRunRequest struct {
	EntityType     string  `json:"entity_type"`
	RuleSetID      *string `json:"rule_set_id,omitempty"`
	MatchThreshold float64 `json:"match_threshold"`
	Blocking       string  `json:"blocking"`
}

// RunListResponse is the response for listing resolution runs
type RunListResponse struct {
	Items      []ResolutionRun `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
