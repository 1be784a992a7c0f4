package models

import (
	"encoding/json"
	"time"
)

// MatchType defines how a criterion compares two field values
type MatchType string

const (
	// MatchTypeExact requires byte equality after normalization
	MatchTypeExact MatchType = "exact"
	// MatchTypeFuzzy uses string similarity with an internal floor
	MatchTypeFuzzy MatchType = "fuzzy"
	// MatchTypeDigits compares only the digit characters of both values
	MatchTypeDigits MatchType = "digits"
)

// Criterion is one weighted comparison within a rule set
type Criterion struct {
	Field         string    `json:"field" validate:"required"`
	MatchType     MatchType `json:"match_type" validate:"required"`
	Weight        float64   `json:"weight" validate:"required,gt=0"`
	Threshold     float64   `json:"threshold,omitempty"` // fuzzy only: per-field similarity floor
	CaseSensitive bool      `json:"case_sensitive,omitempty"`
	Normalizer    *string   `json:"normalizer,omitempty"`
}

// RuleSet is the stored form of a matching policy. Criteria are kept as
// JSONB and compiled by the matching package before use.
type RuleSet struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	EntityType     string          `json:"entity_type" db:"entity_type"`
	Name           string          `json:"name" db:"name"`
	Description    *string         `json:"description,omitempty" db:"description"`
	MatchThreshold float64         `json:"match_threshold" db:"match_threshold"`
	Criteria       json.RawMessage `json:"criteria" db:"criteria"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// DecodeCriteria unmarshals the stored criteria list
func (rs *RuleSet) DecodeCriteria() ([]Criterion, error) {
	var criteria []Criterion
	if len(rs.Criteria) == 0 {
		return criteria, nil
	}
	if err := json.Unmarshal(rs.Criteria, &criteria); err != nil {
		return nil, err
	}
	return criteria, nil
}

// CreateRuleSetRequest is the repository-level request for creating a rule set
type CreateRuleSetRequest struct {
	EntityType     string          `json:"entity_type"`
	Name           string          `json:"name"`
	Description    *string         `json:"description,omitempty"`
	MatchThreshold float64         `json:"match_threshold"`
	Criteria       json.RawMessage `json:"criteria"`
	IsActive       bool            `json:"is_active"`
}

// UpdateRuleSetRequest is the repository-level request for updating a rule set
type UpdateRuleSetRequest struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	MatchThreshold *float64        `json:"match_threshold,omitempty"`
	Criteria       json.RawMessage `json:"criteria,omitempty"`
	IsActive       *bool           `json:"is_active,omitempty"`
}

// RuleSetListResponse is the response for listing rule sets
type RuleSetListResponse struct {
	Items      []RuleSet `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
