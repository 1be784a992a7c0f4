package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies which resolution pipeline a record flows through
type EntityType string

const (
	EntityTypeAccount EntityType = "account"
	EntityTypeContact EntityType = "contact"
)

// Valid returns true if the entity type is one the engine knows how to resolve
func (t EntityType) Valid() bool {
	return t == EntityTypeAccount || t == EntityTypeContact
}

// Well-known field names used by match criteria and exports
const (
	FieldEnterpriseID = "enterprise_id"
	FieldAccountName  = "account_name"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldAccountID    = "account_id"
	FieldSegment      = "segment"
	FieldContactType  = "contact_type"
	FieldRevenue      = "annual_revenue"
	FieldEmployees    = "employee_count"
)

// Record is the unit of resolution: a flat view of a staged row with the
// fields match criteria read from. Missing fields are simply absent from
// the map; scorers treat them as empty.
type Record struct {
	ID         string            `json:"id"`
	EntityType EntityType        `json:"entity_type"`
	Fields     map[string]string `json:"fields"`
}

// Field returns the raw value for a field name, or "" when absent
func (r *Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// DisplayName returns a human-readable label for reports and exports
func (r *Record) DisplayName() string {
	switch r.EntityType {
	case EntityTypeAccount:
		if name := r.Field(FieldAccountName); name != "" {
			return name
		}
	case EntityTypeContact:
		first := r.Field(FieldFirstName)
		last := r.Field(FieldLastName)
		if first != "" || last != "" {
			if first == "" {
				return last
			}
			if last == "" {
				return first
			}
			return first + " " + last
		}
	}
	return r.ID
}

// StagedRecord represents a raw source row awaiting resolution.
// Field order matches schema: id, tenant_id, entity_type, source_id, source_system, ...
type StagedRecord struct {
	ID                  string          `json:"id" db:"id"`
	TenantID            string          `json:"tenant_id" db:"tenant_id"`
	EntityType          string          `json:"entity_type" db:"entity_type"`
	SourceID            string          `json:"source_id" db:"source_id"`
	SourceSystem        string          `json:"source_system" db:"source_system"`
	Data                json.RawMessage `json:"data" db:"data"`
	Fingerprint         string          `json:"fingerprint" db:"fingerprint"`
	PreviousFingerprint string          `json:"previous_fingerprint,omitempty" db:"previous_fingerprint"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt           *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateStagedRecordRequest is the request for creating/upserting a staged record
type CreateStagedRecordRequest struct {
	EntityType   string          `json:"entity_type" validate:"required,oneof=account contact"`
	SourceID     string          `json:"source_id" validate:"required"`
	SourceSystem string          `json:"source_system" validate:"required"`
	Data         json.RawMessage `json:"data" validate:"required"`
}

// StagedRecordListResponse is the response for listing staged records
type StagedRecordListResponse struct {
	Items      []StagedRecord `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
