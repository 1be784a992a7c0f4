package resolution

import (
	"time"

	"github.com/Ramsey-B/sage/pkg/models"
)

// Report is the terminal artifact of a resolution run. It is pure data;
// persistence and export are the caller's concern.
type Report struct {
	Metadata         ReportMetadata `json:"metadata"`
	TotalRecords int            `json:"total_records"`
	GroupsFound  int            `json:"groups_found"`

	// UniqueIdentities is groups found plus ungrouped records: each group
	// collapses to one identity, every singleton stands for itself.
	UniqueIdentities int     `json:"unique_identities"`
	Duplicates       int     `json:"duplicates"`
	ReductionPercent float64 `json:"reduction_percent"`
	Groups           []Group `json:"groups"`
}

// ReportMetadata records how the run was configured
type ReportMetadata struct {
	RunID          string            `json:"run_id"`
	GeneratedAt    time.Time         `json:"generated_at"`
	EntityType     models.EntityType `json:"entity_type"`
	RuleSetName    string            `json:"rule_set_name"`
	MatchThreshold float64           `json:"match_threshold"`
	Blocking       string            `json:"blocking"`
}

// Group is one resolved duplicate cluster. Every group has at least two
// members and a freshly minted identity token; no record appears in more
// than one group within a run.
type Group struct {
	IdentityToken     string   `json:"identity_token"`
	PrimaryRecordID   string   `json:"primary_record_id"`
	RecordIDs         []string `json:"record_ids"`
	DisplayNames      []string `json:"display_names"`
	Confidence        float64  `json:"confidence"`
	MatchKind         string   `json:"match_kind"`
	MatchedCriteria   []string `json:"matched_criteria"`
	RecommendedAction string   `json:"recommended_action"`
	DataQuality       float64  `json:"data_quality"`

	// Contact groups: distinct account ids the members link to
	LinkedAccounts []string `json:"linked_accounts,omitempty"`

	// Account groups: rollups across members
	TotalRevenue   float64 `json:"total_revenue,omitempty"`
	TotalEmployees int     `json:"total_employees,omitempty"`
}

// Size returns the member count of the group
func (g *Group) Size() int {
	return len(g.RecordIDs)
}

// matchKind labels the confidence band a group landed in
func matchKind(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return models.MatchKindExact
	case confidence >= 0.8:
		return models.MatchKindProbabilistic
	default:
		return models.MatchKindFuzzy
	}
}
