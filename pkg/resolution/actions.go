package resolution

import (
	"github.com/Ramsey-B/sage/pkg/models"
)

// ActionPolicy holds the per-segment confidence bands used to recommend an
// action for a duplicate group
type ActionPolicy struct {
	MinConfidence         float64
	ManualReviewThreshold float64
}

// dataQualityFloor is the completeness below which a group is routed to
// data quality review regardless of confidence
const dataQualityFloor = 0.6

var accountPolicies = map[string]ActionPolicy{
	"Enterprise": {MinConfidence: 0.30, ManualReviewThreshold: 0.50},
	"Mid-Market": {MinConfidence: 0.25, ManualReviewThreshold: 0.40},
	"SMB":        {MinConfidence: 0.20, ManualReviewThreshold: 0.30},
}

var contactPolicies = map[string]ActionPolicy{
	"Consumer": {MinConfidence: 0.20, ManualReviewThreshold: 0.30},
	"Business": {MinConfidence: 0.25, ManualReviewThreshold: 0.35},
	"Partner":  {MinConfidence: 0.20, ManualReviewThreshold: 0.30},
}

// PolicyFor returns the action policy for an entity type and segment.
// Unknown segments fall back to the strictest policy for the entity type.
func PolicyFor(entityType models.EntityType, segment string) ActionPolicy {
	policies := contactPolicies
	fallback := contactPolicies["Business"]
	if entityType == models.EntityTypeAccount {
		policies = accountPolicies
		fallback = accountPolicies["Enterprise"]
	}
	if policy, ok := policies[segment]; ok {
		return policy
	}
	return fallback
}

// RecommendAction maps a group's confidence and data quality to an action
func RecommendAction(policy ActionPolicy, confidence, dataQuality float64) string {
	switch {
	case dataQuality < dataQualityFloor:
		return models.ActionDataQualityReview
	case confidence >= policy.ManualReviewThreshold:
		return models.ActionAutoMerge
	case confidence >= policy.MinConfidence:
		return models.ActionManualReview
	default:
		return models.ActionBelowThreshold
	}
}

// completenessFields are the fields counted toward a record's data quality
// score, per entity type
var completenessFields = map[models.EntityType][]string{
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
	},
}

// DataQualityScore is the fraction of well-known fields a record has filled
func DataQualityScore(rec *models.Record) float64 {
	fields := completenessFields[rec.EntityType]
	if len(fields) == 0 {
		return 0.0
	}
	filled := 0
	for _, field := range fields {
		if rec.Field(field) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}
