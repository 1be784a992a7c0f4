package matching

import (
	"fmt"

	"github.com/Ramsey-B/sage/pkg/models"
)

// RuleSet is the compiled, validated form of a matching policy
type RuleSet struct {
	EntityType     models.EntityType
	Name           string
	MatchThreshold float64
	Criteria       []models.Criterion
}

// Validate checks the rule set for configuration errors. Configuration
// problems fail a run up front; they are never silently defaulted.
func (rs *RuleSet) Validate() error {
	if !rs.EntityType.Valid() {
		return fmt.Errorf("rule set %q: unknown entity type %q", rs.Name, rs.EntityType)
	}
	if len(rs.Criteria) == 0 {
		return fmt.Errorf("rule set %q: at least one criterion is required", rs.Name)
	}
	if rs.MatchThreshold < 0 || rs.MatchThreshold > 1 {
		return fmt.Errorf("rule set %q: match threshold %v is outside [0, 1]", rs.Name, rs.MatchThreshold)
	}
	for i, c := range rs.Criteria {
		if c.Field == "" {
			return fmt.Errorf("rule set %q: criterion %d has no field", rs.Name, i)
		}
		if c.Weight <= 0 {
			return fmt.Errorf("rule set %q: criterion %q has non-positive weight %v", rs.Name, c.Field, c.Weight)
		}
		switch c.MatchType {
		case models.MatchTypeExact, models.MatchTypeFuzzy, models.MatchTypeDigits:
		default:
			return fmt.Errorf("rule set %q: criterion %q has unknown match type %q", rs.Name, c.Field, c.MatchType)
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Errorf("rule set %q: criterion %q threshold %v is outside [0, 1]", rs.Name, c.Field, c.Threshold)
		}
	}
	return nil
}

// Compile decodes a stored rule set into its executable form and validates it
func Compile(stored *models.RuleSet) (*RuleSet, error) {
	criteria, err := stored.DecodeCriteria()
	if err != nil {
		return nil, fmt.Errorf("rule set %q: invalid criteria: %w", stored.Name, err)
	}

	rs := &RuleSet{
		EntityType:     models.EntityType(stored.EntityType),
		Name:           stored.Name,
		MatchThreshold: stored.MatchThreshold,
		Criteria:       criteria,
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// DefaultAccountRuleSet matches accounts on their enterprise id alone.
// Two accounts are the same identity iff both carry the same non-empty id.
func DefaultAccountRuleSet() *RuleSet {
	trim := "trim"
	return &RuleSet{
		EntityType:     models.EntityTypeAccount,
		Name:           "account-enterprise-id",
		MatchThreshold: 1.0,
		Criteria: []models.Criterion{
			{Field: models.FieldEnterpriseID, MatchType: models.MatchTypeExact, Weight: 1.0, Normalizer: &trim},
		},
	}
}

// DefaultContactRuleSet matches contacts on a weighted composite of fuzzy
// first name, exact last name, case-insensitive email, and digit-exact
// phone. Missing fields score 0.0 but keep their weight in the denominator.
func DefaultContactRuleSet() *RuleSet {
	nname := "nname"
	nemail := "nemail"
	return &RuleSet{
		EntityType:     models.EntityTypeContact,
		Name:           "contact-composite",
		MatchThreshold: 0.95,
		Criteria: []models.Criterion{
			{Field: models.FieldFirstName, MatchType: models.MatchTypeFuzzy, Weight: 0.8, Threshold: 0.8},
			{Field: models.FieldLastName, MatchType: models.MatchTypeExact, Weight: 1.0, Normalizer: &nname},
			{Field: models.FieldEmail, MatchType: models.MatchTypeExact, Weight: 1.0, Normalizer: &nemail},
			{Field: models.FieldPhone, MatchType: models.MatchTypeDigits, Weight: 1.0},
		},
	}
}

// DefaultRuleSet returns the built-in rule set for an entity type
func DefaultRuleSet(entityType models.EntityType) (*RuleSet, error) {
	switch entityType {
	case models.EntityTypeAccount:
		return DefaultAccountRuleSet(), nil
	case models.EntityTypeContact:
		return DefaultContactRuleSet(), nil
	default:
		return nil, fmt.Errorf("no default rule set for entity type %q", entityType)
	}
}
