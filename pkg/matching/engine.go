// Package matching implements record match scoring
package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Engine scores record pairs against a compiled rule set
type Engine struct {
	scorer *Scorer
	logger ectologger.Logger
	config EngineConfig
}

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	// CriterionMatchFloor is the score at or above which a fuzzy criterion
	// counts toward the matched-criteria list (default: 0.8)
	CriterionMatchFloor float64
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		CriterionMatchFloor: 0.8,
	}
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, config EngineConfig) *Engine {
	return &Engine{
		scorer: NewScorer(),
		logger: logger,
		config: config,
	}
}

// MatchResult is the outcome of scoring one record pair
type MatchResult struct {
	Score           float64            `json:"score"`
	Matched         bool               `json:"matched"`
	MatchedCriteria []string           `json:"matched_criteria,omitempty"`
	CriterionScores map[string]float64 `json:"criterion_scores,omitempty"`
}

// Score evaluates a record pair against the rule set. The result is
// symmetric: Score(a, b) == Score(b, a). Data quality problems (missing or
// malformed field values) are absorbed as 0.0 criterion scores; only
// structural misuse returns an error.
func (e *Engine) Score(ctx context.Context, ruleSet *RuleSet, a, b *models.Record) (*MatchResult, error) {
	_, span := tracing.StartSpan(ctx, "matching.Engine.Score")
	defer span.End()

	if a == nil || b == nil {
		return nil, fmt.Errorf("both records are required")
	}
	if a.EntityType != ruleSet.EntityType || b.EntityType != ruleSet.EntityType {
		return nil, fmt.Errorf("rule set %q is for entity type %q, got %q and %q",
			ruleSet.Name, ruleSet.EntityType, a.EntityType, b.EntityType)
	}

	var weightedSum, totalWeight float64
	result := &MatchResult{
		CriterionScores: make(map[string]float64, len(ruleSet.Criteria)),
	}

	for _, criterion := range ruleSet.Criteria {
		score := e.scoreCriterion(criterion, a.Field(criterion.Field), b.Field(criterion.Field))

		// Every criterion keeps its weight in the denominator, so a missing
		// field drags the composite down instead of being skipped.
		weightedSum += score * criterion.Weight
		totalWeight += criterion.Weight
		result.CriterionScores[criterion.Field] = score

		if e.criterionMatched(criterion, score) {
			result.MatchedCriteria = append(result.MatchedCriteria, criterionLabel(criterion))
		}
	}

	if totalWeight > 0 {
		result.Score = weightedSum / totalWeight
	}
	result.Matched = result.Score >= ruleSet.MatchThreshold

	return result, nil
}

// CanonicalValue applies a criterion's normalization to a raw field value:
// the named normalizer when one is set, otherwise a lowercase+trim fold for
// case-insensitive criteria. Every comparison path must fold values through
// this so exact-key partitioning agrees with pairwise scoring.
func CanonicalValue(criterion models.Criterion, raw string) string {
	if criterion.Normalizer != nil {
		return normalizers.Apply(raw, *criterion.Normalizer)
	}
	if !criterion.CaseSensitive {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return raw
}

// scoreCriterion compares one field of a record pair
func (e *Engine) scoreCriterion(criterion models.Criterion, rawA, rawB string) float64 {
	a := CanonicalValue(criterion, rawA)
	b := CanonicalValue(criterion, rawB)

	switch criterion.MatchType {
	case models.MatchTypeExact:
		return e.scorer.ExactMatch(a, b, true) // normalization already applied
	case models.MatchTypeDigits:
		return e.scorer.DigitExact(a, b)
	case models.MatchTypeFuzzy:
		var score float64
		if criterion.Field == models.FieldFirstName {
			score = e.scorer.FirstNameSimilarity(a, b)
		} else {
			score = e.scorer.NameSimilarity(a, b)
		}
		// Below the per-field floor a fuzzy criterion contributes nothing
		if criterion.Threshold > 0 && score < criterion.Threshold {
			return 0.0
		}
		return score
	default:
		// Validate rejects unknown match types before scoring starts
		return 0.0
	}
}

// criterionMatched reports whether a criterion score is strong enough to
// name the criterion in the group's matched-criteria list
func (e *Engine) criterionMatched(criterion models.Criterion, score float64) bool {
	if criterion.MatchType == models.MatchTypeFuzzy {
		floor := e.config.CriterionMatchFloor
		if criterion.Threshold > floor {
			floor = criterion.Threshold
		}
		return score >= floor
	}
	return score >= 1.0
}

func criterionLabel(criterion models.Criterion) string {
	return fmt.Sprintf("%s (%s)", criterion.Field, criterion.MatchType)
}
