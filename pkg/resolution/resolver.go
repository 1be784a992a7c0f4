// Package resolution builds identity groups from scored record pairs
package resolution

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Resolver clusters records into identity groups using a compiled rule set
type Resolver struct {
	engine   *matching.Engine
	logger   ectologger.Logger
	blocking Blocking
}

// NewResolver creates a new resolver. A nil blocking strategy means full
// pairwise comparison.
func NewResolver(engine *matching.Engine, logger ectologger.Logger, blocking Blocking) *Resolver {
	if blocking == nil {
		blocking = NoBlocking{}
	}
	return &Resolver{
		engine:   engine,
		logger:   logger,
		blocking: blocking,
	}
}

// Resolve runs the full clustering pass over a record set and produces a
// report. Rule set problems fail the run up front; per-record data problems
// are absorbed into scores.
//
// Grouping is first-qualifying-match-wins in input order: once a record
// joins a group it is never reconsidered, so clusters are not transitive
// closures. Reordering the input can produce different groups.
func (r *Resolver) Resolve(ctx context.Context, ruleSet *matching.RuleSet, records []*models.Record) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Resolver.Resolve")
	defer span.End()

	if err := ruleSet.Validate(); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.EntityType != ruleSet.EntityType {
			return nil, fmt.Errorf("record %s has entity type %q, rule set %q expects %q",
				rec.ID, rec.EntityType, ruleSet.Name, ruleSet.EntityType)
		}
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":  ruleSet.EntityType,
		"rule_set":     ruleSet.Name,
		"record_count": len(records),
		"blocking":     r.blocking.Name(),
	})
	log.Info("Starting resolution pass")

	var groups []Group
	var err error
	if key, ok := exactPartitionKey(ruleSet); ok {
		groups = r.resolveByExactKey(ctx, ruleSet, records, key)
	} else {
		groups, err = r.resolvePairwise(ctx, ruleSet, records)
		if err != nil {
			return nil, err
		}
	}

	report := buildReport(ruleSet, r.blocking, records, groups)

	log.WithFields(map[string]any{
		"groups_found":      report.GroupsFound,
		"unique_identities": report.UniqueIdentities,
		"duplicates":        report.Duplicates,
	}).Info("Resolution pass complete")

	return report, nil
}

// exactPartitionKey reports whether the rule set is a single exact
// criterion, which can be resolved with a hash partition instead of
// pairwise scoring
func exactPartitionKey(ruleSet *matching.RuleSet) (models.Criterion, bool) {
	if len(ruleSet.Criteria) != 1 || ruleSet.MatchThreshold < 1.0 {
		return models.Criterion{}, false
	}
	c := ruleSet.Criteria[0]
	if c.MatchType != models.MatchTypeExact && c.MatchType != models.MatchTypeDigits {
		return models.Criterion{}, false
	}
	return c, true
}

// resolveByExactKey partitions records by their normalized key value in a
// single pass. Records with an empty key never match anything, including
// each other.
func (r *Resolver) resolveByExactKey(ctx context.Context, ruleSet *matching.RuleSet, records []*models.Record, criterion models.Criterion) []Group {
	_, span := tracing.StartSpan(ctx, "resolution.Resolver.resolveByExactKey")
	defer span.End()

	partitions := make(map[string][]*models.Record)
	var keys []string
	for _, rec := range records {
		// Same fold the pairwise scorer applies, so both paths agree on
		// case-variant keys
		key := matching.CanonicalValue(criterion, rec.Field(criterion.Field))
		if criterion.MatchType == models.MatchTypeDigits {
			key = normalizers.DigitsOnly(key)
		}
		if key == "" {
			continue
		}
		if _, seen := partitions[key]; !seen {
			keys = append(keys, key)
		}
		partitions[key] = append(partitions[key], rec)
	}

	var groups []Group
	for _, key := range keys {
		members := partitions[key]
		if len(members) < 2 {
			continue
		}
		criteria := []string{fmt.Sprintf("%s (%s)", criterion.Field, criterion.MatchType)}
		groups = append(groups, r.buildGroup(members, 1.0, criteria))
	}
	return groups
}

// resolvePairwise scores record pairs within each block, assigning each
// record to the first group it qualifies for
func (r *Resolver) resolvePairwise(ctx context.Context, ruleSet *matching.RuleSet, records []*models.Record) ([]Group, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Resolver.resolvePairwise")
	defer span.End()

	// Bucket by blocking key, preserving input order within each bucket
	blocks := make(map[string][]*models.Record)
	for _, rec := range records {
		key := r.blocking.Key(rec)
		blocks[key] = append(blocks[key], rec)
	}

	assigned := make(map[string]bool, len(records))
	var groups []Group

	for _, rec := range records {
		if assigned[rec.ID] {
			continue
		}

		block := blocks[r.blocking.Key(rec)]

		members := []*models.Record{rec}
		var scores []float64
		criteriaSet := make(map[string]bool)

		for _, candidate := range block {
			if candidate.ID == rec.ID || assigned[candidate.ID] {
				continue
			}

			result, err := r.engine.Score(ctx, ruleSet, rec, candidate)
			if err != nil {
				return nil, err
			}
			if !result.Matched {
				continue
			}

			members = append(members, candidate)
			scores = append(scores, result.Score)
			for _, criterion := range result.MatchedCriteria {
				criteriaSet[criterion] = true
			}
			assigned[candidate.ID] = true
		}

		if len(members) < 2 {
			continue
		}
		assigned[rec.ID] = true

		confidence := mean(scores)
		criteria := make([]string, 0, len(criteriaSet))
		for criterion := range criteriaSet {
			criteria = append(criteria, criterion)
		}
		sort.Strings(criteria)

		groups = append(groups, r.buildGroup(members, confidence, criteria))
	}

	return groups, nil
}

// buildGroup mints a fresh identity token and derives the group's quality,
// action, and rollup fields from its members
func (r *Resolver) buildGroup(members []*models.Record, confidence float64, criteria []string) Group {
	primary := members[0]

	group := Group{
		IdentityToken:   uuid.New().String(),
		PrimaryRecordID: primary.ID,
		Confidence:      confidence,
		MatchKind:       matchKind(confidence),
		MatchedCriteria: criteria,
	}

	var qualitySum float64
	linkedAccounts := make(map[string]bool)
	for _, member := range members {
		group.RecordIDs = append(group.RecordIDs, member.ID)
		group.DisplayNames = append(group.DisplayNames, member.DisplayName())
		qualitySum += DataQualityScore(member)

		switch member.EntityType {
		case models.EntityTypeContact:
			if accountID := member.Field(models.FieldAccountID); accountID != "" {
				linkedAccounts[accountID] = true
			}
		case models.EntityTypeAccount:
			group.TotalRevenue += parseFloat(member.Field(models.FieldRevenue))
			group.TotalEmployees += parseInt(member.Field(models.FieldEmployees))
		}
	}

	group.DataQuality = qualitySum / float64(len(members))

	for accountID := range linkedAccounts {
		group.LinkedAccounts = append(group.LinkedAccounts, accountID)
	}
	sort.Strings(group.LinkedAccounts)

	policy := PolicyFor(primary.EntityType, primary.Field(models.FieldSegment))
	group.RecommendedAction = RecommendAction(policy, confidence, group.DataQuality)

	return group
}

// buildReport assembles run totals from the produced groups
func buildReport(ruleSet *matching.RuleSet, blocking Blocking, records []*models.Record, groups []Group) *Report {
	duplicates := 0
	grouped := 0
	for _, group := range groups {
		duplicates += group.Size() - 1
		grouped += group.Size()
	}

	report := &Report{
		Metadata: ReportMetadata{
			RunID:          uuid.New().String(),
			GeneratedAt:    time.Now().UTC(),
			EntityType:     ruleSet.EntityType,
			RuleSetName:    ruleSet.Name,
			MatchThreshold: ruleSet.MatchThreshold,
			Blocking:       blocking.Name(),
		},
		TotalRecords:     len(records),
		GroupsFound:      len(groups),
		UniqueIdentities: len(groups) + (len(records) - grouped),
		Duplicates:       duplicates,
		Groups:           groups,
	}
	if report.TotalRecords > 0 {
		report.ReductionPercent = float64(duplicates) / float64(report.TotalRecords) * 100
	}
	return report
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
