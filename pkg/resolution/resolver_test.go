package resolution

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestResolver(blocking Blocking) *Resolver {
	logger := noopLogger()
	engine := matching.NewEngine(logger, matching.DefaultConfig())
	return NewResolver(engine, logger, blocking)
}

func account(id string, fields map[string]string) *models.Record {
	return &models.Record{ID: id, EntityType: models.EntityTypeAccount, Fields: fields}
}

func contact(id string, fields map[string]string) *models.Record {
	return &models.Record{ID: id, EntityType: models.EntityTypeContact, Fields: fields}
}

func mustRuleSet(t *testing.T, entityType models.EntityType) *matching.RuleSet {
	t.Helper()
	rs, err := matching.DefaultRuleSet(entityType)
	require.NoError(t, err)
	return rs
}

func TestResolveAccounts(t *testing.T) {
	resolver := newTestResolver(nil)
	ruleSet := mustRuleSet(t, models.EntityTypeAccount)

	t.Run("groups records sharing an enterprise id", func(t *testing.T) {
		records := []*models.Record{
			account("a1", map[string]string{models.FieldEnterpriseID: "ENT-001", models.FieldAccountName: "Acme Corp"}),
			account("a2", map[string]string{models.FieldEnterpriseID: "ENT-002", models.FieldAccountName: "Globex"}),
			account("a3", map[string]string{models.FieldEnterpriseID: "ENT-001", models.FieldAccountName: "Acme Corporation"}),
		}

		report, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)

		require.Len(t, report.Groups, 1)
		group := report.Groups[0]
		assert.Equal(t, []string{"a1", "a3"}, group.RecordIDs)
		assert.Equal(t, "a1", group.PrimaryRecordID)
		assert.Equal(t, 1.0, group.Confidence)
		assert.Equal(t, models.MatchKindExact, group.MatchKind)
		assert.NotEmpty(t, group.IdentityToken)

		// One group plus the a2 singleton
		assert.Equal(t, 3, report.TotalRecords)
		assert.Equal(t, 1, report.GroupsFound)
		assert.Equal(t, 2, report.UniqueIdentities)
		assert.Equal(t, 1, report.Duplicates)
	})

	t.Run("empty enterprise ids never match each other", func(t *testing.T) {
		records := []*models.Record{
			account("a1", map[string]string{models.FieldAccountName: "Acme"}),
			account("a2", map[string]string{models.FieldAccountName: "Acme"}),
			account("a3", map[string]string{models.FieldEnterpriseID: "  ", models.FieldAccountName: "Acme"}),
		}

		report, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)

		assert.Empty(t, report.Groups)
		assert.Equal(t, 3, report.UniqueIdentities)
		assert.Equal(t, 0, report.Duplicates)
	})

	t.Run("fresh tokens per run", func(t *testing.T) {
		records := []*models.Record{
			account("a1", map[string]string{models.FieldEnterpriseID: "ENT-001"}),
			account("a2", map[string]string{models.FieldEnterpriseID: "ENT-001"}),
		}

		first, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)
		second, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)

		require.Len(t, first.Groups, 1)
		require.Len(t, second.Groups, 1)
		assert.NotEqual(t, first.Groups[0].IdentityToken, second.Groups[0].IdentityToken)
	})

	t.Run("account rollups", func(t *testing.T) {
		records := []*models.Record{
			account("a1", map[string]string{
				models.FieldEnterpriseID: "ENT-001",
				models.FieldSegment:      "Enterprise",
				models.FieldRevenue:      "1000000",
				models.FieldEmployees:    "250",
			}),
			account("a2", map[string]string{
				models.FieldEnterpriseID: "ENT-001",
				models.FieldSegment:      "Enterprise",
				models.FieldRevenue:      "500000.50",
				models.FieldEmployees:    "100",
			}),
		}

		report, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)

		require.Len(t, report.Groups, 1)
		group := report.Groups[0]
		assert.InDelta(t, 1500000.50, group.TotalRevenue, 0.001)
		assert.Equal(t, 350, group.TotalEmployees)
	})
}

func TestResolveContacts(t *testing.T) {
	resolver := newTestResolver(nil)
	ruleSet := mustRuleSet(t, models.EntityTypeContact)

	t.Run("nickname variant with matching identifiers groups", func(t *testing.T) {
		records := []*models.Record{
			contact("c1", map[string]string{
				models.FieldFirstName: "Michael",
				models.FieldLastName:  "Scott",
				models.FieldEmail:     "mscott@example.com",
				models.FieldPhone:     "(555) 123-4567",
				models.FieldAccountID: "acct-1",
			}),
			contact("c2", map[string]string{
				models.FieldFirstName: "Mike",
				models.FieldLastName:  "Scott",
				models.FieldEmail:     "MSCOTT@EXAMPLE.COM",
				models.FieldPhone:     "555.123.4567",
				models.FieldAccountID: "acct-2",
			}),
			contact("c3", map[string]string{
				models.FieldFirstName: "Dwight",
				models.FieldLastName:  "Schrute",
				models.FieldEmail:     "dschrute@example.com",
				models.FieldPhone:     "555-999-0000",
			}),
		}

		report, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)

		require.Len(t, report.Groups, 1)
		group := report.Groups[0]
		assert.Equal(t, []string{"c1", "c2"}, group.RecordIDs)
		assert.GreaterOrEqual(t, group.Confidence, 0.95)
		assert.Equal(t, []string{"acct-1", "acct-2"}, group.LinkedAccounts)
		assert.NotEmpty(t, group.MatchedCriteria)

		assert.Equal(t, 2, report.UniqueIdentities)
		assert.Equal(t, 1, report.Duplicates)
	})

	t.Run("missing phone keeps weight and blocks the match", func(t *testing.T) {
		records := []*models.Record{
			contact("c1", map[string]string{
				models.FieldFirstName: "Pam",
				models.FieldLastName:  "Beesly",
				models.FieldEmail:     "pam@example.com",
				models.FieldPhone:     "555-111-2222",
			}),
			contact("c2", map[string]string{
				models.FieldFirstName: "Pam",
				models.FieldLastName:  "Beesly",
				models.FieldEmail:     "pam@example.com",
			}),
		}

		report, err := resolver.Resolve(context.Background(), ruleSet, records)
		require.NoError(t, err)
		assert.Empty(t, report.Groups)
	})

	t.Run("first match wins in input order", func(t *testing.T) {
		exact := func(id string) *models.Record {
			return contact(id, map[string]string{
				models.FieldFirstName: "Jim",
				models.FieldLastName:  "Halpert",
				models.FieldEmail:     "jim@example.com",
				models.FieldPhone:     "555-000-1111",
			})
		}

		report, err := resolver.Resolve(context.Background(), ruleSet, []*models.Record{
			exact("c1"), exact("c2"), exact("c3"),
		})
		require.NoError(t, err)

		require.Len(t, report.Groups, 1)
		assert.Equal(t, []string{"c1", "c2", "c3"}, report.Groups[0].RecordIDs)
		assert.Equal(t, "c1", report.Groups[0].PrimaryRecordID)
	})

	t.Run("entity type mismatch fails the run", func(t *testing.T) {
		records := []*models.Record{
			contact("c1", nil),
			account("a1", map[string]string{models.FieldEnterpriseID: "ENT-001"}),
		}

		_, err := resolver.Resolve(context.Background(), ruleSet, records)
		assert.Error(t, err)
	})

	t.Run("invalid rule set fails before scoring", func(t *testing.T) {
		bad := &matching.RuleSet{
			EntityType:     models.EntityTypeContact,
			Name:           "bad",
			MatchThreshold: 2.0,
		}
		_, err := resolver.Resolve(context.Background(), bad, nil)
		assert.Error(t, err)
	})

	t.Run("empty record set", func(t *testing.T) {
		report, err := resolver.Resolve(context.Background(), ruleSet, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.TotalRecords)
		assert.Equal(t, 0, report.UniqueIdentities)
		assert.Empty(t, report.Groups)
	})
}

func TestResolveWithBlocking(t *testing.T) {
	// Email-only rule so the blocking field is not part of the match itself.
	// Threshold below 1.0 keeps this on the pairwise path.
	ruleSet := &matching.RuleSet{
		EntityType:     models.EntityTypeContact,
		Name:           "email-only",
		MatchThreshold: 0.95,
		Criteria: []models.Criterion{
			{Field: models.FieldEmail, MatchType: models.MatchTypeExact, Weight: 1.0, Normalizer: strPtr("nemail")},
		},
	}

	duplicate := func(id, lastName string) *models.Record {
		return contact(id, map[string]string{
			models.FieldLastName: lastName,
			models.FieldEmail:    "angela@example.com",
		})
	}

	t.Run("records in different blocks are never compared", func(t *testing.T) {
		resolver := newTestResolver(LastNamePrefixBlocking{Length: 2})

		// Same email, but a dirty last name splits the pair across buckets
		report, err := resolver.Resolve(context.Background(), ruleSet, []*models.Record{
			duplicate("c1", "Martin"),
			duplicate("c2", "Nartin"),
		})
		require.NoError(t, err)
		assert.Empty(t, report.Groups)
	})

	t.Run("same block still groups", func(t *testing.T) {
		resolver := newTestResolver(LastNamePrefixBlocking{Length: 2})

		report, err := resolver.Resolve(context.Background(), ruleSet, []*models.Record{
			duplicate("c1", "Martin"),
			duplicate("c2", "Martin"),
		})
		require.NoError(t, err)
		require.Len(t, report.Groups, 1)
		assert.Equal(t, []string{"c1", "c2"}, report.Groups[0].RecordIDs)
	})
}

func strPtr(s string) *string {
	return &s
}

func TestResolveExactKeyCaseFold(t *testing.T) {
	resolver := newTestResolver(nil)

	// Single exact criterion at threshold 1.0 takes the partition path; a
	// case-insensitive criterion must fold keys the same way pairwise
	// scoring folds values.
	ruleSet := &matching.RuleSet{
		EntityType:     models.EntityTypeContact,
		Name:           "email-exact",
		MatchThreshold: 1.0,
		Criteria: []models.Criterion{
			{Field: models.FieldEmail, MatchType: models.MatchTypeExact, Weight: 1.0},
		},
	}

	records := []*models.Record{
		contact("c1", map[string]string{models.FieldEmail: "pam@example.com"}),
		contact("c2", map[string]string{models.FieldEmail: "PAM@example.com"}),
		contact("c3", map[string]string{models.FieldEmail: " pam@example.com "}),
		contact("c4", map[string]string{models.FieldEmail: "angela@example.com"}),
	}

	report, err := resolver.Resolve(context.Background(), ruleSet, records)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1)
	assert.Equal(t, []string{"c1", "c2", "c3"}, report.Groups[0].RecordIDs)
	assert.Equal(t, 2, report.UniqueIdentities)
}

func TestBuildReportTotals(t *testing.T) {
	resolver := newTestResolver(nil)
	ruleSet := mustRuleSet(t, models.EntityTypeAccount)

	records := []*models.Record{
		account("a1", map[string]string{models.FieldEnterpriseID: "ENT-001"}),
		account("a2", map[string]string{models.FieldEnterpriseID: "ENT-001"}),
		account("a3", map[string]string{models.FieldEnterpriseID: "ENT-002"}),
		account("a4", map[string]string{models.FieldEnterpriseID: "ENT-002"}),
		account("a5", map[string]string{models.FieldEnterpriseID: "ENT-002"}),
		account("a6", map[string]string{models.FieldEnterpriseID: "ENT-003"}),
	}

	report, err := resolver.Resolve(context.Background(), ruleSet, records)
	require.NoError(t, err)

	assert.Equal(t, 6, report.TotalRecords)
	assert.Equal(t, 2, report.GroupsFound)
	// Two groups plus the a6 singleton
	assert.Equal(t, 3, report.UniqueIdentities)
	assert.Equal(t, 3, report.Duplicates)
	assert.InDelta(t, 50.0, report.ReductionPercent, 0.001)
}
