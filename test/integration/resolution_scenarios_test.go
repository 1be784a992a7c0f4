package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/export"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/resolution"
)

const testTenant = "test-tenant"

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// memStore is an in-memory RecordSource, RuleSetSource, RunStore, and
// EventSink so a full run can execute without Postgres or Kafka.
type memStore struct {
	records  []models.StagedRecord
	ruleSets map[string]*models.RuleSet
	active   map[string]*models.RuleSet

	run    *models.ResolutionRun
	status models.RunStatus
	groups []resolution.Group
	report *resolution.Report

	completedEvents int
	groupEvents     int
}

func newMemStore() *memStore {
	return &memStore{
		ruleSets: make(map[string]*models.RuleSet),
		active:   make(map[string]*models.RuleSet),
	}
}

func (m *memStore) ListByEntityType(_ context.Context, tenantID, entityType string) ([]models.StagedRecord, error) {
	var out []models.StagedRecord
	for _, rec := range m.records {
		if rec.TenantID == tenantID && rec.EntityType == entityType {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, _, id string) (*models.RuleSet, error) {
	rs, ok := m.ruleSets[id]
	if !ok {
		return nil, assert.AnError
	}
	return rs, nil
}

func (m *memStore) GetActiveByEntityType(_ context.Context, _, entityType string) (*models.RuleSet, error) {
	return m.active[entityType], nil
}

func (m *memStore) Create(_ context.Context, tenantID string, req models.CreateRunRequest) (*models.ResolutionRun, error) {
	m.run = &models.ResolutionRun{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		EntityType:     req.EntityType,
		RuleSetID:      req.RuleSetID,
		MatchThreshold: req.MatchThreshold,
		Blocking:       req.Blocking,
		Status:         models.RunStatusPending,
		StartedAt:      time.Now().UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	m.status = models.RunStatusPending
	return m.run, nil
}

func (m *memStore) MarkRunning(_ context.Context, _, _ string) error {
	m.status = models.RunStatusRunning
	return nil
}

func (m *memStore) Complete(_ context.Context, _, _ string, report *resolution.Report) error {
	m.status = models.RunStatusCompleted
	m.report = report
	return nil
}

func (m *memStore) Fail(_ context.Context, _, _ string, _ error) error {
	m.status = models.RunStatusFailed
	return nil
}

func (m *memStore) SaveGroups(_ context.Context, _, _ string, groups []resolution.Group, _ models.EntityType) error {
	m.groups = groups
	return nil
}

func (m *memStore) EmitResolutionCompleted(_ context.Context, _, _ string, _ *resolution.Report) error {
	m.completedEvents++
	return nil
}

func (m *memStore) EmitGroupCreated(_ context.Context, _, _ string, _ *resolution.Group) error {
	m.groupEvents++
	return nil
}

func stagedRecord(entityType string, payload map[string]any) models.StagedRecord {
	data, _ := json.Marshal(payload)
	return models.StagedRecord{
		ID:           uuid.New().String(),
		TenantID:     testTenant,
		EntityType:   entityType,
		SourceID:     uuid.New().String(),
		SourceSystem: "crm",
		Data:         data,
		CreatedAt:    time.Now().UTC(),
	}
}

func newService(store *memStore) *resolution.Service {
	logger := noopLogger()
	engine := matching.NewEngine(logger, matching.DefaultConfig())
	return resolution.NewService(engine, store, store, store, store, logger, resolution.DefaultServiceConfig())
}

func TestAccountResolutionScenario(t *testing.T) {
	store := newMemStore()
	store.records = []models.StagedRecord{
		stagedRecord("account", map[string]any{
			"enterprise_id": "ENT-001", "account_name": "Dunder Mifflin", "segment": "Enterprise",
			"annual_revenue": 1000000, "employee_count": 150,
		}),
		stagedRecord("account", map[string]any{
			"enterprise_id": "ENT-001", "account_name": "Dunder Mifflin Inc", "segment": "Enterprise",
			"annual_revenue": 500000.50, "employee_count": 200,
		}),
		stagedRecord("account", map[string]any{
			"enterprise_id": "ENT-002", "account_name": "Vance Refrigeration", "segment": "SMB",
		}),
		// Blank enterprise ids never form a group
		stagedRecord("account", map[string]any{"account_name": "Michael Scott Paper Co"}),
		stagedRecord("account", map[string]any{"enterprise_id": "   ", "account_name": "Schrute Farms"}),
	}

	svc := newService(store)
	run, report, err := svc.Resolve(context.Background(), testTenant, resolution.RunRequest{
		EntityType: models.EntityTypeAccount,
	})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, models.RunStatusCompleted, store.status)
	assert.Equal(t, run.ID, report.Metadata.RunID)
	assert.Equal(t, 5, report.TotalRecords)
	assert.Equal(t, 1, report.GroupsFound)
	// The ENT-001 group plus three singletons
	assert.Equal(t, 4, report.UniqueIdentities)
	assert.Equal(t, 1, report.Duplicates)

	group := report.Groups[0]
	assert.Len(t, group.RecordIDs, 2)
	assert.Equal(t, 1.0, group.Confidence)
	assert.Equal(t, models.MatchKindExact, group.MatchKind)
	assert.InDelta(t, 1500000.50, group.TotalRevenue, 0.001)
	assert.Equal(t, 350, group.TotalEmployees)

	assert.Equal(t, 1, store.completedEvents)
	assert.Equal(t, 1, store.groupEvents)
}

func TestContactResolutionScenario(t *testing.T) {
	store := newMemStore()
	store.records = []models.StagedRecord{
		stagedRecord("contact", map[string]any{
			"first_name": "Michael", "last_name": "Scott", "email": "mscott@dundermifflin.com",
			"phone": "(555) 123-4567", "account_id": "acct-1", "segment": "Business",
		}),
		stagedRecord("contact", map[string]any{
			"first_name": "Mike", "last_name": "Scott", "email": "MSCOTT@dundermifflin.com",
			"phone": "555.123.4567", "account_id": "acct-2", "segment": "Business",
		}),
		// Same name but missing phone: composite falls short of 0.95
		stagedRecord("contact", map[string]any{
			"first_name": "Michael", "last_name": "Scott", "email": "mscott@dundermifflin.com",
		}),
		stagedRecord("contact", map[string]any{
			"first_name": "Pam", "last_name": "Beesly", "email": "pbeesly@dundermifflin.com",
			"phone": "555-987-6543",
		}),
	}

	svc := newService(store)
	_, report, err := svc.Resolve(context.Background(), testTenant, resolution.RunRequest{
		EntityType: models.EntityTypeContact,
	})
	require.NoError(t, err)

	require.Equal(t, 1, report.GroupsFound)
	group := report.Groups[0]
	assert.Len(t, group.RecordIDs, 2)
	assert.GreaterOrEqual(t, group.Confidence, 0.95)
	assert.ElementsMatch(t, []string{"acct-1", "acct-2"}, group.LinkedAccounts)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 3, report.UniqueIdentities)
}

func TestStoredRuleSetScenario(t *testing.T) {
	criteria, err := json.Marshal([]models.Criterion{
		{Field: models.FieldEmail, MatchType: models.MatchTypeExact, Weight: 1.0},
	})
	require.NoError(t, err)

	store := newMemStore()
	store.active["contact"] = &models.RuleSet{
		ID:             uuid.New().String(),
		TenantID:       testTenant,
		EntityType:     "contact",
		Name:           "email-exact",
		MatchThreshold: 1.0,
		Criteria:       criteria,
		IsActive:       true,
	}
	store.records = []models.StagedRecord{
		stagedRecord("contact", map[string]any{"first_name": "Jim", "email": "jhalpert@dundermifflin.com"}),
		stagedRecord("contact", map[string]any{"first_name": "James", "email": "JHALPERT@dundermifflin.com"}),
		stagedRecord("contact", map[string]any{"first_name": "Dwight", "email": "dschrute@dundermifflin.com"}),
	}

	svc := newService(store)
	run, report, err := svc.Resolve(context.Background(), testTenant, resolution.RunRequest{
		EntityType: models.EntityTypeContact,
	})
	require.NoError(t, err)

	assert.Equal(t, store.active["contact"].ID, *run.RuleSetID)
	require.Equal(t, 1, report.GroupsFound)
	assert.Len(t, report.Groups[0].RecordIDs, 2)
}

func TestExportRoundTrip(t *testing.T) {
	store := newMemStore()
	store.records = []models.StagedRecord{
		stagedRecord("account", map[string]any{"enterprise_id": "ENT-9", "account_name": "Athlead"}),
		stagedRecord("account", map[string]any{"enterprise_id": "ENT-9", "account_name": "Athleap"}),
	}

	svc := newService(store)
	run, report, err := svc.Resolve(context.Background(), testTenant, resolution.RunRequest{
		EntityType: models.EntityTypeAccount,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.GroupsFound)

	// Persisted form, as the run repository would store it
	now := time.Now().UTC()
	storedRun := &models.ResolutionRun{
		ID:               run.ID,
		TenantID:         testTenant,
		EntityType:       "account",
		MatchThreshold:   run.MatchThreshold,
		Blocking:         run.Blocking,
		Status:           models.RunStatusCompleted,
		TotalRecords:     report.TotalRecords,
		GroupsFound:      report.GroupsFound,
		UniqueIdentities: report.UniqueIdentities,
		Duplicates:       report.Duplicates,
		CompletedAt:      &now,
		CreatedAt:        now,
	}

	var storedGroups []models.IdentityGroup
	for _, g := range report.Groups {
		ids, _ := json.Marshal(g.RecordIDs)
		crit, _ := json.Marshal(g.MatchedCriteria)
		storedGroups = append(storedGroups, models.IdentityGroup{
			ID:                uuid.New().String(),
			RunID:             run.ID,
			TenantID:          testTenant,
			IdentityToken:     g.IdentityToken,
			EntityType:        "account",
			PrimaryRecordID:   g.PrimaryRecordID,
			RecordIDs:         ids,
			Confidence:        g.Confidence,
			MatchKind:         g.MatchKind,
			MatchedCriteria:   crit,
			RecommendedAction: g.RecommendedAction,
			DataQuality:       g.DataQuality,
			CreatedAt:         now,
		})
	}

	rebuilt, err := export.FromRun(storedRun, storedGroups)
	require.NoError(t, err)
	assert.Equal(t, report.TotalRecords, rebuilt.TotalRecords)
	assert.Equal(t, report.GroupsFound, rebuilt.GroupsFound)
	require.Len(t, rebuilt.Groups, 1)
	assert.Equal(t, report.Groups[0].IdentityToken, rebuilt.Groups[0].IdentityToken)
	assert.Equal(t, report.Groups[0].RecordIDs, rebuilt.Groups[0].RecordIDs)

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, export.WriteCSV(&buf, rebuilt))

		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3) // header + 2 members
		assert.Equal(t, "PRIMARY", rows[1][1])
		assert.Equal(t, "DUPLICATE", rows[2][1])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, export.WriteJSON(&buf, rebuilt))

		var parsed resolution.Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
		assert.Equal(t, rebuilt.Metadata.RunID, parsed.Metadata.RunID)
	})
}

func TestIdentityTokensAreFreshPerRun(t *testing.T) {
	store := newMemStore()
	store.records = []models.StagedRecord{
		stagedRecord("account", map[string]any{"enterprise_id": "ENT-1", "account_name": "A"}),
		stagedRecord("account", map[string]any{"enterprise_id": "ENT-1", "account_name": "B"}),
	}

	svc := newService(store)
	_, first, err := svc.Resolve(context.Background(), testTenant, resolution.RunRequest{EntityType: models.EntityTypeAccount})
	require.NoError(t, err)
	_, second, err := svc.Resolve(context.Background(), testTenant, resolution.RunRequest{EntityType: models.EntityTypeAccount})
	require.NoError(t, err)

	require.Equal(t, 1, first.GroupsFound)
	require.Equal(t, 1, second.GroupsFound)
	assert.NotEqual(t, first.Groups[0].IdentityToken, second.Groups[0].IdentityToken)
}
