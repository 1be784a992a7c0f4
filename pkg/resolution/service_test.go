package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
)

type fakeRecordSource struct {
	records []models.StagedRecord
	err     error
}

func (f *fakeRecordSource) ListByEntityType(_ context.Context, _, entityType string) ([]models.StagedRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.StagedRecord
	for _, rec := range f.records {
		if rec.EntityType == entityType {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeRuleSetSource struct {
	byID   map[string]*models.RuleSet
	active map[string]*models.RuleSet
}

func (f *fakeRuleSetSource) GetByID(_ context.Context, _, id string) (*models.RuleSet, error) {
	if rs, ok := f.byID[id]; ok {
		return rs, nil
	}
	return nil, errors.New("rule set not found")
}

func (f *fakeRuleSetSource) GetActiveByEntityType(_ context.Context, _, entityType string) (*models.RuleSet, error) {
	return f.active[entityType], nil
}

type fakeRunStore struct {
	run         *models.ResolutionRun
	status      models.RunStatus
	savedGroups []Group
	report      *Report
	failCause   error
}

func (f *fakeRunStore) Create(_ context.Context, tenantID string, req models.CreateRunRequest) (*models.ResolutionRun, error) {
	f.run = &models.ResolutionRun{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		EntityType:     req.EntityType,
		RuleSetID:      req.RuleSetID,
		MatchThreshold: req.MatchThreshold,
		Blocking:       req.Blocking,
		Status:         models.RunStatusPending,
	}
	f.status = models.RunStatusPending
	return f.run, nil
}

func (f *fakeRunStore) MarkRunning(_ context.Context, _, _ string) error {
	f.status = models.RunStatusRunning
	return nil
}

func (f *fakeRunStore) Complete(_ context.Context, _, _ string, report *Report) error {
	f.status = models.RunStatusCompleted
	f.report = report
	return nil
}

func (f *fakeRunStore) Fail(_ context.Context, _, _ string, cause error) error {
	f.status = models.RunStatusFailed
	f.failCause = cause
	return nil
}

func (f *fakeRunStore) SaveGroups(_ context.Context, _, _ string, groups []Group, _ models.EntityType) error {
	f.savedGroups = groups
	return nil
}

type fakeEventSink struct {
	completed int
	groups    int
}

func (f *fakeEventSink) EmitResolutionCompleted(_ context.Context, _, _ string, _ *Report) error {
	f.completed++
	return nil
}

func (f *fakeEventSink) EmitGroupCreated(_ context.Context, _, _ string, _ *Group) error {
	f.groups++
	return nil
}

func stagedContact(id string, payload string) models.StagedRecord {
	return models.StagedRecord{
		ID:         id,
		EntityType: string(models.EntityTypeContact),
		Data:       json.RawMessage(payload),
	}
}

func newTestService(records *fakeRecordSource, ruleSets *fakeRuleSetSource, runs *fakeRunStore, events *fakeEventSink) *Service {
	logger := noopLogger()
	engine := matching.NewEngine(logger, matching.DefaultConfig())
	// A nil *fakeEventSink boxed into the interface is non-nil; pass the
	// untyped nil the disabled-events wiring actually uses.
	var sink EventSink
	if events != nil {
		sink = events
	}
	return NewService(engine, records, ruleSets, runs, sink, logger, DefaultServiceConfig())
}

func TestServiceResolve(t *testing.T) {
	t.Run("full run with default rule set", func(t *testing.T) {
		records := &fakeRecordSource{records: []models.StagedRecord{
			stagedContact("c1", `{"first_name": "Michael", "last_name": "Scott", "email": "mscott@example.com", "phone": "555-123-4567"}`),
			stagedContact("c2", `{"first_name": "Mike", "last_name": "Scott", "email": "MSCOTT@example.com", "phone": "(555) 123-4567"}`),
			stagedContact("c3", `{"first_name": "Dwight", "last_name": "Schrute", "email": "d@example.com", "phone": "555-999-0000"}`),
		}}
		ruleSets := &fakeRuleSetSource{}
		runs := &fakeRunStore{}
		events := &fakeEventSink{}

		svc := newTestService(records, ruleSets, runs, events)
		run, report, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType: models.EntityTypeContact,
		})
		require.NoError(t, err)

		assert.Equal(t, models.RunStatusCompleted, runs.status)
		assert.Equal(t, "tenant-1", run.TenantID)
		assert.Nil(t, run.RuleSetID)
		assert.Equal(t, 0.95, run.MatchThreshold)

		require.NotNil(t, report)
		assert.Equal(t, run.ID, report.Metadata.RunID)
		assert.Equal(t, 3, report.TotalRecords)
		require.Len(t, report.Groups, 1)
		assert.Equal(t, []string{"c1", "c2"}, report.Groups[0].RecordIDs)

		assert.Len(t, runs.savedGroups, 1)
		assert.Equal(t, 1, events.completed)
		assert.Equal(t, 1, events.groups)
	})

	t.Run("stored rule set by id", func(t *testing.T) {
		criteria, err := json.Marshal([]models.Criterion{
			{Field: models.FieldEmail, MatchType: models.MatchTypeExact, Weight: 1.0},
		})
		require.NoError(t, err)

		stored := &models.RuleSet{
			ID:             "rs-1",
			EntityType:     string(models.EntityTypeContact),
			Name:           "email-exact",
			MatchThreshold: 1.0,
			Criteria:       criteria,
		}

		records := &fakeRecordSource{records: []models.StagedRecord{
			stagedContact("c1", `{"email": "pam@example.com"}`),
			stagedContact("c2", `{"email": "PAM@example.com"}`),
		}}
		ruleSets := &fakeRuleSetSource{byID: map[string]*models.RuleSet{"rs-1": stored}}
		runs := &fakeRunStore{}

		svc := newTestService(records, ruleSets, runs, nil)
		id := "rs-1"
		run, report, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType: models.EntityTypeContact,
			RuleSetID:  &id,
		})
		require.NoError(t, err)

		require.NotNil(t, run.RuleSetID)
		assert.Equal(t, "rs-1", *run.RuleSetID)
		require.Len(t, report.Groups, 1)
		assert.Equal(t, []string{"c1", "c2"}, report.Groups[0].RecordIDs)
	})

	t.Run("run completes without an event sink", func(t *testing.T) {
		records := &fakeRecordSource{records: []models.StagedRecord{
			stagedContact("c1", `{"email": "pam@example.com"}`),
			stagedContact("c2", `{"email": "pam@example.com"}`),
		}}
		runs := &fakeRunStore{}

		svc := newTestService(records, &fakeRuleSetSource{}, runs, nil)
		_, report, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType: models.EntityTypeContact,
		})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, runs.status)
		require.NotNil(t, report)
	})

	t.Run("threshold override applies", func(t *testing.T) {
		records := &fakeRecordSource{records: []models.StagedRecord{
			stagedContact("c1", `{"first_name": "Pam", "last_name": "Beesly", "email": "pam@example.com"}`),
			stagedContact("c2", `{"first_name": "Pam", "last_name": "Beesly", "email": "pam@example.com"}`),
		}}
		runs := &fakeRunStore{}

		svc := newTestService(records, &fakeRuleSetSource{}, runs, nil)
		threshold := 0.7
		_, report, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType:     models.EntityTypeContact,
			MatchThreshold: &threshold,
		})
		require.NoError(t, err)

		// Missing phones hold the composite at 2.8/3.8; the lowered
		// threshold lets the pair group anyway.
		require.Len(t, report.Groups, 1)
	})

	t.Run("unknown blocking strategy fails before a run is created", func(t *testing.T) {
		runs := &fakeRunStore{}
		svc := newTestService(&fakeRecordSource{}, &fakeRuleSetSource{}, runs, nil)

		_, _, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType: models.EntityTypeContact,
			Blocking:   "soundex",
		})
		assert.Error(t, err)
		assert.Nil(t, runs.run)
	})

	t.Run("record load failure marks the run failed", func(t *testing.T) {
		records := &fakeRecordSource{err: errors.New("db down")}
		runs := &fakeRunStore{}

		svc := newTestService(records, &fakeRuleSetSource{}, runs, nil)
		_, _, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType: models.EntityTypeContact,
		})
		require.Error(t, err)
		assert.Equal(t, models.RunStatusFailed, runs.status)
		assert.ErrorContains(t, runs.failCause, "db down")
	})

	t.Run("malformed payload degrades to empty record", func(t *testing.T) {
		records := &fakeRecordSource{records: []models.StagedRecord{
			stagedContact("c1", `{"email": "jim@example.com"}`),
			stagedContact("c2", `not json`),
		}}
		runs := &fakeRunStore{}

		svc := newTestService(records, &fakeRuleSetSource{}, runs, nil)
		_, report, err := svc.Resolve(context.Background(), "tenant-1", RunRequest{
			EntityType: models.EntityTypeContact,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, report.TotalRecords)
		assert.Empty(t, report.Groups)
	})
}
