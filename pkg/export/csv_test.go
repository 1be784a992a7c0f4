package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/resolution"
)

func sampleReport() *resolution.Report {
	return &resolution.Report{
		Metadata: resolution.ReportMetadata{
			RunID:          "run-1",
			GeneratedAt:    time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			EntityType:     models.EntityTypeContact,
			RuleSetName:    "contact-composite",
			MatchThreshold: 0.95,
			Blocking:       "none",
		},
		TotalRecords:     4,
		GroupsFound:      1,
		UniqueIdentities: 3,
		Duplicates:       1,
		ReductionPercent: 25.0,
		Groups: []resolution.Group{
			{
				IdentityToken:     "token-1",
				PrimaryRecordID:   "c1",
				RecordIDs:         []string{"c1", "c2"},
				DisplayNames:      []string{"Michael Scott", "Mike Scott"},
				Confidence:        0.9789,
				MatchKind:         models.MatchKindExact,
				MatchedCriteria:   []string{"email (exact)", "last_name (exact)"},
				RecommendedAction: models.ActionAutoMerge,
				DataQuality:       0.8,
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])

	primary := rows[1]
	assert.Equal(t, "token-1", primary[0])
	assert.Equal(t, "PRIMARY", primary[1])
	assert.Equal(t, "c1", primary[2])
	assert.Equal(t, "Michael Scott", primary[3])
	assert.Equal(t, "0.9789", primary[4])
	assert.Equal(t, models.MatchKindExact, primary[5])
	assert.Equal(t, "email (exact); last_name (exact)", primary[6])
	assert.Equal(t, models.ActionAutoMerge, primary[7])

	duplicate := rows[2]
	assert.Equal(t, "DUPLICATE", duplicate[1])
	assert.Equal(t, "c2", duplicate[2])
}

func TestWriteCSVEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &resolution.Report{}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, csvHeader, rows[0])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var decoded resolution.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.Metadata.RunID)
	require.Len(t, decoded.Groups, 1)
	assert.Equal(t, []string{"c1", "c2"}, decoded.Groups[0].RecordIDs)
}
