package export

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/resolution"
)

// FromRun rebuilds a report from a persisted run and its identity groups so
// completed runs can be exported later. Display names are not persisted and
// are left blank.
func FromRun(run *models.ResolutionRun, groups []models.IdentityGroup) (*resolution.Report, error) {
	generatedAt := run.CreatedAt
	if run.CompletedAt != nil {
		generatedAt = *run.CompletedAt
	}

	report := &resolution.Report{
		Metadata: resolution.ReportMetadata{
			RunID:          run.ID,
			GeneratedAt:    generatedAt,
			EntityType:     models.EntityType(run.EntityType),
			MatchThreshold: run.MatchThreshold,
			Blocking:       run.Blocking,
		},
		TotalRecords:     run.TotalRecords,
		GroupsFound:      run.GroupsFound,
		UniqueIdentities: run.UniqueIdentities,
		Duplicates:       run.Duplicates,
		Groups:           make([]resolution.Group, 0, len(groups)),
	}
	if run.TotalRecords > 0 {
		report.ReductionPercent = float64(run.Duplicates) / float64(run.TotalRecords) * 100
	}

	for i := range groups {
		stored := &groups[i]

		var recordIDs []string
		if len(stored.RecordIDs) > 0 {
			if err := json.Unmarshal(stored.RecordIDs, &recordIDs); err != nil {
				return nil, err
			}
		}
		var criteria []string
		if len(stored.MatchedCriteria) > 0 {
			if err := json.Unmarshal(stored.MatchedCriteria, &criteria); err != nil {
				return nil, err
			}
		}

		report.Groups = append(report.Groups, resolution.Group{
			IdentityToken:     stored.IdentityToken,
			PrimaryRecordID:   stored.PrimaryRecordID,
			RecordIDs:         recordIDs,
			Confidence:        stored.Confidence,
			MatchKind:         stored.MatchKind,
			MatchedCriteria:   criteria,
			RecommendedAction: stored.RecommendedAction,
			DataQuality:       stored.DataQuality,
		})
	}

	if report.Metadata.GeneratedAt.IsZero() {
		report.Metadata.GeneratedAt = time.Now().UTC()
	}

	return report, nil
}
