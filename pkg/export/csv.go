// Package export renders resolution reports for download
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Ramsey-B/sage/pkg/resolution"
)

var csvHeader = []string{
	"identity_token",
	"role",
	"record_id",
	"display_name",
	"confidence",
	"match_kind",
	"matched_criteria",
	"recommended_action",
	"data_quality",
}

// WriteCSV renders a report as one row per grouped record. The first member
// of each group is marked PRIMARY, the rest DUPLICATE. Singletons are not
// part of any group and do not appear.
func WriteCSV(w io.Writer, report *resolution.Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, group := range report.Groups {
		criteria := strings.Join(group.MatchedCriteria, "; ")
		for i, recordID := range group.RecordIDs {
			role := "DUPLICATE"
			if i == 0 {
				role = "PRIMARY"
			}

			displayName := ""
			if i < len(group.DisplayNames) {
				displayName = group.DisplayNames[i]
			}

			row := []string{
				group.IdentityToken,
				role,
				recordID,
				displayName,
				fmt.Sprintf("%.4f", group.Confidence),
				group.MatchKind,
				criteria,
				group.RecommendedAction,
				fmt.Sprintf("%.2f", group.DataQuality),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
