package export

import (
	"encoding/json"
	"io"

	"github.com/Ramsey-B/sage/pkg/resolution"
)

// WriteJSON renders the full report, groups included, as indented JSON
func WriteJSON(w io.Writer, report *resolution.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
