package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractString(t *testing.T) {
	e := New()

	payload := map[string]any{
		"first_name": "Michael",
		"address": map[string]any{
			"city": "Denver",
		},
		"emails":         []any{"mike@example.com", "m.scott@example.com"},
		"annual_revenue": float64(2500000),
		"active":         true,
	}

	tests := []struct {
		name string
		path string
		want *string
	}{
		{"top level key", "first_name", strPtr("Michael")},
		{"nested key", "address.city", strPtr("Denver")},
		{"array index", "emails[0]", strPtr("mike@example.com")},
		{"second array index", "emails[1]", strPtr("m.scott@example.com")},
		{"number renders without exponent", "annual_revenue", strPtr("2500000")},
		{"bool", "active", strPtr("true")},
		{"missing key", "last_name", nil},
		{"missing nested key", "address.zip", nil},
		{"index out of range", "emails[5]", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractString(payload, tt.path)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}

	t.Run("key access on scalar errors", func(t *testing.T) {
		_, err := e.ExtractString(payload, "first_name.length")
		assert.Error(t, err)
	})
}

func TestFromJSON(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		data, err := FromJSON(json.RawMessage(`{"email": "jane@example.com"}`))
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", data["email"])
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := FromJSON(json.RawMessage(`[1, 2, 3]`))
		assert.Error(t, err)
	})
}

func strPtr(s string) *string {
	return &s
}
