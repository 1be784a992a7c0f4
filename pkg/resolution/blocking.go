package resolution

import (
	"fmt"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
)

// Blocking partitions records into candidate buckets before pairwise
// scoring. Records in different buckets are never compared, so a blocking
// strategy trades recall for a smaller comparison space. Scoring semantics
// are unchanged; only candidate generation is.
type Blocking interface {
	Name() string
	Key(rec *models.Record) string
}

// Blocking strategy names accepted in configuration and run requests
const (
	BlockingNone           = "none"
	BlockingLastNamePrefix = "last_name_prefix"
	BlockingPhonePrefix    = "phone_prefix"
)

// ParseBlocking resolves a configured strategy name
func ParseBlocking(name string) (Blocking, error) {
	switch name {
	case "", BlockingNone:
		return NoBlocking{}, nil
	case BlockingLastNamePrefix:
		return LastNamePrefixBlocking{Length: 2}, nil
	case BlockingPhonePrefix:
		return PhonePrefixBlocking{Length: 3}, nil
	default:
		return nil, fmt.Errorf("unknown blocking strategy %q", name)
	}
}

// NoBlocking puts every record in a single bucket (full pairwise scoring)
type NoBlocking struct{}

func (NoBlocking) Name() string { return BlockingNone }

func (NoBlocking) Key(_ *models.Record) string { return "" }

// LastNamePrefixBlocking buckets records by the first Length characters of
// the normalized last name. Records without a last name share one bucket.
type LastNamePrefixBlocking struct {
	Length int
}

func (b LastNamePrefixBlocking) Name() string { return BlockingLastNamePrefix }

func (b LastNamePrefixBlocking) Key(rec *models.Record) string {
	name := normalizers.NormalizeName(rec.Field(models.FieldLastName))
	return prefix(name, b.Length)
}

// PhonePrefixBlocking buckets records by the leading digits of the phone
// number. Records without a phone share one bucket.
type PhonePrefixBlocking struct {
	Length int
}

func (b PhonePrefixBlocking) Name() string { return BlockingPhonePrefix }

func (b PhonePrefixBlocking) Key(rec *models.Record) string {
	digits := normalizers.DigitsOnly(rec.Field(models.FieldPhone))
	return prefix(digits, b.Length)
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
