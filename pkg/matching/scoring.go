package matching

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/sage/pkg/normalizers"
)

// Scorer provides string comparison algorithms used by match criteria
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// nameVariations maps canonical first names to common nicknames. Two values
// that hit the table score 0.9 (canonical vs nickname) or 0.85 (two
// nicknames of the same canonical name).
var nameVariations = map[string][]string{
	"john":        {"jon", "johnny", "johnathan", "jonathan"},
	"michael":     {"mike", "micheal", "mick", "mickey"},
	"david":       {"dave", "davey", "davy"},
	"robert":      {"rob", "bob", "bobby", "robbie"},
	"james":       {"jim", "jimmy", "jamie"},
	"william":     {"bill", "will", "billy", "willy"},
	"richard":     {"rick", "rich", "dick", "ricky"},
	"charles":     {"chuck", "charlie", "charley"},
	"thomas":      {"tom", "tommy", "thom"},
	"christopher": {"chris", "cristopher", "kristopher"},
	"daniel":      {"dan", "danny", "dane"},
	"matthew":     {"matt", "matty", "mathew"},
	"anthony":     {"tony", "antony", "anton"},
	"mark":        {"marc", "marcus", "marco"},
	"donald":      {"don", "donny", "donal"},
	"steven":      {"steve", "stevie", "stephen"},
	"andrew":      {"andy", "andre", "drew"},
	"joshua":      {"josh", "josiah"},
	"kenneth":     {"ken", "kenny", "kent"},
	"mary":        {"marie", "maria"},
	"patricia":    {"pat", "patty", "tricia"},
	"jennifer":    {"jen", "jenny", "jenn"},
	"elizabeth":   {"liz", "beth", "betty", "lizzie"},
	"barbara":     {"barb", "barbie"},
	"susan":       {"sue", "suzie", "susie"},
	"jessica":     {"jess", "jessie"},
	"sarah":       {"sara", "sally"},
	"karen":       {"karin", "karyn"},
	"lisa":        {"liz", "lizzie"},
	"betty":       {"beth", "betsy"},
	"helen":       {"helena", "lena"},
	"sandra":      {"sandy", "sandi"},
	"carol":       {"caroline", "carrie"},
	"sharon":      {"shari", "sherry"},
	"laura":       {"laurie", "lora"},
	"kimberly":    {"kim", "kimmy"},
	"deborah":     {"deb", "debbie"},
	"dorothy":     {"dot", "dottie"},
}

// businessAbbreviations collapse common legal/address words before
// comparing account names
var businessAbbreviations = map[string]string{
	"corporation":  "corp",
	"incorporated": "inc",
	"limited":      "ltd",
	"company":      "co",
	"and":          "&",
	"street":       "st",
	"avenue":       "ave",
	"boulevard":    "blvd",
	"drive":        "dr",
	"road":         "rd",
	"suite":        "ste",
}

// ExactMatch returns 1.0 when both values are non-empty and equal.
// Two empty values never match.
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// DigitExact compares only the digit characters of both values. Values
// with no digits at all never match.
func (s *Scorer) DigitExact(a, b string) float64 {
	da := normalizers.DigitsOnly(a)
	db := normalizers.DigitsOnly(b)
	if da == "" || db == "" {
		return 0.0
	}
	if da == db {
		return 1.0
	}
	return 0.0
}

// Ratio is the normalized Levenshtein similarity: 1 - distance/maxLen
func (s *Scorer) Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// PartialRatio is the best Ratio of the shorter string against every
// equal-length window of the longer string
func (s *Scorer) PartialRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == len(longer) {
		return s.Ratio(string(shorter), string(longer))
	}

	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		window := string(longer[i : i+len(shorter)])
		if score := s.Ratio(string(shorter), window); score > best {
			best = score
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the two values with their tokens sorted,
// making the score order-insensitive
func (s *Scorer) TokenSortRatio(a, b string) float64 {
	return s.Ratio(sortTokens(a), sortTokens(b))
}

// TokenSetRatio compares the two values on their shared and distinct token
// sets, ignoring duplicates and order
func (s *Scorer) TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	var shared, onlyA, onlyB []string
	for tok := range tokensA {
		if tokensB[tok] {
			shared = append(shared, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tokensB {
		if !tokensA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(shared, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := s.Ratio(base, combinedA)
	if score := s.Ratio(base, combinedB); score > best {
		best = score
	}
	if score := s.Ratio(combinedA, combinedB); score > best {
		best = score
	}
	return best
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (exact match).
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == "" && b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// FirstNameSimilarity scores two first names. Known nickname pairs score
// 0.9, two nicknames of the same canonical name score 0.85, a single-letter
// initial matching the other name's first letter scores 0.9, otherwise the
// best of Ratio and PartialRatio.
func (s *Scorer) FirstNameSimilarity(a, b string) float64 {
	na := normalizers.NormalizeName(a)
	nb := normalizers.NormalizeName(b)

	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	for base, variants := range nameVariations {
		if na == base && contains(variants, nb) {
			return 0.9
		}
		if nb == base && contains(variants, na) {
			return 0.9
		}
		if contains(variants, na) && contains(variants, nb) {
			return 0.85
		}
	}

	// Initial vs full name (J vs John)
	if (len(na) == 1 && strings.HasPrefix(nb, na)) || (len(nb) == 1 && strings.HasPrefix(na, nb)) {
		return 0.9
	}

	return max(s.Ratio(na, nb), s.PartialRatio(na, nb))
}

// NameSimilarity scores two multi-word names (account names, full names).
// Returns the best of the individual measures and their weighted blend,
// with 0.95 reserved for names equal only after abbreviation collapsing.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	na := normalizers.NormalizeName(a)
	nb := normalizers.NormalizeName(b)

	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	na = applyAbbreviations(na, businessAbbreviations)
	nb = applyAbbreviations(nb, businessAbbreviations)
	if na == nb {
		return 0.95
	}

	ratio := s.Ratio(na, nb)
	partial := s.PartialRatio(na, nb)
	tokenSort := s.TokenSortRatio(na, nb)
	tokenSet := s.TokenSetRatio(na, nb)
	blend := ratio*0.2 + partial*0.2 + tokenSort*0.3 + tokenSet*0.3

	return max(ratio, partial, tokenSort, tokenSet, blend)
}

// WeightedScore calculates a weighted average of scores
func (s *Scorer) WeightedScore(scores map[string]float64, weights map[string]float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	var totalWeight float64
	var weightedSum float64

	for field, score := range scores {
		weight := 1.0 // Default weight
		if w, ok := weights[field]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return weightedSum / totalWeight
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func applyAbbreviations(s string, abbreviations map[string]string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if abbr, ok := abbreviations[word]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
