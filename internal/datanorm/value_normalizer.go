package datanorm

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unknown replaces missing categorical values.
const Unknown = "Unknown"

var defaultMissingTokens = []string{"na", "n/a", "nan", "null", "none"}

// valueNormalizer interprets raw cells. It is not safe for concurrent use
// because the title caser keeps state.
type valueNormalizer struct {
	missing map[string]bool
	title   cases.Caser
}

func newValueNormalizer(extraMissing []string) *valueNormalizer {
	n := &valueNormalizer{
		missing: make(map[string]bool),
		// NoLower keeps acronyms such as "COD" and "UPI" intact.
		title: cases.Title(language.English, cases.NoLower),
	}
	for _, tokens := range [][]string{defaultMissingTokens, extraMissing} {
		for _, tok := range tokens {
			n.missing[strings.ToLower(strings.TrimSpace(tok))] = true
		}
	}
	return n
}

func (n *valueNormalizer) isMissing(raw string) bool {
	v := strings.TrimSpace(raw)
	return v == "" || n.missing[strings.ToLower(v)]
}

// number parses a numeric cell. Thousands separators are tolerated;
// unparseable and non-finite values count as missing.
func (n *valueNormalizer) number(raw string) (float64, bool) {
	if n.isMissing(raw) {
		return 0, false
	}
	v := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// churn parses the churn flag as 0 or 1.
func (n *valueNormalizer) churn(raw string) (float64, bool) {
	if n.isMissing(raw) {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "churned", "t":
		return 1, true
	case "false", "no", "n", "retained", "active", "f":
		return 0, true
	}
	if f, ok := n.number(raw); ok {
		if f > 0 {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// category collapses whitespace and title-cases a categorical cell.
func (n *valueNormalizer) category(raw string) string {
	if n.isMissing(raw) {
		return Unknown
	}
	return n.title.String(strings.Join(strings.Fields(raw), " "))
}
