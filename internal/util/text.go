package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»“”‘’]`)
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9X\-/\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// NormalizeName folds a product name or line description into the form used
// for catalog name lookups.
func NormalizeName(input string) string {
	s := strings.ToUpper(input)
	repl := strings.NewReplacer("×", "X", "*", "X", "&", " AND ", "_", " ")
	s = repl.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return strings.TrimRight(s, ".-/ ")
}

// NormalizeCode is the case-insensitive key for item codes.
func NormalizeCode(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	return reSpaces.ReplaceAllString(s, "")
}

func Tokenize(input string) []string {
	norm := NormalizeName(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
