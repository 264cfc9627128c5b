package util

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var reThousandComma = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)

// ParseDecimal converts a decoded JSON value into a decimal. Nil, empty strings
// and unparseable values yield nil so callers can tell "absent" from zero.
func ParseDecimal(v any) *decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return &t
	case float64:
		d := decimal.NewFromFloat(t)
		return &d
	case int:
		d := decimal.NewFromInt(int64(t))
		return &d
	case int64:
		d := decimal.NewFromInt(t)
		return &d
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil
		}
		return &d
	case string:
		norm := normalizeNumericToken(t)
		if norm == "" {
			return nil
		}
		d, err := decimal.NewFromString(norm)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

// DecimalOrZero dereferences d, treating nil as zero.
func DecimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	compact = strings.ReplaceAll(compact, "\u00A0", "")
	if reThousandComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
