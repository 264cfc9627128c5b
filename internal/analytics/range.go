package analytics

import (
	"strings"
	"time"
)

type Preset string

const (
	PresetLast30    Preset = "last30"
	PresetThisMonth Preset = "thisMonth"
	PresetYTD       Preset = "ytd"
	PresetCustom    Preset = "custom"
)

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

type Basis string

const (
	BasisAccrual Basis = "accrual"
	BasisCash    Basis = "cash"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Filters is the caller-facing request. Every field is optional.
type Filters struct {
	Preset           string `json:"preset" form:"preset"`
	Start            string `json:"start,omitempty" form:"start"`
	End              string `json:"end,omitempty" form:"end"`
	Granularity      string `json:"granularity,omitempty" form:"granularity"`
	IncludePurchases bool   `json:"includePurchases,omitempty" form:"includePurchases"`
	Basis            string `json:"basis,omitempty" form:"basis"`
}

// Range is a resolved analysis window. Start and End are UTC midnights and
// both days are inclusive.
type Range struct {
	Start            time.Time
	End              time.Time
	Granularity      Granularity
	Preset           Preset
	Basis            Basis
	IncludePurchases bool
}

// Contains treats End as the end of its day.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End.AddDate(0, 0, 1))
}

// NormalizeRange resolves f against now. It never fails: unknown presets mean
// last30 and malformed dates fall back to the preset defaults.
func NormalizeRange(f Filters, now time.Time) Range {
	today := dayOf(now)

	preset := Preset(strings.TrimSpace(f.Preset))
	var start time.Time
	switch preset {
	case PresetThisMonth:
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PresetYTD:
		start = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case PresetCustom:
		start = parseDay(f.Start, today.AddDate(0, 0, -29))
	default:
		preset = PresetLast30
		start = parseDay(f.Start, today.AddDate(0, 0, -29))
	}
	end := parseDay(f.End, today)
	if start.After(end) {
		start, end = end, start
	}

	return Range{
		Start:            start,
		End:              end,
		Granularity:      parseGranularity(f.Granularity),
		Preset:           preset,
		Basis:            parseBasis(f.Basis),
		IncludePurchases: f.IncludePurchases,
	}
}

func parseGranularity(v string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(v))) {
	case GranularityWeek:
		return GranularityWeek
	case GranularityMonth:
		return GranularityMonth
	default:
		return GranularityDay
	}
}

func parseBasis(v string) Basis {
	if Basis(strings.ToLower(strings.TrimSpace(v))) == BasisCash {
		return BasisCash
	}
	return BasisAccrual
}

func parseDay(v string, fallback time.Time) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return dayOf(t)
	}
	if t, err := time.Parse(dayLayout, v); err == nil {
		return t
	}
	return fallback
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BucketKey groups t by g: the day itself, the Monday of its week, or the
// first of its month.
func BucketKey(t time.Time, g Granularity) string {
	d := dayOf(t)
	switch g {
	case GranularityWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset).Format(dayLayout)
	case GranularityMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).Format(dayLayout)
	default:
		return d.Format(dayLayout)
	}
}

func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// previousYearMonth maps "2024-03" to "2023-03".
func previousYearMonth(key string) string {
	t, err := time.Parse(monthLayout, key)
	if err != nil {
		return ""
	}
	return t.AddDate(-1, 0, 0).Format(monthLayout)
}
