package analytics

import (
	"sort"

	"github.com/shopspring/decimal"
)

const topN = 10

type SeriesPoint struct {
	Key string `json:"key"`
	Totals
}

type ProductTotal struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Totals
}

type LegendEntry struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
}

// PeriodProducts is the per-product breakdown of one bucket or month.
type PeriodProducts struct {
	Key      string         `json:"key"`
	Products []ProductTotal `json:"products"`
}

// Comparison pairs a period with the period it is compared against.
type Comparison struct {
	Period     string `json:"period"`
	PrevPeriod string `json:"prevPeriod"`
	Prev       Totals `json:"prev"`
	Curr       Totals `json:"curr"`
}

type CreditSummary struct {
	Count    int             `json:"count"`
	Quantity decimal.Decimal `json:"quantity"`
	Sales    decimal.Decimal `json:"sales"`
}

type Diagnostics struct {
	Counters
	InferredQtyLines      int    `json:"inferredQtyLines"`
	Lines                 int    `json:"lines"`
	DroppedLines          int    `json:"droppedLines"`
	UnreconciledDocuments int    `json:"unreconciledDocuments"`
	PaymentsFetched       int    `json:"paymentsFetched,omitempty"`
	PaymentsExcluded      int    `json:"paymentsExcluded,omitempty"`
	CatalogItems          int    `json:"catalogItems"`
	TraceID               string `json:"traceId,omitempty"`
	DurationMs            int64  `json:"durationMs"`
}

// ResolvedFilters echoes the window a result was computed for.
type ResolvedFilters struct {
	Preset           Preset      `json:"preset"`
	Start            string      `json:"start"`
	End              string      `json:"end"`
	Granularity      Granularity `json:"granularity"`
	Basis            Basis       `json:"basis"`
	IncludePurchases bool        `json:"includePurchases"`
}

// Result is the read-only output of one analytics run.
type Result struct {
	Filters        ResolvedFilters   `json:"filters"`
	Totals         Totals            `json:"totals"`
	Series         []SeriesPoint     `json:"series"`
	SeriesProduct  []PeriodProducts  `json:"seriesProduct"`
	ProductLegend  []LegendEntry     `json:"productLegend"`
	Top10ByQty     []ProductTotal    `json:"top10ByQty"`
	Top10BySales   []ProductTotal    `json:"top10BySales"`
	SalesByProduct []ProductTotal    `json:"salesByProduct"`
	MoM            []Comparison      `json:"mom"`
	YoY            []Comparison      `json:"yoy"`
	MonthlyTotals  []SeriesPoint     `json:"monthlyTotals"`
	MonthlyDict    map[string]Totals `json:"monthlyDict"`
	MonthlyProduct []PeriodProducts  `json:"monthlyProduct"`
	Credits        CreditSummary     `json:"credits"`
	Diagnostics    Diagnostics       `json:"diagnostics"`
}

func resolvedFilters(rng Range) ResolvedFilters {
	return ResolvedFilters{
		Preset:           rng.Preset,
		Start:            rng.Start.Format(dayLayout),
		End:              rng.End.Format(dayLayout),
		Granularity:      rng.Granularity,
		Basis:            rng.Basis,
		IncludePurchases: rng.IncludePurchases,
	}
}

// Summarize derives the ranked and comparison views from a.
func Summarize(a *Aggregator, rng Range, diag Diagnostics) *Result {
	res := &Result{
		Filters:     resolvedFilters(rng),
		Diagnostics: diag,
		MonthlyDict: make(map[string]Totals, len(a.months)),
	}

	res.Series = sortedSeries(a.buckets)
	for _, p := range res.Series {
		res.Totals.add(p.Quantity, p.Sales)
	}
	res.SeriesProduct = periodProducts(a.bucketProduct)

	res.SalesByProduct = a.products.bySales()
	res.ProductLegend = make([]LegendEntry, 0, len(res.SalesByProduct))
	for _, p := range res.SalesByProduct {
		res.ProductLegend = append(res.ProductLegend, LegendEntry{ProductID: p.ProductID, Title: p.Title})
	}
	res.Top10BySales = head(res.SalesByProduct, topN)
	res.Top10ByQty = head(a.products.byQuantity(), topN)

	res.MonthlyTotals = sortedSeries(a.months)
	for _, m := range res.MonthlyTotals {
		res.MonthlyDict[m.Key] = m.Totals
	}
	res.MonthlyProduct = periodProducts(a.monthProduct)
	res.MoM = monthOverMonth(res.MonthlyTotals)
	res.YoY = yearOverYear(res.MonthlyTotals, res.MonthlyDict)

	res.Credits = CreditSummary{
		Count:    diag.CreditDocuments,
		Quantity: a.credits.Quantity,
		Sales:    a.credits.Sales,
	}
	return res
}

func sortedSeries(m map[string]*Totals) []SeriesPoint {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]SeriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, SeriesPoint{Key: k, Totals: *m[k]})
	}
	return out
}

func periodProducts(m map[string]*productMap) []PeriodProducts {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]PeriodProducts, 0, len(keys))
	for _, k := range keys {
		out = append(out, PeriodProducts{Key: k, Products: m[k].bySales()})
	}
	return out
}

func (m *productMap) list() []ProductTotal {
	out := make([]ProductTotal, 0, len(m.order))
	for _, id := range m.order {
		acc := m.byID[id]
		out = append(out, ProductTotal{ProductID: id, Title: acc.title, Totals: acc.Totals})
	}
	return out
}

// bySales sorts descending by sales. The list starts in insertion order and
// the sort is stable, so ties keep first-seen order.
func (m *productMap) bySales() []ProductTotal {
	out := m.list()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sales.GreaterThan(out[j].Sales) })
	return out
}

func (m *productMap) byQuantity() []ProductTotal {
	out := m.list()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity.GreaterThan(out[j].Quantity) })
	return out
}

func head(in []ProductTotal, n int) []ProductTotal {
	if len(in) > n {
		in = in[:n]
	}
	return append([]ProductTotal(nil), in...)
}

// monthOverMonth pairs each month with the previous month present in the data.
// Months without data are skipped rather than zero-filled.
func monthOverMonth(months []SeriesPoint) []Comparison {
	if len(months) < 2 {
		return []Comparison{}
	}
	out := make([]Comparison, 0, len(months)-1)
	for i := 1; i < len(months); i++ {
		out = append(out, Comparison{
			Period:     months[i].Key,
			PrevPeriod: months[i-1].Key,
			Prev:       months[i-1].Totals,
			Curr:       months[i].Totals,
		})
	}
	return out
}

// yearOverYear compares each month with the same month a year earlier. A
// missing prior month counts as zero.
func yearOverYear(months []SeriesPoint, dict map[string]Totals) []Comparison {
	out := make([]Comparison, 0, len(months))
	for _, m := range months {
		prevKey := previousYearMonth(m.Key)
		prev, ok := dict[prevKey]
		if !ok {
			prev = Totals{Quantity: decimal.Zero, Sales: decimal.Zero}
		}
		out = append(out, Comparison{Period: m.Key, PrevPeriod: prevKey, Prev: prev, Curr: m.Totals})
	}
	return out
}
