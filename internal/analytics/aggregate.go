package analytics

import (
	"github.com/shopspring/decimal"
)

// Totals is a signed {quantity, sales} pair.
type Totals struct {
	Quantity decimal.Decimal `json:"quantity"`
	Sales    decimal.Decimal `json:"sales"`
}

func (t *Totals) add(qty, sales decimal.Decimal) {
	t.Quantity = t.Quantity.Add(qty)
	t.Sales = t.Sales.Add(sales)
}

type productAccumulator struct {
	title string
	order int
	Totals
}

// productMap keeps per-product sums and the order products were first seen.
type productMap struct {
	byID  map[string]*productAccumulator
	order []string
}

func newProductMap() *productMap {
	return &productMap{byID: make(map[string]*productAccumulator)}
}

func (m *productMap) add(l Line) {
	acc, ok := m.byID[l.ProductID]
	if !ok {
		acc = &productAccumulator{title: l.ProductTitle, order: len(m.order)}
		m.byID[l.ProductID] = acc
		m.order = append(m.order, l.ProductID)
	}
	acc.add(l.Qty, l.Sales)
}

// Aggregator folds lines into five maps: by bucket, bucket × product, month,
// month × product and product. All sums are decimal so fold order never
// changes a result.
type Aggregator struct {
	buckets       map[string]*Totals
	bucketProduct map[string]*productMap
	months        map[string]*Totals
	monthProduct  map[string]*productMap
	products      *productMap

	credits Totals
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		buckets:       make(map[string]*Totals),
		bucketProduct: make(map[string]*productMap),
		months:        make(map[string]*Totals),
		monthProduct:  make(map[string]*productMap),
		products:      newProductMap(),
	}
}

func (a *Aggregator) Add(l Line) {
	lazyTotals(a.buckets, l.BucketKey).add(l.Qty, l.Sales)
	lazyProducts(a.bucketProduct, l.BucketKey).add(l)
	lazyTotals(a.months, l.MonthKey).add(l.Qty, l.Sales)
	lazyProducts(a.monthProduct, l.MonthKey).add(l)
	a.products.add(l)

	if l.IsCredit {
		a.credits.add(l.Qty, l.Sales)
	}
}

func (a *Aggregator) AddAll(lines []Line) {
	for _, l := range lines {
		a.Add(l)
	}
}

func lazyTotals(m map[string]*Totals, key string) *Totals {
	t, ok := m[key]
	if !ok {
		t = &Totals{}
		m[key] = t
	}
	return t
}

func lazyProducts(m map[string]*productMap, key string) *productMap {
	p, ok := m[key]
	if !ok {
		p = newProductMap()
		m[key] = p
	}
	return p
}
