package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"salesdash/internal"
	"salesdash/internal/catalog"
)

// reconcileTolerance absorbs provider-side rounding when line sums are checked
// against the document's own pre-tax total.
var reconcileTolerance = decimal.RequireFromString("0.01")

// Line is one normalized, signed contribution to the aggregates.
type Line struct {
	ProductID    string
	ProductTitle string
	Qty          decimal.Decimal
	Sales        decimal.Decimal
	BucketKey    string
	MonthKey     string
	DocumentID   string
	IsCredit     bool
}

// At moves the line to the buckets of date.
func (l Line) At(date time.Time, g Granularity) Line {
	l.BucketKey = BucketKey(date, g)
	l.MonthKey = MonthKey(date)
	return l
}

// Scale multiplies quantity and sales by num/den. den must be non-zero.
func (l Line) Scale(num, den decimal.Decimal) Line {
	l.Qty = l.Qty.Mul(num).Div(den)
	l.Sales = l.Sales.Mul(num).Div(den)
	return l
}

// Normalizer turns classified documents into lines. Quantity inference is
// counted here and nowhere else, once per inferred line.
type Normalizer struct {
	index       *catalog.Index
	granularity Granularity

	inferred     int
	emitted      int
	dropped      int
	unreconciled int
}

func NewNormalizer(index *catalog.Index, g Granularity) *Normalizer {
	return &Normalizer{index: index, granularity: g}
}

func (n *Normalizer) InferredQtyLines() int { return n.inferred }
func (n *Normalizer) EmittedLines() int     { return n.emitted }
func (n *Normalizer) DroppedLines() int     { return n.dropped }

// UnreconciledDocuments counts documents whose normalized lines do not add up
// to the document's pre-tax total.
func (n *Normalizer) UnreconciledDocuments() int { return n.unreconciled }

// Lines normalizes every line of c, bucketed by the document date.
func (n *Normalizer) Lines(c Classified) []Line {
	doc := c.Document
	base := Line{
		BucketKey:  BucketKey(doc.Date, n.granularity),
		MonthKey:   MonthKey(doc.Date),
		DocumentID: doc.ID,
		IsCredit:   c.IsCredit,
	}

	if len(doc.LineItems) == 0 {
		if doc.Total.IsZero() {
			return nil
		}
		n.inferred++
		n.emitted++
		id := n.index.Resolve(doc.Reference, doc.Reference)
		pseudo := base
		pseudo.ProductID = id.ID
		pseudo.ProductTitle = id.Title
		pseudo.Qty = c.Sign
		pseudo.Sales = DocumentPretaxTotal(doc).Mul(c.Sign)
		return []Line{pseudo}
	}

	out := make([]Line, 0, len(doc.LineItems))
	sum := decimal.Zero
	for _, item := range doc.LineItems {
		qty, inferred := effectiveQuantity(item)
		amount := pretaxAmount(item, qty, doc.TaxMode)
		id := n.index.Resolve(item.ItemCode, item.Description)

		if qty.IsZero() && amount.IsZero() && id.Reason == catalog.ReasonUnknown {
			n.dropped++
			continue
		}
		if inferred {
			n.inferred++
		}

		line := base
		line.ProductID = id.ID
		line.ProductTitle = id.Title
		line.Qty = qty.Mul(c.Sign)
		line.Sales = amount.Mul(c.Sign)
		sum = sum.Add(amount)
		out = append(out, line)
	}
	n.emitted += len(out)

	if !doc.Total.IsZero() && sum.Sub(DocumentPretaxTotal(doc)).Abs().GreaterThan(reconcileTolerance) {
		n.unreconciled++
	}
	return out
}

// effectiveQuantity returns the stated quantity when it is non-zero, 1 when
// the line carries any amount, and 0 otherwise. The bool reports inference.
func effectiveQuantity(item internal.LineItem) (decimal.Decimal, bool) {
	if item.Quantity != nil && !item.Quantity.IsZero() {
		return *item.Quantity, false
	}
	if item.HasAmount() {
		return decimal.NewFromInt(1), true
	}
	return decimal.Zero, false
}

// pretaxAmount prefers the line amount, falls back to unit × qty and
// removes the line tax. Tax is ignored on no-tax documents and on lines that
// carry no amount at all.
func pretaxAmount(item internal.LineItem, qty decimal.Decimal, mode internal.TaxMode) decimal.Decimal {
	var amount decimal.Decimal
	switch {
	case item.LineAmount != nil:
		amount = *item.LineAmount
	case item.UnitAmount != nil:
		amount = item.UnitAmount.Mul(qty)
	default:
		return decimal.Zero
	}
	if item.TaxAmount != nil && mode != internal.TaxNone {
		amount = amount.Sub(*item.TaxAmount)
	}
	return amount
}

// DocumentPretaxTotal is the document total with tax removed. Tax-inclusive
// documents subtract their line taxes; otherwise the document-level tax is
// used, falling back to the line taxes when it is missing.
func DocumentPretaxTotal(doc internal.Document) decimal.Decimal {
	if doc.TaxMode == internal.TaxNone {
		return doc.Total
	}
	lineTax, hasLineTax := sumLineTax(doc.LineItems)
	if doc.TaxMode == internal.TaxInclusive && hasLineTax {
		return doc.Total.Sub(lineTax)
	}
	if doc.TotalTax != nil {
		return doc.Total.Sub(*doc.TotalTax)
	}
	return doc.Total.Sub(lineTax)
}

func sumLineTax(items []internal.LineItem) (decimal.Decimal, bool) {
	sum := decimal.Zero
	found := false
	for _, item := range items {
		if item.TaxAmount != nil {
			sum = sum.Add(*item.TaxAmount)
			found = true
		}
	}
	return sum, found
}
