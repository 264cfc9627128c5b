package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdash/internal"
	"salesdash/internal/catalog"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func invoice(id string, date string, lines ...internal.LineItem) internal.Document {
	d := day(2024, 6, 1)
	if date != "" {
		d = parseDay(date, d)
	}
	return internal.Document{
		ID:        id,
		Date:      d,
		Status:    internal.StatusAuthorised,
		Type:      internal.TypeSalesInvoice,
		Total:     decimal.NewFromInt(1),
		TaxMode:   internal.TaxInclusive,
		LineItems: lines,
	}
}

func creditNote(id string, date string, lines ...internal.LineItem) internal.Document {
	d := invoice(id, date, lines...)
	d.Type = internal.TypeSalesCreditNote
	return d
}

func scenarioLine() internal.LineItem {
	return internal.LineItem{ItemCode: "W-1", Quantity: dec("2"), UnitAmount: dec("10"), TaxAmount: dec("2")}
}

func classified(doc internal.Document) Classified {
	c, why := classify(doc, false)
	if why != kept {
		panic("document not kept")
	}
	return c
}

func TestNormalizeInvoiceUnitAmountLine(t *testing.T) {
	n := NewNormalizer(nil, GranularityDay)
	lines := n.Lines(classified(invoice("inv-1", "2024-06-03", scenarioLine())))

	require.Len(t, lines, 1)
	assertDec(t, "2", lines[0].Qty)
	assertDec(t, "18", lines[0].Sales)
	assert.Equal(t, "W-1", lines[0].ProductID)
	assert.Equal(t, "2024-06-03", lines[0].BucketKey)
	assert.Equal(t, "2024-06", lines[0].MonthKey)
	assert.Zero(t, n.InferredQtyLines())
}

func TestNormalizeCreditNoteNegates(t *testing.T) {
	n := NewNormalizer(nil, GranularityDay)
	lines := n.Lines(classified(creditNote("cn-1", "2024-06-03", scenarioLine())))

	require.Len(t, lines, 1)
	assertDec(t, "-2", lines[0].Qty)
	assertDec(t, "-18", lines[0].Sales)
	assert.True(t, lines[0].IsCredit)
}

func TestNormalizePseudoLineForEmptyDocument(t *testing.T) {
	doc := invoice("inv-2", "2024-06-03")
	doc.Total = decimal.NewFromInt(100)
	doc.TotalTax = dec("10")
	doc.TaxMode = internal.TaxExclusive
	doc.Reference = "Consulting"

	n := NewNormalizer(nil, GranularityDay)
	lines := n.Lines(classified(doc))

	require.Len(t, lines, 1)
	assertDec(t, "1", lines[0].Qty)
	assertDec(t, "90", lines[0].Sales)
	assert.Equal(t, "Consulting", lines[0].ProductID)
	assert.Equal(t, 1, n.InferredQtyLines())
}

func TestNormalizePseudoLineResolvesReferenceAgainstCatalog(t *testing.T) {
	idx := catalog.BuildIndex([]internal.CatalogItem{{Code: "SVC-HR", Name: "Consulting Hours"}}, catalog.DefaultMatchOptions())
	doc := invoice("inv-3", "")
	doc.Total = decimal.NewFromInt(50)
	doc.Reference = "consulting hours"

	lines := NewNormalizer(idx, GranularityDay).Lines(classified(doc))
	require.Len(t, lines, 1)
	assert.Equal(t, "SVC-HR", lines[0].ProductID)
	assert.Equal(t, "Consulting Hours", lines[0].ProductTitle)
}

func TestNormalizeEmptyZeroTotalDocumentYieldsNothing(t *testing.T) {
	doc := invoice("inv-4", "")
	doc.Total = decimal.Zero
	n := NewNormalizer(nil, GranularityDay)
	assert.Empty(t, n.Lines(classified(doc)))
	assert.Zero(t, n.InferredQtyLines())
}

func TestNormalizeInfersQuantityOncePerLine(t *testing.T) {
	doc := invoice("inv-5", "",
		internal.LineItem{Description: "Setup fee", LineAmount: dec("50")},
		internal.LineItem{Description: "Support", UnitAmount: dec("20"), Quantity: dec("0")},
		internal.LineItem{Description: "Widgets", Quantity: dec("3"), LineAmount: dec("30")},
	)
	n := NewNormalizer(nil, GranularityDay)
	lines := n.Lines(classified(doc))

	require.Len(t, lines, 3)
	assertDec(t, "1", lines[0].Qty)
	assertDec(t, "50", lines[0].Sales)
	assertDec(t, "1", lines[1].Qty)
	assertDec(t, "20", lines[1].Sales)
	assertDec(t, "3", lines[2].Qty)
	assert.Equal(t, 2, n.InferredQtyLines())

	n.Lines(classified(doc))
	assert.Equal(t, 4, n.InferredQtyLines())
}

func TestNormalizeDropsOnlyEmptyAnonymousLines(t *testing.T) {
	doc := invoice("inv-6", "",
		internal.LineItem{},
		internal.LineItem{Description: "Note line"},
		internal.LineItem{Quantity: dec("2")},
	)
	n := NewNormalizer(nil, GranularityDay)
	lines := n.Lines(classified(doc))

	require.Len(t, lines, 2)
	assert.Equal(t, "Note line", lines[0].ProductID)
	assertDec(t, "0", lines[0].Qty)
	assert.Equal(t, catalog.UnknownProductID, lines[1].ProductID)
	assertDec(t, "2", lines[1].Qty)
	assert.Equal(t, 1, n.DroppedLines())
}

func TestNormalizeNoTaxIgnoresLineTax(t *testing.T) {
	doc := invoice("inv-7", "", internal.LineItem{ItemCode: "A", LineAmount: dec("100"), TaxAmount: dec("15")})
	doc.TaxMode = internal.TaxNone
	lines := NewNormalizer(nil, GranularityDay).Lines(classified(doc))
	require.Len(t, lines, 1)
	assertDec(t, "100", lines[0].Sales)
}

func TestDocumentPretaxTotal(t *testing.T) {
	inclusive := invoice("a", "",
		internal.LineItem{LineAmount: dec("60"), TaxAmount: dec("6")},
		internal.LineItem{LineAmount: dec("50"), TaxAmount: dec("5")},
	)
	inclusive.Total = decimal.NewFromInt(110)
	inclusive.TotalTax = dec("12")
	assertDec(t, "99", DocumentPretaxTotal(inclusive))

	exclusive := inclusive
	exclusive.TaxMode = internal.TaxExclusive
	assertDec(t, "98", DocumentPretaxTotal(exclusive))

	exclusive.TotalTax = nil
	assertDec(t, "99", DocumentPretaxTotal(exclusive))

	noTax := inclusive
	noTax.TaxMode = internal.TaxNone
	assertDec(t, "110", DocumentPretaxTotal(noTax))
}

func TestNormalizeFlagsUnreconciledDocuments(t *testing.T) {
	ok := invoice("ok", "", internal.LineItem{ItemCode: "A", LineAmount: dec("110"), TaxAmount: dec("10")})
	ok.Total = decimal.NewFromInt(110)
	off := invoice("off", "", internal.LineItem{ItemCode: "A", LineAmount: dec("50"), TaxAmount: dec("5")})
	off.Total = decimal.NewFromInt(110)

	n := NewNormalizer(nil, GranularityDay)
	n.Lines(classified(ok))
	n.Lines(classified(off))
	assert.Equal(t, 1, n.UnreconciledDocuments())
}

func TestLineScaleAndAt(t *testing.T) {
	l := Line{Qty: decimal.NewFromInt(4), Sales: decimal.NewFromInt(200), BucketKey: "2024-01-01", MonthKey: "2024-01"}
	half := l.Scale(decimal.NewFromInt(50), decimal.NewFromInt(100)).At(day(2024, 3, 7), GranularityMonth)
	assertDec(t, "2", half.Qty)
	assertDec(t, "100", half.Sales)
	assert.Equal(t, "2024-03-01", half.BucketKey)
	assert.Equal(t, "2024-03", half.MonthKey)
}
