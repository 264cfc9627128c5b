package export

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"salesdash/internal/analytics"
)

const (
	SheetSummary  = "Summary"
	SheetSeries   = "Series"
	SheetProducts = "Products"
	SheetMonthly  = "Monthly"
	SheetMoM      = "MoM"
	SheetYoY      = "YoY"
)

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func (w *sheetWriter) write(values ...any) {
	w.row++
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, w.row)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func qty(d decimal.Decimal) float64 {
	return d.Round(4).InexactFloat64()
}

var ErrNoResult = errors.New("export: no result")

// Build lays res out as a workbook with one sheet per view.
func Build(res *analytics.Result) (*excelize.File, error) {
	if res == nil {
		return nil, ErrNoResult
	}
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetSeries, SheetProducts, SheetMonthly, SheetMoM, SheetYoY} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	summary := &sheetWriter{f: f, sheet: SheetSummary}
	summary.write("field", "value")
	summary.write("preset", string(res.Filters.Preset))
	summary.write("start", res.Filters.Start)
	summary.write("end", res.Filters.End)
	summary.write("granularity", string(res.Filters.Granularity))
	summary.write("basis", string(res.Filters.Basis))
	summary.write("total_quantity", qty(res.Totals.Quantity))
	summary.write("total_sales", money(res.Totals.Sales))
	summary.write("credit_notes", res.Credits.Count)
	summary.write("credit_quantity", qty(res.Credits.Quantity))
	summary.write("credit_sales", money(res.Credits.Sales))
	summary.write("documents_fetched", res.Diagnostics.Fetched)
	summary.write("documents_included", res.Diagnostics.Included)
	summary.write("excluded_non_sales", res.Diagnostics.ExcludedNonSales)
	summary.write("excluded_status", res.Diagnostics.ExcludedStatus)
	summary.write("inferred_qty_lines", res.Diagnostics.InferredQtyLines)
	summary.write("trace_id", res.Diagnostics.TraceID)

	series := &sheetWriter{f: f, sheet: SheetSeries}
	series.write("bucket", "quantity", "sales")
	for _, p := range res.Series {
		series.write(p.Key, qty(p.Quantity), money(p.Sales))
	}

	products := &sheetWriter{f: f, sheet: SheetProducts}
	products.write("product_id", "title", "quantity", "sales")
	for _, p := range res.SalesByProduct {
		products.write(p.ProductID, p.Title, qty(p.Quantity), money(p.Sales))
	}

	monthly := &sheetWriter{f: f, sheet: SheetMonthly}
	monthly.write("month", "quantity", "sales")
	for _, m := range res.MonthlyTotals {
		monthly.write(m.Key, qty(m.Quantity), money(m.Sales))
	}

	writeComparisons(&sheetWriter{f: f, sheet: SheetMoM}, res.MoM)
	writeComparisons(&sheetWriter{f: f, sheet: SheetYoY}, res.YoY)

	return f, nil
}

func writeComparisons(w *sheetWriter, rows []analytics.Comparison) {
	w.write("period", "prev_period", "prev_quantity", "prev_sales", "quantity", "sales", "sales_delta")
	for _, c := range rows {
		w.write(c.Period, c.PrevPeriod,
			qty(c.Prev.Quantity), money(c.Prev.Sales),
			qty(c.Curr.Quantity), money(c.Curr.Sales),
			money(c.Curr.Sales.Sub(c.Prev.Sales)))
	}
}

// Bytes renders the whole workbook in memory so callers can fail cleanly
// before sending anything.
func Bytes(res *analytics.Result) ([]byte, error) {
	f, err := Build(res)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteFile(res *analytics.Result, outputPath string) error {
	f, err := Build(res)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
