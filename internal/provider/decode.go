package provider

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"salesdash/internal"
	"salesdash/internal/util"
)

// The provider SDKs disagree on field casing (LineItems vs lineItems), so every
// lookup below goes through field, which matches keys case-insensitively.

var msDatePattern = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

var isoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func field(raw map[string]any, name string) any {
	if v, ok := raw[name]; ok {
		return v
	}
	for k, v := range raw {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func fieldString(raw map[string]any, name string) string {
	s, _ := field(raw, name).(string)
	return strings.TrimSpace(s)
}

func fieldMap(raw map[string]any, name string) map[string]any {
	m, _ := field(raw, name).(map[string]any)
	return m
}

func listField(raw map[string]any, name string) []map[string]any {
	items, _ := field(raw, name).([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// parseDate accepts ISO dates and the /Date(ms+0000)/ form and returns UTC
// midnight of the calendar day. The zero time means unparseable.
func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if m := msDatePattern.FindStringSubmatch(v); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}
		}
		return truncateDay(time.UnixMilli(ms).UTC())
	}
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func documentDate(raw map[string]any) time.Time {
	if d := parseDate(fieldString(raw, "DateString")); !d.IsZero() {
		return d
	}
	return parseDate(fieldString(raw, "Date"))
}

func toStatus(v string) internal.DocumentStatus {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "":
		return internal.StatusNone
	case "DRAFT":
		return internal.StatusDraft
	case "SUBMITTED":
		return internal.StatusSubmitted
	case "AUTHORISED", "AUTHORIZED":
		return internal.StatusAuthorised
	case "PAID":
		return internal.StatusPaid
	case "VOIDED":
		return internal.StatusVoided
	case "DELETED":
		return internal.StatusDeleted
	default:
		return internal.StatusUnknown
	}
}

func toDocumentType(v string) internal.DocumentType {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ACCREC":
		return internal.TypeSalesInvoice
	case "ACCRECCREDIT":
		return internal.TypeSalesCreditNote
	case "ACCPAY":
		return internal.TypePurchase
	case "ACCPAYCREDIT":
		return internal.TypePurchaseCreditNote
	default:
		return internal.TypeUnknown
	}
}

func toTaxMode(v string) internal.TaxMode {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "INCLUSIVE":
		return internal.TaxInclusive
	case "NOTAX":
		return internal.TaxNone
	default:
		return internal.TaxExclusive
	}
}

func toDocuments(raw []map[string]any) []internal.Document {
	out := make([]internal.Document, 0, len(raw))
	for _, item := range raw {
		out = append(out, toDocument(item))
	}
	return out
}

// toDocument never fails: a document missing fields degrades to zero values
// and is dealt with by the normalizer.
func toDocument(raw map[string]any) internal.Document {
	doc := internal.Document{
		ID:        util.FirstNonEmpty(fieldString(raw, "InvoiceID"), fieldString(raw, "CreditNoteID"), fieldString(raw, "ID")),
		Number:    util.FirstNonEmpty(fieldString(raw, "InvoiceNumber"), fieldString(raw, "CreditNoteNumber")),
		Reference: fieldString(raw, "Reference"),
		Date:      documentDate(raw),
		Status:    toStatus(fieldString(raw, "Status")),
		Type:      toDocumentType(fieldString(raw, "Type")),
		Total:     util.DecimalOrZero(util.ParseDecimal(field(raw, "Total"))),
		TotalTax:  util.ParseDecimal(field(raw, "TotalTax")),
		Currency:  fieldString(raw, "CurrencyCode"),
		TaxMode:   toTaxMode(fieldString(raw, "LineAmountTypes")),
	}
	for _, line := range listField(raw, "LineItems") {
		doc.LineItems = append(doc.LineItems, toLineItem(line))
	}
	return doc
}

// toLineItem reads a provider line as reported. Amounts are never rewritten
// here; tax is removed later from whatever the line carries.
func toLineItem(raw map[string]any) internal.LineItem {
	line := internal.LineItem{
		ItemCode:    fieldString(raw, "ItemCode"),
		Description: fieldString(raw, "Description"),
		Quantity:    util.ParseDecimal(field(raw, "Quantity")),
		UnitAmount:  util.ParseDecimal(field(raw, "UnitAmount")),
		LineAmount:  util.ParseDecimal(field(raw, "LineAmount")),
		TaxAmount:   util.ParseDecimal(field(raw, "TaxAmount")),
	}
	if line.ItemCode == "" {
		if item := fieldMap(raw, "Item"); item != nil {
			line.ItemCode = fieldString(item, "Code")
		}
	}
	return line
}

func toCatalogItem(raw map[string]any) (internal.CatalogItem, bool) {
	code := fieldString(raw, "Code")
	name := fieldString(raw, "Name")
	if code == "" && name == "" {
		return internal.CatalogItem{}, false
	}
	tracked, _ := field(raw, "IsTrackedAsInventory").(bool)
	return internal.CatalogItem{Code: code, Name: name, IsTracked: tracked}, true
}

func toPayment(raw map[string]any) (internal.Payment, bool) {
	id := util.FirstNonEmpty(fieldString(raw, "PaymentID"), fieldString(raw, "ID"))
	amount := util.ParseDecimal(field(raw, "Amount"))
	if id == "" || amount == nil {
		return internal.Payment{}, false
	}

	p := internal.Payment{
		ID:        id,
		Date:      documentDate(raw),
		Amount:    *amount,
		Status:    toStatus(fieldString(raw, "Status")),
		Reference: fieldString(raw, "Reference"),
	}
	if inv := fieldMap(raw, "Invoice"); inv != nil {
		p.DocumentID = fieldString(inv, "InvoiceID")
		p.DocumentType = toDocumentType(fieldString(inv, "Type"))
	}
	if cn := fieldMap(raw, "CreditNote"); cn != nil && p.DocumentID == "" {
		p.DocumentID = fieldString(cn, "CreditNoteID")
		p.DocumentType = toDocumentType(fieldString(cn, "Type"))
	}
	return p, true
}
