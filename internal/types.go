package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type DocumentStatus string

const (
	StatusNone       DocumentStatus = ""
	StatusDraft      DocumentStatus = "DRAFT"
	StatusSubmitted  DocumentStatus = "SUBMITTED"
	StatusAuthorised DocumentStatus = "AUTHORISED"
	StatusPaid       DocumentStatus = "PAID"
	StatusVoided     DocumentStatus = "VOIDED"
	StatusDeleted    DocumentStatus = "DELETED"
	StatusUnknown    DocumentStatus = "UNKNOWN"
)

type DocumentType string

const (
	TypeSalesInvoice       DocumentType = "ACCREC"
	TypeSalesCreditNote    DocumentType = "ACCRECCREDIT"
	TypePurchase           DocumentType = "ACCPAY"
	TypePurchaseCreditNote DocumentType = "ACCPAYCREDIT"
	TypeUnknown            DocumentType = "UNKNOWN"
)

func (t DocumentType) IsSales() bool {
	return t == TypeSalesInvoice || t == TypeSalesCreditNote
}

func (t DocumentType) IsPurchase() bool {
	return t == TypePurchase || t == TypePurchaseCreditNote
}

type TaxMode string

const (
	TaxExclusive TaxMode = "Exclusive"
	TaxInclusive TaxMode = "Inclusive"
	TaxNone      TaxMode = "NoTax"
)

// LineItem is the canonical line shape. Nil pointers mean the provider did not
// send the field. Amounts are kept exactly as the provider reported them.
type LineItem struct {
	ItemCode    string
	Description string
	Quantity    *decimal.Decimal
	UnitAmount  *decimal.Decimal
	LineAmount  *decimal.Decimal
	TaxAmount   *decimal.Decimal
}

// HasAmount reports whether any monetary field was supplied for the line.
func (l LineItem) HasAmount() bool {
	return l.LineAmount != nil || l.UnitAmount != nil
}

type Document struct {
	ID        string
	Number    string
	Reference string
	Date      time.Time
	Status    DocumentStatus
	Type      DocumentType
	Total     decimal.Decimal
	TotalTax  *decimal.Decimal
	Currency  string
	TaxMode   TaxMode
	LineItems []LineItem
}

type CatalogItem struct {
	Code      string
	Name      string
	IsTracked bool
}

type Payment struct {
	ID           string
	Date         time.Time
	Amount       decimal.Decimal
	Status       DocumentStatus
	DocumentID   string
	DocumentType DocumentType
	Reference    string
}

// RunRecord is the persisted summary of one analytics run.
type RunRecord struct {
	TraceID     string         `json:"traceId"`
	Tenant      string         `json:"tenant"`
	Basis       string         `json:"basis"`
	Preset      string         `json:"preset"`
	RangeStart  string         `json:"rangeStart"`
	RangeEnd    string         `json:"rangeEnd"`
	Counts      map[string]int `json:"counts"`
	TotalsSales string         `json:"totalsSales"`
	DurationMs  int64          `json:"durationMs"`
}
