package analytics

import (
	"github.com/shopspring/decimal"

	"salesdash/internal"
)

var (
	signDebit  = decimal.NewFromInt(1)
	signCredit = decimal.NewFromInt(-1)
)

// Classified is a retained document with the sign its lines contribute with.
type Classified struct {
	Document internal.Document
	Sign     decimal.Decimal
	IsCredit bool
}

type Counters struct {
	Fetched          int `json:"fetched"`
	Included         int `json:"included"`
	ExcludedNonSales int `json:"excludedNonSales"`
	ExcludedStatus   int `json:"excludedStatus"`
	CreditDocuments  int `json:"creditDocuments"`
}

type exclusion int

const (
	kept exclusion = iota
	excludedType
	excludedStatus
)

// Classify keeps sales documents in an accepted status that are dated inside
// rng. Documents outside the window are dropped without being counted.
func Classify(docs []internal.Document, rng Range, includePurchases bool) ([]Classified, Counters) {
	counters := Counters{Fetched: len(docs)}
	out := make([]Classified, 0, len(docs))
	for _, doc := range docs {
		c, why := classify(doc, includePurchases)
		if !counters.count(why) {
			continue
		}
		if !rng.Contains(doc.Date) {
			continue
		}
		counters.retain(c)
		out = append(out, c)
	}
	return out, counters
}

// retain records a kept document. Credit notes are counted here so one that
// emits no lines still shows up in the credit summary.
func (c *Counters) retain(doc Classified) {
	c.Included++
	if doc.IsCredit {
		c.CreditDocuments++
	}
}

// count records an exclusion and reports whether the document was kept.
func (c *Counters) count(why exclusion) bool {
	switch why {
	case excludedType:
		c.ExcludedNonSales++
		return false
	case excludedStatus:
		c.ExcludedStatus++
		return false
	default:
		return true
	}
}

func classify(doc internal.Document, includePurchases bool) (Classified, exclusion) {
	isCredit := doc.Type == internal.TypeSalesCreditNote
	typeOK := doc.Type.IsSales() || (includePurchases && doc.Type.IsPurchase())
	if !typeOK {
		return Classified{}, excludedType
	}
	if !statusAccepted(doc.Status) {
		return Classified{}, excludedStatus
	}

	sign := signDebit
	if isCredit {
		sign = signCredit
	}
	return Classified{Document: doc, Sign: sign, IsCredit: isCredit}, kept
}

func statusAccepted(s internal.DocumentStatus) bool {
	switch s {
	case internal.StatusAuthorised, internal.StatusPaid, internal.StatusNone:
		return true
	default:
		return false
	}
}
