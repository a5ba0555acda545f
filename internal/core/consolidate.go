package core

import (
	"github.com/shopspring/decimal"
)

// Fixed split between the formal invoice (NF) and the credit note (NC).
var (
	invoiceRate    = decimal.RequireFromString("0.115")
	creditNoteRate = decimal.RequireFromString("0.885")
)

// ConsolidateInput is everything the aggregator needs, already fetched. The
// fetch itself lives in LoteService, which pages through the store's
// 1000-row query cap; the aggregation here is pure.
type ConsolidateInput struct {
	// Rows for the lote, any status; non-VALIDATED rows are skipped.
	Rows []UsageRow
	// Unapplied adjustments for the clients involved.
	Adjustments []Adjustment
	// Registry lookup, client id → client.
	Clients map[int]*Client
	// Billing cycles designated for parent/child (franchise) grouping.
	MultiStoreCycles map[int]bool
	// Withheld tax per client, from external fiscal documents. Optional.
	IRRF map[int]decimal.Decimal
	// Per-lote "no invoice required" overrides, in addition to the client
	// registry flag.
	NoInvoice map[int]bool
}

// totals is the per-client accumulator built during the grouping pass.
type totals struct {
	base       decimal.Decimal
	additions  decimal.Decimal
	deductions decimal.Decimal
}

// Consolidate turns validated usage rows and pending adjustments into one
// ConsolidatedRecord per billing client, plus the rejected list. Output
// order follows first occurrence of each client id in the row sequence; all
// arithmetic stays at full precision, rounding happens at the payload edge.
//
// Franchise grouping: a client in a multi-store cycle with a parent store
// keeps its own record and figures, and additionally shows up as a
// descriptive ChildItem on the parent's record. Child totals never sum into
// the parent's base.
func Consolidate(loteID int, in ConsolidateInput) ([]ConsolidatedRecord, []RejectedClient) {
	byClient := make(map[int]*totals)
	var order []int
	for _, row := range in.Rows {
		if row.Status != RowStatusValidated {
			continue
		}
		t, ok := byClient[row.ClientID]
		if !ok {
			t = &totals{}
			byClient[row.ClientID] = t
			order = append(order, row.ClientID)
		}
		t.base = t.base.Add(row.Value)
	}

	for _, adj := range in.Adjustments {
		t, ok := byClient[adj.ClientID]
		if !ok {
			continue // adjustment for a client with no usage this lote
		}
		switch adj.Type {
		case AdjustmentSurcharge:
			t.additions = t.additions.Add(adj.Value)
		case AdjustmentDiscount:
			t.deductions = t.deductions.Add(adj.Value)
		}
	}

	var records []ConsolidatedRecord
	var rejected []RejectedClient
	recordIdx := make(map[int]int)
	for _, clientID := range order {
		t := byClient[clientID]
		client := in.Clients[clientID]

		if reason := rejectReason(client); reason != "" {
			name := ""
			if client != nil {
				name = client.LegalName
			}
			rejected = append(rejected, RejectedClient{
				ClientID: clientID,
				Name:     name,
				Reason:   reason,
				Total:    t.base,
			})
			continue
		}

		net := t.base.Add(t.additions).Sub(t.deductions)
		rec := ConsolidatedRecord{
			LoteID:     loteID,
			ClientID:   clientID,
			Base:       t.base,
			Additions:  t.additions,
			Deductions: t.deductions,
			Net:        net,
		}
		if client.NoInvoice || in.NoInvoice[clientID] {
			rec.InvoiceShare = decimal.Zero
			rec.CreditNoteShare = net
		} else {
			rec.InvoiceShare = net.Mul(invoiceRate)
			rec.CreditNoteShare = net.Mul(creditNoteRate)
		}
		// IRRF shifts the settlement only; the NF/NC split is untouched.
		rec.IRRF = in.IRRF[clientID]
		rec.Settlement = net.Sub(rec.IRRF)

		recordIdx[clientID] = len(records)
		records = append(records, rec)
	}

	nestChildItems(records, recordIdx, in)
	return records, rejected
}

// rejectReason returns the human-readable exclusion reason, or "" when the
// client may be consolidated.
func rejectReason(c *Client) string {
	switch {
	case c == nil:
		return ReasonMissingRegistration
	case !c.IsActive:
		return ReasonInvalidStatus
	case !c.HasCompleteAddress():
		return ReasonIncompleteAddress
	default:
		return ""
	}
}

// nestChildItems attaches each filial's total as a descriptive line on its
// parent's record. The parent's own figures are left alone.
func nestChildItems(records []ConsolidatedRecord, recordIdx map[int]int, in ConsolidateInput) {
	for i := range records {
		child := in.Clients[records[i].ClientID]
		if child == nil || child.ParentStoreID == nil || !in.MultiStoreCycles[child.BillingCycleID] {
			continue
		}
		pi, ok := recordIdx[*child.ParentStoreID]
		if !ok {
			continue // parent had no usage this lote; nothing to nest under
		}
		records[pi].ChildItems = append(records[pi].ChildItems, ChildItem{
			ClientID: child.ID,
			Name:     child.TradeName,
			Total:    records[i].Net,
		})
	}
}
