package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoteStatus is the lifecycle state of a billing batch. Transitions move
// strictly forward (OPEN → PENDING_ADJUSTMENTS → AWAITING_FISCAL_DATA → DONE);
// the only exception is the admin-only deletion path.
type LoteStatus string

const (
	LoteStatusOpen               LoteStatus = "OPEN"
	LoteStatusPendingAdjustments LoteStatus = "PENDING_ADJUSTMENTS"
	LoteStatusAwaitingFiscalData LoteStatus = "AWAITING_FISCAL_DATA"
	LoteStatusDone               LoteStatus = "DONE"
	// DELETION_REQUESTED is queued by non-admin staff; only an admin turns it
	// into an actual delete.
	LoteStatusDeletionRequested LoteStatus = "DELETION_REQUESTED"
)

// loteStatusRank orders the forward lifecycle for transition checks.
var loteStatusRank = map[LoteStatus]int{
	LoteStatusOpen:               0,
	LoteStatusPendingAdjustments: 1,
	LoteStatusAwaitingFiscalData: 2,
	LoteStatusDone:               3,
}

// CanTransition reports whether a lote may move from from to next.
// Forward-only, one step at a time. DELETION_REQUESTED may be entered from
// any other state but is never left except by the admin deletion path.
func CanTransition(from, next LoteStatus) bool {
	if next == LoteStatusDeletionRequested {
		return from != LoteStatusDeletionRequested
	}
	a, ok := loteStatusRank[from]
	if !ok {
		return false
	}
	b, ok := loteStatusRank[next]
	if !ok {
		return false
	}
	return b == a+1
}

// RowStatus is the validation state of a raw usage row. Only VALIDATED rows
// enter consolidation.
type RowStatus string

const (
	RowStatusValidated       RowStatus = "VALIDATED"
	RowStatusPending         RowStatus = "PENDING"
	RowStatusRejectedNoMatch RowStatus = "REJECTED_NO_MATCH"
	RowStatusRejectedInvalid RowStatus = "REJECTED_INVALID"
)

// AdjustmentType distinguishes manual surcharges from discounts.
type AdjustmentType string

const (
	AdjustmentSurcharge AdjustmentType = "ACRESCIMO"
	AdjustmentDiscount  AdjustmentType = "DESCONTO"
)

// Client is a registered billing client. CNPJ is stored digits-only and is
// unique per active client; AccountingName is the alias the invoicing
// integration knows the client by. ParentStoreID links a franchise child to
// its loja mãe for grouped dispatch.
type Client struct {
	ID             int        `json:"id"`
	LegalName      string     `json:"legal_name"`
	TradeName      string     `json:"trade_name"`
	CNPJ           string     `json:"cnpj"`
	AccountingName string     `json:"accounting_name"`
	Email          string     `json:"email"`
	BillingCycleID int        `json:"billing_cycle_id"`
	ParentStoreID  *int       `json:"parent_store_id,omitempty"`
	Street         string     `json:"street"`
	Number         string     `json:"number"`
	District       string     `json:"district"`
	City           string     `json:"city"`
	State          string     `json:"state"`
	ZipCode        string     `json:"zip_code"`
	PaymentTerms   int        `json:"payment_terms_days"`
	NoInvoice      bool       `json:"no_invoice"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
}

// HasCompleteAddress reports whether the client carries every fiscal address
// field the invoicing integration requires. Clients failing this check are
// excluded from consolidation and surfaced on the rejected list.
func (c *Client) HasCompleteAddress() bool {
	return c.Street != "" && c.Number != "" && c.District != "" &&
		c.City != "" && c.State != "" && c.ZipCode != ""
}

// Lote is one billing batch: a competence period, its raw rows and, once
// processed, the consolidated records. DriveFolderID caches the batch master
// folder so repeated dispatches reuse it instead of creating duplicates.
type Lote struct {
	ID            int        `json:"id"`
	Competence    string     `json:"competence"` // YYYY-MM
	CycleStart    time.Time  `json:"cycle_start"`
	CycleEnd      time.Time  `json:"cycle_end"`
	Status        LoteStatus `json:"status"`
	DriveFolderID string     `json:"drive_folder_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// UsageRow is one billable unit of service inside a lote. StoreID is the
// store that actually executed the work and may differ from ClientID for
// franchise groupings. Immutable once VALIDATED.
type UsageRow struct {
	ID       int             `json:"id"`
	LoteID   int             `json:"lote_id"`
	ClientID int             `json:"client_id"`
	StoreID  int             `json:"store_id"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Value    decimal.Decimal `json:"value"`
	Status   RowStatus       `json:"status"`
	// StoreLabel keeps the raw spreadsheet text that matched (or failed to
	// match) a client, for the manual-resolution screen.
	StoreLabel string `json:"store_label,omitempty"`
}

// Adjustment is a manual surcharge or discount for a client. It is counted
// toward consolidation exactly once: closing a lote marks every pending
// adjustment of the included clients applied, stamped with the closing lote.
type Adjustment struct {
	ID            int             `json:"id"`
	ClientID      int             `json:"client_id"`
	Type          AdjustmentType  `json:"type"`
	Value         decimal.Decimal `json:"value"`
	Reason        string          `json:"reason"`
	Applied       bool            `json:"applied"`
	AppliedLoteID *int            `json:"applied_lote_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ConsolidatedRecord is the derived per-(lote, client) billing figure set.
// InvoiceShare + CreditNoteShare equals Net to rounding; Settlement is
// Net - IRRF.
type ConsolidatedRecord struct {
	ID              int             `json:"id"`
	LoteID          int             `json:"lote_id"`
	ClientID        int             `json:"client_id"`
	Base            decimal.Decimal `json:"base"`
	Additions       decimal.Decimal `json:"additions"`
	Deductions      decimal.Decimal `json:"deductions"`
	Net             decimal.Decimal `json:"net"`
	InvoiceShare    decimal.Decimal `json:"invoice_share"`     // NF, 11.5% of net
	CreditNoteShare decimal.Decimal `json:"credit_note_share"` // NC, 88.5% of net
	IRRF            decimal.Decimal `json:"irrf"`
	Settlement      decimal.Decimal `json:"settlement"`
	// InvoiceNumber is extracted from the fiscal document filename once the
	// document arrives. Reset by re-consolidation.
	InvoiceNumber string `json:"invoice_number,omitempty"`
	// ChildItems carries descriptive line items of filial stores nested under
	// a loja mãe. Child totals are reported here only; they never sum into
	// the parent's own figures.
	ChildItems []ChildItem `json:"child_items,omitempty"`
}

// ChildItem is one filial store's descriptive line under its parent.
type ChildItem struct {
	ClientID int             `json:"client_id"`
	Name     string          `json:"name"`
	Total    decimal.Decimal `json:"total"`
}

// RejectedClient is a client excluded from consolidation, with the
// human-readable reason for manual follow-up.
type RejectedClient struct {
	ClientID int             `json:"client_id"`
	Name     string          `json:"name"`
	Reason   string          `json:"reason"`
	Total    decimal.Decimal `json:"total"`
}

// Rejection reasons surfaced on the rejected list.
const (
	ReasonMissingRegistration = "missing registration"
	ReasonInvalidStatus       = "invalid status"
	ReasonIncompleteAddress   = "incomplete address fields"
)

// User is a staff account. Role gates the admin-only paths (lote deletion).
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // "admin" or "staff"
	CreatedAt    time.Time `json:"created_at"`
}
