package app

import (
	"github.com/shopspring/decimal"
)

// ClientRequest is the input for creating or updating a client registration.
type ClientRequest struct {
	LegalName      string
	TradeName      string
	CNPJ           string
	AccountingName string
	Email          string
	BillingCycleID int
	ParentStoreID  *int
	Street         string
	Number         string
	District       string
	City           string
	State          string
	ZipCode        string
	PaymentTerms   int
	NoInvoice      bool
}

// CreateLoteRequest is the input for opening a billing batch.
type CreateLoteRequest struct {
	Competence string // YYYY-MM
	CycleStart string // YYYY-MM-DD
	CycleEnd   string // YYYY-MM-DD
}

// AdjustmentRequest is the input for recording a manual surcharge or
// discount.
type AdjustmentRequest struct {
	ClientID int
	Type     string // "ACRESCIMO" or "DESCONTO"
	Value    decimal.Decimal
	Reason   string
}

// FiscalDocumentRequest is the input for attaching a client's fiscal
// document to a lote.
type FiscalDocumentRequest struct {
	LoteID   int
	ClientID int
	Filename string
	MimeType string
	Data     []byte
	IRRF     decimal.Decimal
}

// ExportKind selects one of the spreadsheet exports.
type ExportKind string

const (
	ExportInvoice  ExportKind = "invoice"
	ExportStaging  ExportKind = "staging"
	ExportRejected ExportKind = "rejected"
)
