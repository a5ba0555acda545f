package app

import (
	"billing-console/internal/ai"
	"billing-console/internal/core"
)

// UserSession is returned by AuthenticateUser.
type UserSession struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ImportResult is returned by ImportUsage.
type ImportResult struct {
	LoteID  int                `json:"lote_id"`
	Stored  int                `json:"stored"`
	Summary core.ImportSummary `json:"summary"`
}

// ClientImportResult is returned by ImportClients.
type ClientImportResult struct {
	Created    int                      `json:"created"`
	Duplicates int                      `json:"duplicates"`
	Summary    core.ClientImportSummary `json:"summary"`
}

// ConsolidationResult is returned by ConsolidateLote and GetConsolidation.
type ConsolidationResult struct {
	Lote     *core.Lote                `json:"lote"`
	Records  []core.ConsolidatedRecord `json:"records"`
	Rejected []core.RejectedClient     `json:"rejected"`
}

// SuggestionResult is returned by SuggestRowMatches. Fuzzy candidates come
// from the deterministic closest-match pass; AI holds the advisory model
// answer when a suggester is configured.
type SuggestionResult struct {
	Row   *core.UsageRow      `json:"row"`
	Fuzzy []core.Client       `json:"fuzzy"`
	AI    *ai.MatchSuggestion `json:"ai,omitempty"`
}

// FiscalDocumentResult is returned by AttachFiscalDocument.
type FiscalDocumentResult struct {
	FileID        string `json:"file_id"`
	InvoiceNumber string `json:"invoice_number"`
}

// WorkbookResult is returned by ExportWorkbook.
type WorkbookResult struct {
	Filename string
	Data     []byte
}

// EmailResult is returned by EmailDocuments.
type EmailResult struct {
	Sent    int      `json:"sent"`
	Skipped []string `json:"skipped"` // clients without a registered e-mail
}
