package app

import (
	"context"

	"billing-console/internal/core"
	"billing-console/internal/dispatch"
)

// ApplicationService is the single interface the web adapter calls. It
// decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error)

	// GetUser returns the user profile by ID.
	GetUser(ctx context.Context, userID int) (*core.User, error)

	// CreateClient registers a new store. CNPJ uniqueness is enforced among
	// active clients only.
	CreateClient(ctx context.Context, req ClientRequest) (*core.Client, error)

	// UpdateClient rewrites the registration of an existing client.
	UpdateClient(ctx context.Context, id int, req ClientRequest) (*core.Client, error)

	GetClient(ctx context.Context, id int) (*core.Client, error)

	// ListClients returns the full active roster.
	ListClients(ctx context.Context) ([]core.Client, error)

	// DisableClient soft-disables a client, freeing its CNPJ for reuse.
	DisableClient(ctx context.Context, id int) error

	// ImportClients bulk-loads a roster spreadsheet. Rows whose CNPJ already
	// belongs to an active client are counted as duplicates, not errors.
	ImportClients(ctx context.Context, filename string, data []byte, billingCycleID int) (*ClientImportResult, error)

	// CreateLote opens a new billing batch for a competence period.
	CreateLote(ctx context.Context, req CreateLoteRequest) (*core.Lote, error)

	ListLotes(ctx context.Context) ([]core.Lote, error)
	GetLote(ctx context.Context, id int) (*core.Lote, error)

	// ImportUsage parses an uploaded partner spreadsheet, matches its rows
	// against the roster and stores them on the lote. parentID of 0 means no
	// franchise filter.
	ImportUsage(ctx context.Context, loteID int, filename string, data []byte, parentID int) (*ImportResult, error)

	// ListUnresolvedRows returns rows whose store label matched no client.
	ListUnresolvedRows(ctx context.Context, loteID int) ([]core.UsageRow, error)

	// ResolveRow assigns a client to an unresolved row by hand.
	ResolveRow(ctx context.Context, rowID, clientID int) error

	// SuggestRowMatches proposes roster candidates for an unresolved row,
	// combining the fuzzy matcher with the advisory AI suggester when one is
	// configured.
	SuggestRowMatches(ctx context.Context, rowID int) (*SuggestionResult, error)

	// ConsolidateLote aggregates the lote into per-client records, replacing
	// any previous consolidation, and advances OPEN → PENDING_ADJUSTMENTS.
	ConsolidateLote(ctx context.Context, loteID int) (*ConsolidationResult, error)

	// GetConsolidation returns the persisted consolidation with the rejected
	// list recomputed from current roster state.
	GetConsolidation(ctx context.Context, loteID int) (*ConsolidationResult, error)

	// AdvanceLote moves the lote one step forward in its lifecycle.
	AdvanceLote(ctx context.Context, loteID int, next core.LoteStatus) (*core.Lote, error)

	// CloseLote finishes the batch: AWAITING_FISCAL_DATA → DONE and every
	// pending adjustment of the consolidated clients is marked applied, in
	// one transaction.
	CloseLote(ctx context.Context, loteID int) (*core.Lote, error)

	// RequestLoteDeletion flags the lote for admin review.
	RequestLoteDeletion(ctx context.Context, loteID int) (*core.Lote, error)

	// DeleteLote removes the lote and resets its dependent adjustments.
	// Callers must gate on the admin role.
	DeleteLote(ctx context.Context, loteID int) error

	CreateAdjustment(ctx context.Context, req AdjustmentRequest) (*core.Adjustment, error)

	// ListAdjustments returns adjustments, optionally for one client and/or
	// pending ones only. clientID of 0 means all clients.
	ListAdjustments(ctx context.Context, clientID int, pendingOnly bool) ([]core.Adjustment, error)

	// AttachFiscalDocument stores an uploaded fiscal document in the lote's
	// master folder, extracts the invoice number from its filename and
	// records the withheld tax on the client's consolidated record.
	AttachFiscalDocument(ctx context.Context, req FiscalDocumentRequest) (*FiscalDocumentResult, error)

	// DispatchLote fans the consolidation out to a downstream destination.
	DispatchLote(ctx context.Context, loteID int, dest dispatch.Destination) error

	// ExportWorkbook renders one of the spreadsheet exports of the lote.
	ExportWorkbook(ctx context.Context, loteID int, kind ExportKind) (*WorkbookResult, error)

	// EmailDocuments mails each consolidated client its billing workbook.
	// Clients without a registered e-mail are skipped and reported.
	EmailDocuments(ctx context.Context, loteID int) (*EmailResult, error)
}
