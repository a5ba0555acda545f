package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-console/internal/ai"
	"billing-console/internal/core"
	"billing-console/internal/dispatch"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type appService struct {
	users       core.UserService
	clients     core.ClientService
	lotes       core.LoteService
	adjustments core.AdjustmentService
	dispatcher  *dispatch.Dispatcher
	mailer      dispatch.Mailer
	suggester   ai.SuggestionService
	logger      *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
// dispatcher, mailer and suggester may be nil when the corresponding
// integration is not configured; the operations needing them then fail with
// a clear error.
func NewAppService(
	users core.UserService,
	clients core.ClientService,
	lotes core.LoteService,
	adjustments core.AdjustmentService,
	dispatcher *dispatch.Dispatcher,
	mailer dispatch.Mailer,
	suggester ai.SuggestionService,
	logger *zap.Logger,
) ApplicationService {
	return &appService{
		users:       users,
		clients:     clients,
		lotes:       lotes,
		adjustments: adjustments,
		dispatcher:  dispatcher,
		mailer:      mailer,
		suggester:   suggester,
		logger:      logger,
	}
}

func (s *appService) AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("authentication failed: invalid password")
	}
	return &UserSession{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*core.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *appService) CreateClient(ctx context.Context, req ClientRequest) (*core.Client, error) {
	return s.clients.CreateClient(ctx, clientInput(req))
}

func (s *appService) UpdateClient(ctx context.Context, id int, req ClientRequest) (*core.Client, error) {
	return s.clients.UpdateClient(ctx, id, clientInput(req))
}

func (s *appService) GetClient(ctx context.Context, id int) (*core.Client, error) {
	return s.clients.GetClient(ctx, id)
}

func (s *appService) ListClients(ctx context.Context) ([]core.Client, error) {
	return s.clients.GetRoster(ctx)
}

func (s *appService) DisableClient(ctx context.Context, id int) error {
	return s.clients.DisableClient(ctx, id)
}

func (s *appService) ImportClients(ctx context.Context, filename string, data []byte, billingCycleID int) (*ClientImportResult, error) {
	inputs, summary, err := core.ParseClientUpload(filename, data, billingCycleID)
	if err != nil {
		return nil, err
	}

	result := &ClientImportResult{Summary: summary}
	for _, input := range inputs {
		_, err := s.clients.CreateClient(ctx, input)
		switch {
		case errors.Is(err, core.ErrDuplicateCNPJ):
			result.Duplicates++
		case err != nil:
			return nil, fmt.Errorf("import client %q: %w", input.LegalName, err)
		default:
			result.Created++
		}
	}

	s.logger.Info("client roster imported",
		zap.String("filename", filename),
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("skipped", summary.Skipped),
	)
	return result, nil
}

func clientInput(req ClientRequest) core.ClientInput {
	return core.ClientInput{
		LegalName:      req.LegalName,
		TradeName:      req.TradeName,
		CNPJ:           req.CNPJ,
		AccountingName: req.AccountingName,
		Email:          req.Email,
		BillingCycleID: req.BillingCycleID,
		ParentStoreID:  req.ParentStoreID,
		Street:         req.Street,
		Number:         req.Number,
		District:       req.District,
		City:           req.City,
		State:          req.State,
		ZipCode:        req.ZipCode,
		PaymentTerms:   req.PaymentTerms,
		NoInvoice:      req.NoInvoice,
	}
}

func (s *appService) CreateLote(ctx context.Context, req CreateLoteRequest) (*core.Lote, error) {
	start, err := time.Parse("2006-01-02", req.CycleStart)
	if err != nil {
		return nil, fmt.Errorf("invalid cycle start %q: %w", req.CycleStart, err)
	}
	end, err := time.Parse("2006-01-02", req.CycleEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid cycle end %q: %w", req.CycleEnd, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("cycle end must come after cycle start")
	}
	return s.lotes.CreateLote(ctx, req.Competence, start, end)
}

func (s *appService) ListLotes(ctx context.Context) ([]core.Lote, error) {
	return s.lotes.ListLotes(ctx)
}

func (s *appService) GetLote(ctx context.Context, id int) (*core.Lote, error) {
	return s.lotes.GetLote(ctx, id)
}

func (s *appService) ImportUsage(ctx context.Context, loteID int, filename string, data []byte, parentID int) (*ImportResult, error) {
	lote, err := s.lotes.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if lote.Status != core.LoteStatusOpen {
		return nil, fmt.Errorf("lote %d is %s; uploads are accepted only while OPEN", loteID, lote.Status)
	}

	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, err
	}

	rows, summary, err := core.ParseUsageUpload(filename, data, roster, parentID)
	if err != nil {
		return nil, err
	}

	stored, err := s.lotes.InsertRows(ctx, loteID, rows)
	if err != nil {
		return nil, err
	}

	s.logger.Info("usage upload imported",
		zap.Int("lote_id", loteID),
		zap.String("filename", filename),
		zap.Int("stored", stored),
		zap.Int("matched", summary.Matched),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("skipped", summary.Skipped))

	return &ImportResult{LoteID: loteID, Stored: stored, Summary: summary}, nil
}

func (s *appService) ListUnresolvedRows(ctx context.Context, loteID int) ([]core.UsageRow, error) {
	return s.lotes.ListUnresolved(ctx, loteID)
}

func (s *appService) ResolveRow(ctx context.Context, rowID, clientID int) error {
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		return err
	}
	return s.lotes.ResolveRow(ctx, rowID, clientID)
}

func (s *appService) SuggestRowMatches(ctx context.Context, rowID int) (*SuggestionResult, error) {
	row, err := s.lotes.GetRow(ctx, rowID)
	if err != nil {
		return nil, err
	}
	if row.Status != core.RowStatusRejectedNoMatch {
		return nil, fmt.Errorf("row %d is %s, not awaiting resolution", rowID, row.Status)
	}

	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, err
	}

	result := &SuggestionResult{
		Row:   row,
		Fuzzy: core.SuggestClosest(row.StoreLabel, roster, 3),
	}

	if s.suggester != nil {
		refs := make([]*core.Client, len(roster))
		for i := range roster {
			refs[i] = &roster[i]
		}
		suggestion, err := s.suggester.SuggestMatches(ctx, row.StoreLabel, refs)
		if err != nil {
			// Advisory path: the deterministic candidates stand on their own.
			s.logger.Warn("ai suggestion failed", zap.Int("row_id", rowID), zap.Error(err))
		} else {
			result.AI = suggestion
		}
	}
	return result, nil
}

func (s *appService) ConsolidateLote(ctx context.Context, loteID int) (*ConsolidationResult, error) {
	lote, err := s.lotes.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if lote.Status != core.LoteStatusOpen && lote.Status != core.LoteStatusPendingAdjustments {
		return nil, fmt.Errorf("lote %d is %s and can no longer be reconsolidated", loteID, lote.Status)
	}

	records, rejected, err := s.lotes.ConsolidateLote(ctx, loteID)
	if err != nil {
		return nil, err
	}

	if lote.Status == core.LoteStatusOpen {
		lote, err = s.lotes.AdvanceStatus(ctx, loteID, core.LoteStatusPendingAdjustments)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("lote consolidated",
		zap.Int("lote_id", loteID),
		zap.Int("records", len(records)),
		zap.Int("rejected", len(rejected)))

	return &ConsolidationResult{Lote: lote, Records: records, Rejected: rejected}, nil
}

func (s *appService) GetConsolidation(ctx context.Context, loteID int) (*ConsolidationResult, error) {
	lote, err := s.lotes.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	records, err := s.lotes.GetConsolidated(ctx, loteID)
	if err != nil {
		return nil, err
	}
	rejected, err := s.recomputeRejected(ctx, loteID)
	if err != nil {
		return nil, err
	}
	return &ConsolidationResult{Lote: lote, Records: records, Rejected: rejected}, nil
}

// recomputeRejected re-runs the aggregation in memory to derive the current
// rejected list: registrations fixed since the last consolidation disappear
// from it without touching the persisted records.
func (s *appService) recomputeRejected(ctx context.Context, loteID int) ([]core.RejectedClient, error) {
	rows, err := s.lotes.GetRows(ctx, loteID)
	if err != nil {
		return nil, err
	}
	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, err
	}
	cycles, err := s.lotes.MultiStoreCycles(ctx)
	if err != nil {
		return nil, err
	}
	_, rejected := core.Consolidate(loteID, core.ConsolidateInput{
		Rows:             rows,
		Clients:          clientMap(roster),
		MultiStoreCycles: cycles,
	})
	return rejected, nil
}

func (s *appService) AdvanceLote(ctx context.Context, loteID int, next core.LoteStatus) (*core.Lote, error) {
	return s.lotes.AdvanceStatus(ctx, loteID, next)
}

func (s *appService) CloseLote(ctx context.Context, loteID int) (*core.Lote, error) {
	return s.lotes.CloseLote(ctx, loteID)
}

func (s *appService) RequestLoteDeletion(ctx context.Context, loteID int) (*core.Lote, error) {
	return s.lotes.RequestDeletion(ctx, loteID)
}

func (s *appService) DeleteLote(ctx context.Context, loteID int) error {
	return s.lotes.DeleteLote(ctx, loteID)
}

func (s *appService) CreateAdjustment(ctx context.Context, req AdjustmentRequest) (*core.Adjustment, error) {
	if _, err := s.clients.GetClient(ctx, req.ClientID); err != nil {
		return nil, err
	}
	return s.adjustments.CreateAdjustment(ctx, core.AdjustmentInput{
		ClientID: req.ClientID,
		Type:     core.AdjustmentType(req.Type),
		Value:    req.Value,
		Reason:   req.Reason,
	})
}

func (s *appService) ListAdjustments(ctx context.Context, clientID int, pendingOnly bool) ([]core.Adjustment, error) {
	return s.adjustments.ListAdjustments(ctx, clientID, pendingOnly)
}

func (s *appService) AttachFiscalDocument(ctx context.Context, req FiscalDocumentRequest) (*FiscalDocumentResult, error) {
	if s.dispatcher == nil {
		return nil, fmt.Errorf("document storage is not configured")
	}
	if req.IRRF.IsNegative() {
		return nil, fmt.Errorf("irrf cannot be negative")
	}
	lote, err := s.lotes.GetLote(ctx, req.LoteID)
	if err != nil {
		return nil, err
	}
	if lote.Status != core.LoteStatusAwaitingFiscalData {
		return nil, fmt.Errorf("lote %d is %s; fiscal documents are accepted only while AWAITING_FISCAL_DATA",
			req.LoteID, lote.Status)
	}

	fileID, err := s.dispatcher.UploadDocument(ctx, lote, req.Filename, req.MimeType, req.Data)
	if err != nil {
		return nil, err
	}

	number := dispatch.ExtractInvoiceNumber(req.Filename)
	if number != "" {
		if err := s.lotes.SetInvoiceNumber(ctx, req.LoteID, req.ClientID, number); err != nil {
			return nil, err
		}
	}
	if req.IRRF.IsPositive() {
		if err := s.lotes.SetIRRF(ctx, req.LoteID, req.ClientID, req.IRRF); err != nil {
			return nil, err
		}
	}

	return &FiscalDocumentResult{FileID: fileID, InvoiceNumber: number}, nil
}

func (s *appService) DispatchLote(ctx context.Context, loteID int, dest dispatch.Destination) error {
	if s.dispatcher == nil {
		return fmt.Errorf("dispatch is not configured")
	}
	in, err := s.dispatchInput(ctx, loteID)
	if err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, dest, *in)
}

func (s *appService) dispatchInput(ctx context.Context, loteID int) (*dispatch.Input, error) {
	lote, err := s.lotes.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	records, err := s.lotes.GetConsolidated(ctx, loteID)
	if err != nil {
		return nil, err
	}
	rows, err := s.lotes.GetRows(ctx, loteID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.adjustments.ListAdjustments(ctx, 0, true)
	if err != nil {
		return nil, err
	}
	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, err
	}
	cycles, err := s.lotes.MultiStoreCycles(ctx)
	if err != nil {
		return nil, err
	}

	invoiceNumbers := make(map[int]string)
	for _, r := range records {
		if r.InvoiceNumber != "" {
			invoiceNumbers[r.ClientID] = r.InvoiceNumber
		}
	}

	return &dispatch.Input{
		Lote:             lote,
		Records:          records,
		Rows:             rows,
		Adjustments:      adjustments,
		Clients:          clientMap(roster),
		MultiStoreCycles: cycles,
		InvoiceNumbers:   invoiceNumbers,
	}, nil
}

func (s *appService) ExportWorkbook(ctx context.Context, loteID int, kind ExportKind) (*WorkbookResult, error) {
	lote, err := s.lotes.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	records, err := s.lotes.GetConsolidated(ctx, loteID)
	if err != nil {
		return nil, err
	}
	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, err
	}
	clients := clientMap(roster)

	var (
		data []byte
		name string
	)
	switch kind {
	case ExportInvoice:
		data, err = dispatch.BuildInvoiceWorkbook(lote, records, clients)
		name = fmt.Sprintf("faturamento-%s.xlsx", lote.Competence)
	case ExportStaging:
		data, err = dispatch.BuildStagingWorkbook(lote, records, clients)
		name = fmt.Sprintf("contabilidade-%s.xlsx", lote.Competence)
	case ExportRejected:
		var rejected []core.RejectedClient
		rejected, err = s.recomputeRejected(ctx, loteID)
		if err == nil {
			data, err = dispatch.BuildRejectedWorkbook(lote, rejected)
		}
		name = fmt.Sprintf("rejeitados-%s.xlsx", lote.Competence)
	default:
		return nil, fmt.Errorf("unknown export kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return &WorkbookResult{Filename: name, Data: data}, nil
}

func (s *appService) EmailDocuments(ctx context.Context, loteID int) (*EmailResult, error) {
	if s.mailer == nil {
		return nil, fmt.Errorf("mail delivery is not configured")
	}
	lote, err := s.lotes.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	records, err := s.lotes.GetConsolidated(ctx, loteID)
	if err != nil {
		return nil, err
	}
	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, err
	}
	clients := clientMap(roster)

	result := &EmailResult{}
	for _, r := range records {
		c := clients[r.ClientID]
		if c == nil {
			continue
		}
		if c.Email == "" {
			result.Skipped = append(result.Skipped, c.LegalName)
			continue
		}
		workbook, err := dispatch.BuildStagingWorkbook(lote, []core.ConsolidatedRecord{r},
			map[int]*core.Client{c.ID: c})
		if err != nil {
			return nil, err
		}
		email := dispatch.Email{
			To:      []string{c.Email},
			Subject: fmt.Sprintf("Faturamento — competência %s", lote.Competence),
			HTMLBody: fmt.Sprintf(
				"<p>Prezados,</p><p>Segue em anexo o demonstrativo de faturamento da competência %s. Valor líquido: R$ %s.</p>",
				lote.Competence, core.RoundMoney(r.Net).StringFixed(2)),
			Attachments: []dispatch.EmailAttachment{{
				Filename: fmt.Sprintf("faturamento-%s.xlsx", lote.Competence),
				Data:     workbook,
			}},
		}
		if err := s.mailer.Send(email); err != nil {
			return nil, fmt.Errorf("mail to %s: %w", c.LegalName, err)
		}
		result.Sent++
	}
	return result, nil
}

func clientMap(roster []core.Client) map[int]*core.Client {
	m := make(map[int]*core.Client, len(roster))
	for i := range roster {
		m[roster[i].ID] = &roster[i]
	}
	return m
}
