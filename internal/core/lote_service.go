package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type LoteService interface {
	CreateLote(ctx context.Context, competence string, cycleStart, cycleEnd time.Time) (*Lote, error)
	GetLote(ctx context.Context, id int) (*Lote, error)
	ListLotes(ctx context.Context) ([]Lote, error)
	AdvanceStatus(ctx context.Context, id int, next LoteStatus) (*Lote, error)

	// InsertRows stores freshly imported usage rows for a lote.
	InsertRows(ctx context.Context, loteID int, rows []UsageRow) (int, error)
	// GetRows returns every usage row of the lote, paged past the store's
	// 1000-row query cap.
	GetRows(ctx context.Context, loteID int) ([]UsageRow, error)
	// ListUnresolved returns rows whose store label matched no client.
	ListUnresolved(ctx context.Context, loteID int) ([]UsageRow, error)
	GetRow(ctx context.Context, rowID int) (*UsageRow, error)
	// ResolveRow assigns a client to an unresolved row and validates it.
	ResolveRow(ctx context.Context, rowID, clientID int) error

	// ConsolidateLote aggregates the lote and persists the resulting records,
	// replacing any previous consolidation.
	ConsolidateLote(ctx context.Context, loteID int) ([]ConsolidatedRecord, []RejectedClient, error)
	GetConsolidated(ctx context.Context, loteID int) ([]ConsolidatedRecord, error)
	// SetIRRF records the withheld tax from an external fiscal document and
	// recomputes the settlement value. The NF/NC split is untouched.
	SetIRRF(ctx context.Context, loteID, clientID int, irrf decimal.Decimal) error
	// SetInvoiceNumber stores the NF number extracted from the uploaded
	// fiscal document filename.
	SetInvoiceNumber(ctx context.Context, loteID, clientID int, number string) error

	// CloseLote advances AWAITING_FISCAL_DATA → DONE and, in the same
	// transaction, marks every pending adjustment of the consolidated
	// clients applied, stamped with this lote id.
	CloseLote(ctx context.Context, loteID int) (*Lote, error)

	// SetDriveFolder caches the batch master folder id on the lote row.
	SetDriveFolder(ctx context.Context, loteID int, folderID string) error

	// DeleteLote runs the guarded stored procedure that removes the lote and
	// resets its dependent adjustments. Admin-only; callers gate on role.
	DeleteLote(ctx context.Context, loteID int) error
	// RequestDeletion queues a deletion request for admin review.
	RequestDeletion(ctx context.Context, loteID int) (*Lote, error)

	// MultiStoreCycles returns the billing cycle ids designated for
	// parent/child grouping.
	MultiStoreCycles(ctx context.Context) (map[int]bool, error)
}

type loteService struct {
	pool    *pgxpool.Pool
	clients ClientService
}

// NewLoteService constructs a LoteService backed by PostgreSQL.
func NewLoteService(pool *pgxpool.Pool, clients ClientService) LoteService {
	return &loteService{pool: pool, clients: clients}
}

const loteColumns = `id, competence, cycle_start, cycle_end, status, COALESCE(drive_folder_id, ''), created_at`

func scanLote(row pgx.Row) (*Lote, error) {
	l := &Lote{}
	err := row.Scan(&l.ID, &l.Competence, &l.CycleStart, &l.CycleEnd, &l.Status, &l.DriveFolderID, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *loteService) CreateLote(ctx context.Context, competence string, cycleStart, cycleEnd time.Time) (*Lote, error) {
	l, err := scanLote(s.pool.QueryRow(ctx, `
		INSERT INTO lotes (competence, cycle_start, cycle_end, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+loteColumns,
		competence, cycleStart, cycleEnd, LoteStatusOpen,
	))
	if err != nil {
		return nil, fmt.Errorf("create lote %s: %w", competence, err)
	}
	return l, nil
}

func (s *loteService) GetLote(ctx context.Context, id int) (*Lote, error) {
	l, err := scanLote(s.pool.QueryRow(ctx,
		"SELECT "+loteColumns+" FROM lotes WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("lote %d not found: %w", id, err)
	}
	return l, nil
}

func (s *loteService) ListLotes(ctx context.Context) ([]Lote, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+loteColumns+" FROM lotes ORDER BY cycle_start DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list lotes: %w", err)
	}
	defer rows.Close()

	var lotes []Lote
	for rows.Next() {
		l := Lote{}
		if err := rows.Scan(&l.ID, &l.Competence, &l.CycleStart, &l.CycleEnd,
			&l.Status, &l.DriveFolderID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lote: %w", err)
		}
		lotes = append(lotes, l)
	}
	return lotes, rows.Err()
}

// AdvanceStatus moves the lote one step forward. Backward or skipping moves
// are rejected before touching the row.
func (s *loteService) AdvanceStatus(ctx context.Context, id int, next LoteStatus) (*Lote, error) {
	lote, err := s.GetLote(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(lote.Status, next) {
		return nil, fmt.Errorf("lote %d: invalid transition %s → %s", id, lote.Status, next)
	}
	l, err := scanLote(s.pool.QueryRow(ctx, `
		UPDATE lotes SET status = $2 WHERE id = $1 AND status = $3
		RETURNING `+loteColumns,
		id, next, lote.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("advance lote %d to %s: %w", id, next, err)
	}
	return l, nil
}

func (s *loteService) InsertRows(ctx context.Context, loteID int, usage []UsageRow) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert rows: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, r := range usage {
		_, err := tx.Exec(ctx, `
			INSERT INTO usage_rows (lote_id, client_id, store_id, start_at, end_at, value, status, store_label)
			VALUES ($1, NULLIF($2, 0), NULLIF($3, 0), $4, $5, $6, $7, $8)`,
			loteID, r.ClientID, r.StoreID, r.Start, r.End, r.Value, r.Status, r.StoreLabel,
		)
		if err != nil {
			return 0, fmt.Errorf("insert usage row: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert rows: %w", err)
	}
	return inserted, nil
}

func (s *loteService) GetRows(ctx context.Context, loteID int) ([]UsageRow, error) {
	return FetchAllPages(MaxPageRows, func(limit, offset int) ([]UsageRow, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT id, lote_id, COALESCE(client_id, 0), COALESCE(store_id, 0),
			       start_at, end_at, value, status, COALESCE(store_label, '')
			FROM usage_rows
			WHERE lote_id = $1
			ORDER BY id
			LIMIT $2 OFFSET $3`,
			loteID, limit, offset,
		)
		if err != nil {
			return nil, fmt.Errorf("fetch usage rows page: %w", err)
		}
		defer rows.Close()
		return scanUsageRows(rows)
	})
}

func (s *loteService) GetRow(ctx context.Context, rowID int) (*UsageRow, error) {
	r := &UsageRow{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, lote_id, COALESCE(client_id, 0), COALESCE(store_id, 0),
		       start_at, end_at, value, status, COALESCE(store_label, '')
		FROM usage_rows
		WHERE id = $1`,
		rowID,
	).Scan(&r.ID, &r.LoteID, &r.ClientID, &r.StoreID, &r.Start, &r.End,
		&r.Value, &r.Status, &r.StoreLabel)
	if err != nil {
		return nil, fmt.Errorf("usage row %d not found: %w", rowID, err)
	}
	return r, nil
}

func (s *loteService) ListUnresolved(ctx context.Context, loteID int) ([]UsageRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, lote_id, COALESCE(client_id, 0), COALESCE(store_id, 0),
		       start_at, end_at, value, status, COALESCE(store_label, '')
		FROM usage_rows
		WHERE lote_id = $1 AND status = $2
		ORDER BY id`,
		loteID, RowStatusRejectedNoMatch,
	)
	if err != nil {
		return nil, fmt.Errorf("list unresolved rows: %w", err)
	}
	defer rows.Close()
	return scanUsageRows(rows)
}

func (s *loteService) ResolveRow(ctx context.Context, rowID, clientID int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE usage_rows SET client_id = $2, store_id = COALESCE(store_id, $2), status = $3
		WHERE id = $1 AND status = $4`,
		rowID, clientID, RowStatusValidated, RowStatusRejectedNoMatch,
	)
	if err != nil {
		return fmt.Errorf("resolve row %d: %w", rowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("row %d is not awaiting resolution", rowID)
	}
	return nil
}

// ConsolidateLote pulls the full inputs (paged), runs the aggregation and
// replaces the lote's persisted records in one transaction. IRRF values
// already entered survive re-consolidation.
func (s *loteService) ConsolidateLote(ctx context.Context, loteID int) ([]ConsolidatedRecord, []RejectedClient, error) {
	usage, err := s.GetRows(ctx, loteID)
	if err != nil {
		return nil, nil, err
	}

	roster, err := s.clients.GetRoster(ctx)
	if err != nil {
		return nil, nil, err
	}
	clients := make(map[int]*Client, len(roster))
	clientIDs := make([]int, 0, len(roster))
	for i := range roster {
		clients[roster[i].ID] = &roster[i]
		clientIDs = append(clientIDs, roster[i].ID)
	}

	adjustments, err := s.pendingAdjustments(ctx, clientIDs)
	if err != nil {
		return nil, nil, err
	}

	cycles, err := s.MultiStoreCycles(ctx)
	if err != nil {
		return nil, nil, err
	}

	irrf, err := s.existingIRRF(ctx, loteID)
	if err != nil {
		return nil, nil, err
	}

	records, rejected := Consolidate(loteID, ConsolidateInput{
		Rows:             usage,
		Adjustments:      adjustments,
		Clients:          clients,
		MultiStoreCycles: cycles,
		IRRF:             irrf,
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin consolidation: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM consolidated_records WHERE lote_id = $1", loteID); err != nil {
		return nil, nil, fmt.Errorf("clear previous consolidation: %w", err)
	}
	for i := range records {
		r := &records[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO consolidated_records
				(lote_id, client_id, base, additions, deductions, net,
				 invoice_share, credit_note_share, irrf, settlement)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			r.LoteID, r.ClientID, r.Base, r.Additions, r.Deductions, r.Net,
			r.InvoiceShare, r.CreditNoteShare, r.IRRF, r.Settlement,
		).Scan(&r.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("insert consolidated record for client %d: %w", r.ClientID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit consolidation: %w", err)
	}
	return records, rejected, nil
}

func (s *loteService) GetConsolidated(ctx context.Context, loteID int) ([]ConsolidatedRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, lote_id, client_id, base, additions, deductions, net,
		       invoice_share, credit_note_share, irrf, settlement,
		       COALESCE(invoice_number, '')
		FROM consolidated_records
		WHERE lote_id = $1
		ORDER BY id`,
		loteID,
	)
	if err != nil {
		return nil, fmt.Errorf("get consolidated records: %w", err)
	}
	defer rows.Close()

	var records []ConsolidatedRecord
	for rows.Next() {
		r := ConsolidatedRecord{}
		if err := rows.Scan(&r.ID, &r.LoteID, &r.ClientID, &r.Base, &r.Additions,
			&r.Deductions, &r.Net, &r.InvoiceShare, &r.CreditNoteShare,
			&r.IRRF, &r.Settlement, &r.InvoiceNumber); err != nil {
			return nil, fmt.Errorf("scan consolidated record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *loteService) SetIRRF(ctx context.Context, loteID, clientID int, irrf decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consolidated_records
		SET irrf = $3, settlement = net - $3
		WHERE lote_id = $1 AND client_id = $2`,
		loteID, clientID, irrf,
	)
	if err != nil {
		return fmt.Errorf("set irrf for client %d: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no consolidated record for lote %d client %d", loteID, clientID)
	}
	return nil
}

func (s *loteService) SetInvoiceNumber(ctx context.Context, loteID, clientID int, number string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consolidated_records
		SET invoice_number = $3
		WHERE lote_id = $1 AND client_id = $2`,
		loteID, clientID, number,
	)
	if err != nil {
		return fmt.Errorf("set invoice number for client %d: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no consolidated record for lote %d client %d", loteID, clientID)
	}
	return nil
}

// CloseLote is the only place adjustments become applied: the status advance
// and the adjustment stamping commit together or not at all.
func (s *loteService) CloseLote(ctx context.Context, loteID int) (*Lote, error) {
	lote, err := s.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(lote.Status, LoteStatusDone) {
		return nil, fmt.Errorf("lote %d: cannot close from status %s", loteID, lote.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin close lote: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE adjustments
		SET applied = true, applied_lote_id = $1
		WHERE applied = false
		  AND client_id IN (SELECT client_id FROM consolidated_records WHERE lote_id = $1)`,
		loteID,
	); err != nil {
		return nil, fmt.Errorf("apply adjustments for lote %d: %w", loteID, err)
	}

	closed, err := scanLote(tx.QueryRow(ctx, `
		UPDATE lotes SET status = $2 WHERE id = $1 AND status = $3
		RETURNING `+loteColumns,
		loteID, LoteStatusDone, lote.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("close lote %d: %w", loteID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit close lote: %w", err)
	}
	return closed, nil
}

func (s *loteService) SetDriveFolder(ctx context.Context, loteID int, folderID string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE lotes SET drive_folder_id = $2 WHERE id = $1", loteID, folderID)
	if err != nil {
		return fmt.Errorf("cache drive folder for lote %d: %w", loteID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lote %d not found", loteID)
	}
	return nil
}

// DeleteLote delegates to the guarded stored procedure, which removes usage
// rows and consolidated records and resets dependent adjustments back to
// pending in one server-side transaction.
func (s *loteService) DeleteLote(ctx context.Context, loteID int) error {
	if _, err := s.pool.Exec(ctx, "CALL sp_delete_lote($1)", loteID); err != nil {
		return fmt.Errorf("delete lote %d: %w", loteID, err)
	}
	return nil
}

func (s *loteService) RequestDeletion(ctx context.Context, loteID int) (*Lote, error) {
	lote, err := s.GetLote(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(lote.Status, LoteStatusDeletionRequested) {
		return nil, fmt.Errorf("lote %d: deletion already requested", loteID)
	}
	l, err := scanLote(s.pool.QueryRow(ctx, `
		UPDATE lotes SET status = $2 WHERE id = $1
		RETURNING `+loteColumns,
		loteID, LoteStatusDeletionRequested,
	))
	if err != nil {
		return nil, fmt.Errorf("request deletion of lote %d: %w", loteID, err)
	}
	return l, nil
}

func (s *loteService) MultiStoreCycles(ctx context.Context) (map[int]bool, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id FROM billing_cycles WHERE multi_store = true")
	if err != nil {
		return nil, fmt.Errorf("fetch multi-store cycles: %w", err)
	}
	defer rows.Close()

	cycles := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cycle id: %w", err)
		}
		cycles[id] = true
	}
	return cycles, rows.Err()
}

func (s *loteService) pendingAdjustments(ctx context.Context, clientIDs []int) ([]Adjustment, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, type, value, reason, applied, applied_lote_id, created_at
		FROM adjustments
		WHERE applied = false AND client_id = ANY($1)
		ORDER BY id`,
		clientIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch pending adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		a := Adjustment{}
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Type, &a.Value, &a.Reason,
			&a.Applied, &a.AppliedLoteID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// existingIRRF preserves fiscal values already entered for this lote across
// a re-consolidation.
func (s *loteService) existingIRRF(ctx context.Context, loteID int) (map[int]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT client_id, irrf FROM consolidated_records
		WHERE lote_id = $1 AND irrf <> 0`,
		loteID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch existing irrf: %w", err)
	}
	defer rows.Close()

	irrf := make(map[int]decimal.Decimal)
	for rows.Next() {
		var clientID int
		var v decimal.Decimal
		if err := rows.Scan(&clientID, &v); err != nil {
			return nil, fmt.Errorf("scan irrf: %w", err)
		}
		irrf[clientID] = v
	}
	return irrf, rows.Err()
}

func scanUsageRows(rows pgx.Rows) ([]UsageRow, error) {
	var usage []UsageRow
	for rows.Next() {
		r := UsageRow{}
		if err := rows.Scan(&r.ID, &r.LoteID, &r.ClientID, &r.StoreID,
			&r.Start, &r.End, &r.Value, &r.Status, &r.StoreLabel); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		usage = append(usage, r)
	}
	return usage, rows.Err()
}
