package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientInput is the mutable field set for creating or updating a client.
type ClientInput struct {
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

// ErrDuplicateCNPJ signals a create/update that would break CNPJ uniqueness
// among active clients.
var ErrDuplicateCNPJ = errors.New("another active client already uses this CNPJ")

type ClientService interface {
	CreateClient(ctx context.Context, input ClientInput) (*Client, error)
	UpdateClient(ctx context.Context, id int, input ClientInput) (*Client, error)
	GetClient(ctx context.Context, id int) (*Client, error)
	// GetRoster returns every active client, paged past the store's query
	// cap, ordered by id.
	GetRoster(ctx context.Context) ([]Client, error)
	// DisableClient soft-disables; historical lotes keep referencing the row.
	DisableClient(ctx context.Context, id int) error
}

type clientService struct {
	pool *pgxpool.Pool
}

// NewClientService constructs a ClientService backed by PostgreSQL.
func NewClientService(pool *pgxpool.Pool) ClientService {
	return &clientService{pool: pool}
}

const clientColumns = `id, legal_name, trade_name, cnpj, accounting_name, email,
	billing_cycle_id, parent_store_id, street, number, district, city, state,
	zip_code, payment_terms_days, no_invoice, is_active, created_at, disabled_at`

func scanClient(row pgx.Row) (*Client, error) {
	c := &Client{}
	err := row.Scan(
		&c.ID, &c.LegalName, &c.TradeName, &c.CNPJ, &c.AccountingName, &c.Email,
		&c.BillingCycleID, &c.ParentStoreID, &c.Street, &c.Number, &c.District,
		&c.City, &c.State, &c.ZipCode, &c.PaymentTerms, &c.NoInvoice,
		&c.IsActive, &c.CreatedAt, &c.DisabledAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateClient inserts a new client. The CNPJ is normalized to digits before
// the uniqueness check and the insert, so matching always compares canonical
// values.
func (s *clientService) CreateClient(ctx context.Context, input ClientInput) (*Client, error) {
	cnpj := NormalizeCNPJ(input.CNPJ)
	if err := s.checkCNPJ(ctx, cnpj, 0); err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	if paymentTerms == 0 {
		paymentTerms = 30
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO clients (legal_name, trade_name, cnpj, accounting_name, email,
		                     billing_cycle_id, parent_store_id, street, number,
		                     district, city, state, zip_code, payment_terms_days, no_invoice)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+clientColumns,
		input.LegalName, input.TradeName, cnpj, input.AccountingName, input.Email,
		input.BillingCycleID, input.ParentStoreID, input.Street, input.Number,
		input.District, input.City, input.State, input.ZipCode, paymentTerms, input.NoInvoice,
	)
	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("create client %q: %w", input.LegalName, err)
	}
	return c, nil
}

// UpdateClient overwrites the mutable fields of an existing client.
func (s *clientService) UpdateClient(ctx context.Context, id int, input ClientInput) (*Client, error) {
	cnpj := NormalizeCNPJ(input.CNPJ)
	if err := s.checkCNPJ(ctx, cnpj, id); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE clients
		SET legal_name = $2, trade_name = $3, cnpj = $4, accounting_name = $5,
		    email = $6, billing_cycle_id = $7, parent_store_id = $8, street = $9,
		    number = $10, district = $11, city = $12, state = $13, zip_code = $14,
		    payment_terms_days = $15, no_invoice = $16
		WHERE id = $1
		RETURNING `+clientColumns,
		id, input.LegalName, input.TradeName, cnpj, input.AccountingName,
		input.Email, input.BillingCycleID, input.ParentStoreID, input.Street,
		input.Number, input.District, input.City, input.State, input.ZipCode,
		input.PaymentTerms, input.NoInvoice,
	)
	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("update client %d: %w", id, err)
	}
	return c, nil
}

func (s *clientService) GetClient(ctx context.Context, id int) (*Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("client %d not found: %w", id, err)
	}
	return c, nil
}

func (s *clientService) GetRoster(ctx context.Context) ([]Client, error) {
	return FetchAllPages(MaxPageRows, func(limit, offset int) ([]Client, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT `+clientColumns+`
			FROM clients
			WHERE is_active = true
			ORDER BY id
			LIMIT $1 OFFSET $2`,
			limit, offset,
		)
		if err != nil {
			return nil, fmt.Errorf("fetch roster page: %w", err)
		}
		defer rows.Close()

		var page []Client
		for rows.Next() {
			c := Client{}
			if err := rows.Scan(
				&c.ID, &c.LegalName, &c.TradeName, &c.CNPJ, &c.AccountingName,
				&c.Email, &c.BillingCycleID, &c.ParentStoreID, &c.Street, &c.Number,
				&c.District, &c.City, &c.State, &c.ZipCode, &c.PaymentTerms,
				&c.NoInvoice, &c.IsActive, &c.CreatedAt, &c.DisabledAt,
			); err != nil {
				return nil, fmt.Errorf("scan client: %w", err)
			}
			page = append(page, c)
		}
		return page, rows.Err()
	})
}

func (s *clientService) DisableClient(ctx context.Context, id int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clients SET is_active = false, disabled_at = NOW()
		WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("disable client %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %d not found or already disabled", id)
	}
	return nil
}

// checkCNPJ enforces CNPJ uniqueness among active clients. excludeID skips
// the client being updated.
func (s *clientService) checkCNPJ(ctx context.Context, cnpj string, excludeID int) error {
	if cnpj == "" {
		return nil
	}
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM clients
		WHERE cnpj = $1 AND is_active = true AND id <> $2`,
		cnpj, excludeID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check cnpj: %w", err)
	}
	if count > 0 {
		return ErrDuplicateCNPJ
	}
	return nil
}
