package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AdjustmentInput is the field set for registering a manual surcharge or
// discount.
type AdjustmentInput struct {
	ClientID int
	Type     AdjustmentType
	Value    decimal.Decimal
	Reason   string
}

type AdjustmentService interface {
	CreateAdjustment(ctx context.Context, input AdjustmentInput) (*Adjustment, error)
	// ListAdjustments returns adjustments, newest first. clientID of 0 means
	// all clients; pendingOnly restricts to unapplied ones.
	ListAdjustments(ctx context.Context, clientID int, pendingOnly bool) ([]Adjustment, error)
}

type adjustmentService struct {
	pool *pgxpool.Pool
}

// NewAdjustmentService constructs an AdjustmentService backed by PostgreSQL.
func NewAdjustmentService(pool *pgxpool.Pool) AdjustmentService {
	return &adjustmentService{pool: pool}
}

func (s *adjustmentService) CreateAdjustment(ctx context.Context, input AdjustmentInput) (*Adjustment, error) {
	if input.Type != AdjustmentSurcharge && input.Type != AdjustmentDiscount {
		return nil, fmt.Errorf("unknown adjustment type %q", input.Type)
	}
	if !input.Value.IsPositive() {
		return nil, fmt.Errorf("adjustment value must be positive, got %s", input.Value)
	}
	if input.Reason == "" {
		return nil, fmt.Errorf("adjustment reason is required")
	}

	a := &Adjustment{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO adjustments (client_id, type, value, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, client_id, type, value, reason, applied, applied_lote_id, created_at`,
		input.ClientID, input.Type, input.Value, input.Reason,
	).Scan(&a.ID, &a.ClientID, &a.Type, &a.Value, &a.Reason,
		&a.Applied, &a.AppliedLoteID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create adjustment for client %d: %w", input.ClientID, err)
	}
	return a, nil
}

func (s *adjustmentService) ListAdjustments(ctx context.Context, clientID int, pendingOnly bool) ([]Adjustment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, type, value, reason, applied, applied_lote_id, created_at
		FROM adjustments
		WHERE ($1 = 0 OR client_id = $1)
		  AND (NOT $2 OR applied = false)
		ORDER BY created_at DESC, id DESC`,
		clientID, pendingOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
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
