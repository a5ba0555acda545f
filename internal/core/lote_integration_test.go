package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"billing-console/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE consolidated_records, usage_rows, adjustments, lotes, clients, billing_cycles RESTART IDENTITY CASCADE;

		INSERT INTO billing_cycles (id, name, multi_store) VALUES (1, 'Mensal', false), (2, 'Franquia', true);

		INSERT INTO clients (legal_name, trade_name, cnpj, accounting_name, email, billing_cycle_id,
		                     street, number, district, city, state, zip_code)
		VALUES
			('Padaria Estrela LTDA', 'Estrela', '11222333000181', 'ESTRELA MATRIZ', 'estrela@example.com', 1,
			 'Rua A', '100', 'Centro', 'São Paulo', 'SP', '01000-000'),
			('Mercado Sol SA', 'Mercado Sol', '44555666000172', 'SOL CENTRO', 'sol@example.com', 1,
			 'Rua B', '200', 'Centro', 'São Paulo', 'SP', '01000-001');
	`)
	require.NoError(t, err)
	return pool
}

func TestLoteService_LifecycleAndClose(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	clients := core.NewClientService(pool)
	adjustments := core.NewAdjustmentService(pool)
	lotes := core.NewLoteService(pool, clients)

	lote, err := lotes.CreateLote(ctx, "2025-01",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, core.LoteStatusOpen, lote.Status)

	_, err = lotes.InsertRows(ctx, lote.ID, []core.UsageRow{
		{ClientID: 1, StoreID: 1, Start: lote.CycleStart, End: lote.CycleStart,
			Value: decimal.RequireFromString("1000"), Status: core.RowStatusValidated},
	})
	require.NoError(t, err)

	_, err = adjustments.CreateAdjustment(ctx, core.AdjustmentInput{
		ClientID: 1, Type: core.AdjustmentSurcharge,
		Value: decimal.RequireFromString("100"), Reason: "hora extra",
	})
	require.NoError(t, err)

	records, rejected, err := lotes.ConsolidateLote(ctx, lote.ID)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, records, 1)
	assert.True(t, records[0].Net.Equal(decimal.RequireFromString("1100")))

	// Backward and skipping transitions are rejected.
	_, err = lotes.AdvanceStatus(ctx, lote.ID, core.LoteStatusDone)
	require.Error(t, err)

	_, err = lotes.AdvanceStatus(ctx, lote.ID, core.LoteStatusPendingAdjustments)
	require.NoError(t, err)
	_, err = lotes.AdvanceStatus(ctx, lote.ID, core.LoteStatusOpen)
	require.Error(t, err)
	_, err = lotes.AdvanceStatus(ctx, lote.ID, core.LoteStatusAwaitingFiscalData)
	require.NoError(t, err)

	closed, err := lotes.CloseLote(ctx, lote.ID)
	require.NoError(t, err)
	assert.Equal(t, core.LoteStatusDone, closed.Status)

	// The adjustment is now applied, stamped with the closing lote, and a
	// re-consolidation of a second lote must not count it again.
	pending, err := adjustments.ListAdjustments(ctx, 1, true)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := adjustments.ListAdjustments(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Applied)
	require.NotNil(t, all[0].AppliedLoteID)
	assert.Equal(t, lote.ID, *all[0].AppliedLoteID)

	second, err := lotes.CreateLote(ctx, "2025-02",
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = lotes.InsertRows(ctx, second.ID, []core.UsageRow{
		{ClientID: 1, StoreID: 1, Start: second.CycleStart, End: second.CycleStart,
			Value: decimal.RequireFromString("500"), Status: core.RowStatusValidated},
	})
	require.NoError(t, err)
	records, _, err = lotes.ConsolidateLote(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Net.Equal(decimal.RequireFromString("500")),
		"applied adjustment must not be counted a second time")
}

func TestLoteService_PaginationCompleteness(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	clients := core.NewClientService(pool)
	lotes := core.NewLoteService(pool, clients)

	lote, err := lotes.CreateLote(ctx, "2025-03",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// More rows than the 1000-row query cap.
	const total = 1205
	batch := make([]core.UsageRow, total)
	for i := range batch {
		batch[i] = core.UsageRow{
			ClientID: 1, StoreID: 1,
			Start: lote.CycleStart, End: lote.CycleStart,
			Value: decimal.RequireFromString("1"), Status: core.RowStatusValidated,
		}
	}
	_, err = lotes.InsertRows(ctx, lote.ID, batch)
	require.NoError(t, err)

	rows, err := lotes.GetRows(ctx, lote.ID)
	require.NoError(t, err)
	assert.Len(t, rows, total)

	records, _, err := lotes.ConsolidateLote(ctx, lote.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Base.Equal(decimal.NewFromInt(total)),
		"a truncated fetch would undercount the base")
}

func TestLoteService_ResolveRow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	clients := core.NewClientService(pool)
	lotes := core.NewLoteService(pool, clients)

	lote, err := lotes.CreateLote(ctx, "2025-04",
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = lotes.InsertRows(ctx, lote.ID, []core.UsageRow{
		{Start: lote.CycleStart, End: lote.CycleStart,
			Value: decimal.RequireFromString("80"), Status: core.RowStatusRejectedNoMatch,
			StoreLabel: "Loja Desconhecida"},
	})
	require.NoError(t, err)

	unresolved, err := lotes.ListUnresolved(ctx, lote.ID)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	require.NoError(t, lotes.ResolveRow(ctx, unresolved[0].ID, 2))
	// A second resolution of the same row must fail.
	require.Error(t, lotes.ResolveRow(ctx, unresolved[0].ID, 2))

	rows, err := lotes.GetRows(ctx, lote.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.RowStatusValidated, rows[0].Status)
	assert.Equal(t, 2, rows[0].ClientID)
}
