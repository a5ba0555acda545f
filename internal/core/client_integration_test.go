package core_test

import (
	"context"
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientService_CNPJUniqueness(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	svc := core.NewClientService(pool)

	// Seeded client 1 already holds this CNPJ (punctuated input is
	// normalized before the check).
	_, err := svc.CreateClient(ctx, core.ClientInput{
		LegalName: "Outra Padaria", CNPJ: "11.222.333/0001-81", BillingCycleID: 1,
	})
	assert.ErrorIs(t, err, core.ErrDuplicateCNPJ)

	// Disabling the holder frees the CNPJ for a new active client.
	require.NoError(t, svc.DisableClient(ctx, 1))
	created, err := svc.CreateClient(ctx, core.ClientInput{
		LegalName: "Outra Padaria", CNPJ: "11.222.333/0001-81", BillingCycleID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "11222333000181", created.CNPJ)

	roster, err := svc.GetRoster(ctx)
	require.NoError(t, err)
	for _, c := range roster {
		assert.NotEqual(t, 1, c.ID, "disabled client must leave the roster")
	}
}
