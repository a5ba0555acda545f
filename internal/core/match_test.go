package core_test

import (
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func testRoster() []core.Client {
	return []core.Client{
		{ID: 3, LegalName: "Padaria Estrela LTDA", TradeName: "Estrela", AccountingName: "ESTRELA MATRIZ", CNPJ: "11222333000181"},
		{ID: 7, LegalName: "Mercado Sol Comercio de Alimentos SA", TradeName: "Mercado Sol", AccountingName: "SOL CENTRO", CNPJ: "44555666000172"},
		{ID: 9, LegalName: "Estrela Filial Norte LTDA", TradeName: "Estrela Norte", AccountingName: "ESTRELA NORTE", CNPJ: "11222333000262", ParentStoreID: intPtr(3)},
	}
}

func TestExtractStoreLabel(t *testing.T) {
	assert.Equal(t, "Mercado Sol",
		core.ExtractStoreLabel("Plantão 02/01/2025 a 05/01/2025 - Mercado Sol"))
	assert.Equal(t, "Estrela Norte",
		core.ExtractStoreLabel("Atendimento 2-1-25 Estrela Norte"))
	assert.Equal(t, "Mercado Sol", core.ExtractStoreLabel("  Mercado Sol "))
}

func TestMatchStore_CNPJBeatsNameSubstring(t *testing.T) {
	roster := testRoster()
	// The label substring-matches client 3's trade name, but carries client
	// 7's CNPJ; the tax id tier must win.
	c := core.MatchStore("Estrela 44.555.666/0001-72", roster)
	require.NotNil(t, c)
	assert.Equal(t, 7, c.ID)
}

func TestMatchStore_Tiers(t *testing.T) {
	roster := testRoster()

	c := core.MatchStore("estrela matriz", roster)
	require.NotNil(t, c)
	assert.Equal(t, 3, c.ID, "accounting alias equality")

	c = core.MatchStore("Mercado Sol Comercio de Alimentos SA", roster)
	require.NotNil(t, c)
	assert.Equal(t, 7, c.ID, "legal name equality")

	c = core.MatchStore("Mercado Sol", roster)
	require.NotNil(t, c)
	assert.Equal(t, 7, c.ID, "substring containment")

	assert.Nil(t, core.MatchStore("Loja Desconhecida", roster))
	assert.Nil(t, core.MatchStore("", roster))
}

func TestMatchStore_TieBreaksByLowestID(t *testing.T) {
	roster := testRoster()
	// "Estrela" is contained in both client 3 and client 9 names; the lower
	// ID wins regardless of roster order.
	for _, r := range [][]core.Client{roster, {roster[2], roster[1], roster[0]}} {
		c := core.MatchStore("Estrela", r)
		require.NotNil(t, c)
		assert.Equal(t, 3, c.ID)
	}
}

func TestFilterByParent(t *testing.T) {
	got := core.FilterByParent(testRoster(), 3)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].ID)
	assert.Equal(t, 9, got[1].ID)
}

func TestSuggestClosest(t *testing.T) {
	got := core.SuggestClosest("mercadinho sol", testRoster(), 2)
	require.NotEmpty(t, got)
	assert.Equal(t, 7, got[0].ID)
}
