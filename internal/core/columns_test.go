package core_test

import (
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveColumns(t *testing.T) {
	headers := []string{"Data Início", "LOJA / UNIDADE", "Valor Total (R$)", "CNPJ"}
	specs := []core.ColumnSpec{
		{Field: "start", Synonyms: []string{"data inicio", "inicio"}, Required: true},
		{Field: "store", Synonyms: []string{"loja", "unidade", "estabelecimento"}, Required: true},
		{Field: "value", Synonyms: []string{"valor total", "valor"}, Required: true},
		{Field: "cnpj", Synonyms: []string{"cnpj"}, Required: false},
	}

	m, err := core.ResolveColumns(headers, specs)
	require.NoError(t, err)
	assert.Equal(t, 0, m["start"])
	assert.Equal(t, 1, m["store"])
	assert.Equal(t, 2, m["value"])
	assert.Equal(t, 3, m["cnpj"])
}

func TestResolveColumns_ExactBeatsContainment(t *testing.T) {
	// "Valor Liquido" contains "valor" but "VALOR" matches exactly; the exact
	// pass must win regardless of column order.
	headers := []string{"Valor Liquido", "VALOR"}
	specs := []core.ColumnSpec{
		{Field: "value", Synonyms: []string{"valor"}, Required: true},
	}
	m, err := core.ResolveColumns(headers, specs)
	require.NoError(t, err)
	assert.Equal(t, 1, m["value"])
}

func TestResolveColumns_MissingRequired(t *testing.T) {
	headers := []string{"Loja"}
	specs := []core.ColumnSpec{
		{Field: "store", Synonyms: []string{"loja"}, Required: true},
		{Field: "value", Synonyms: []string{"valor"}, Required: true},
		{Field: "start", Synonyms: []string{"inicio"}, Required: true},
		{Field: "cnpj", Synonyms: []string{"cnpj"}}, // optional, silently absent
	}
	_, err := core.ResolveColumns(headers, specs)
	var missing *core.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"value", "start"}, missing.Fields)
}

func TestResolveColumns_OptionalAbsent(t *testing.T) {
	m, err := core.ResolveColumns([]string{"Loja"}, []core.ColumnSpec{
		{Field: "store", Synonyms: []string{"loja"}, Required: true},
		{Field: "cnpj", Synonyms: []string{"cnpj"}},
	})
	require.NoError(t, err)
	_, ok := m["cnpj"]
	assert.False(t, ok)
}
