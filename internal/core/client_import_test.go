package core_test

import (
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientUpload(t *testing.T) {
	data := buildUpload(t, [][]any{
		{"Razão Social", "Nome Fantasia", "CNPJ", "E-mail", "Logradouro", "Número", "Bairro", "Cidade", "UF", "CEP", "Prazo Pagamento"},
		{"Mercado Sol Ltda", "Mercado Sol", "12.345.678/0001-95", "Fiscal@Sol.com.br", "Rua A", "100", "Centro", "São Paulo", "sp", "01000-000", "30"},
		{"Estrela Com. Ltda", "", "98765432000110", "", "", "", "", "", "", "", ""},
		{"Subtotal", "", "", "", "", "", "", "", "", "", ""},
		{"Duplicada Ltda", "Duplicada", "12.345.678/0001-95", "", "", "", "", "", "", "", ""},
	})

	inputs, summary, err := core.ParseClientUpload("clientes.xlsx", data, 1)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, 2, summary.Parsed)
	assert.Equal(t, 2, summary.Skipped)

	assert.Equal(t, "12345678000195", inputs[0].CNPJ)
	assert.Equal(t, "fiscal@sol.com.br", inputs[0].Email)
	assert.Equal(t, "SP", inputs[0].State)
	assert.Equal(t, 30, inputs[0].PaymentTerms)
	assert.Equal(t, 1, inputs[0].BillingCycleID)

	// Trade name falls back to the legal name.
	assert.Equal(t, "Estrela Com. Ltda", inputs[1].TradeName)
	assert.Zero(t, inputs[1].PaymentTerms)
}

func TestParseClientUpload_MissingRequiredColumns(t *testing.T) {
	data := buildUpload(t, [][]any{
		{"Nome Fantasia", "Cidade"},
		{"Mercado Sol", "São Paulo"},
	})
	_, _, err := core.ParseClientUpload("clientes.xlsx", data, 1)
	require.Error(t, err)
	var missing *core.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"legal_name", "cnpj"}, missing.Fields)
}
