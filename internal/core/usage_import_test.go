package core_test

import (
	"bytes"
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildUpload(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseUsageUpload(t *testing.T) {
	data := buildUpload(t, [][]any{
		{"Descrição", "Data Início", "Data Fim", "Valor Total", "Loja"},
		{"Plantão noturno", "02/01/2025", "03/01/2025", "1.234,56", "Mercado Sol"},
		{"Plantão 05/01/2025 Estrela Matriz", "05/01/2025", "", "150,00", ""},
		{"Cobertura", "06/01/2025", "", "99,90", "Loja Fantasma"},
		{"", "", "", "", ""},
	})

	usage, summary, err := core.ParseUsageUpload("janeiro.xlsx", data, testRoster(), 0)
	require.NoError(t, err)
	require.Len(t, usage, 3)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.Unresolved)

	assert.Equal(t, 7, usage[0].ClientID)
	assert.Equal(t, core.RowStatusValidated, usage[0].Status)
	assert.Equal(t, "1234.56", usage[0].Value.String())
	assert.Equal(t, 2, usage[0].Start.Day())

	// Store column empty: label extracted from the description tail.
	assert.Equal(t, 3, usage[1].ClientID)

	assert.Equal(t, core.RowStatusRejectedNoMatch, usage[2].Status)
	assert.Equal(t, "Loja Fantasma", usage[2].StoreLabel)
}

func TestParseUsageUpload_MissingRequiredColumns(t *testing.T) {
	data := buildUpload(t, [][]any{
		{"Loja", "Observação"},
		{"Mercado Sol", "x"},
	})
	_, _, err := core.ParseUsageUpload("ruim.xlsx", data, testRoster(), 0)
	var missing *core.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Fields, "description")
	assert.Contains(t, missing.Fields, "start")
	assert.Contains(t, missing.Fields, "value")
}

func TestParseUsageUpload_ParentFilter(t *testing.T) {
	data := buildUpload(t, [][]any{
		{"Descrição", "Data", "Valor", "Loja"},
		{"Plantão", "02/01/2025", "100,00", "Estrela Norte"},
		{"Plantão", "02/01/2025", "100,00", "Mercado Sol"},
	})
	// Restricting to the Estrela group leaves Mercado Sol unresolved.
	usage, summary, err := core.ParseUsageUpload("grupo.xlsx", data, testRoster(), 3)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, 9, usage[0].ClientID)
	assert.Equal(t, core.RowStatusRejectedNoMatch, usage[1].Status)
	assert.Equal(t, 1, summary.Unresolved)
}
