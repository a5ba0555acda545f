package dispatch

import (
	"bytes"
	"testing"

	"billing-console/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestBuildInvoiceWorkbook(t *testing.T) {
	lote := &core.Lote{ID: 4, Competence: "2026-07"}
	clients := map[int]*core.Client{
		1: {
			ID: 1, LegalName: "Estrela Comercio LTDA", TradeName: "Estrela",
			CNPJ: "11222333000181", Email: "fiscal@estrela.example",
			Street: "Rua das Flores", Number: "120", District: "Centro",
			City: "Campinas", State: "SP", ZipCode: "13010-000",
		},
	}
	records := []core.ConsolidatedRecord{{
		LoteID: 4, ClientID: 1,
		InvoiceShare: decimal.RequireFromString("115.345"),
	}}

	data, err := BuildInvoiceWorkbook(lote, records, clients)
	require.NoError(t, err)

	rows := readSheet(t, data, "Faturamento")
	require.Len(t, rows, 2)
	assert.Equal(t, invoiceExportHeaders, rows[0])

	row := rows[1]
	assert.Equal(t, "11.222.333/0001-81", row[0])
	assert.Equal(t, "Estrela Comercio LTDA", row[1])
	assert.Equal(t, "115.35", row[4], "NF value rounds half up at export")
	assert.Equal(t, "17.02", row[5])
	assert.Equal(t, "2026-07", row[13])
	assert.Equal(t, "6912", row[15])
	assert.Equal(t, "N", row[17])
}

func TestBuildInvoiceWorkbook_SkipsUnknownClient(t *testing.T) {
	lote := &core.Lote{ID: 4, Competence: "2026-07"}
	records := []core.ConsolidatedRecord{{LoteID: 4, ClientID: 99}}

	data, err := BuildInvoiceWorkbook(lote, records, map[int]*core.Client{})
	require.NoError(t, err)

	rows := readSheet(t, data, "Faturamento")
	assert.Len(t, rows, 1, "header only")
}

func TestBuildStagingWorkbook(t *testing.T) {
	lote := &core.Lote{ID: 4, Competence: "2026-07"}
	clients := map[int]*core.Client{
		1: {ID: 1, LegalName: "Mercado Sol", CNPJ: "99888777000166"},
	}
	records := []core.ConsolidatedRecord{{
		LoteID: 4, ClientID: 1,
		Base:            decimal.NewFromInt(1000),
		Additions:       decimal.NewFromInt(100),
		Deductions:      decimal.NewFromInt(50),
		Net:             decimal.NewFromInt(1050),
		InvoiceShare:    decimal.RequireFromString("120.75"),
		CreditNoteShare: decimal.RequireFromString("929.25"),
		IRRF:            decimal.NewFromInt(15),
		Settlement:      decimal.NewFromInt(1035),
	}}

	data, err := BuildStagingWorkbook(lote, records, clients)
	require.NoError(t, err)

	rows := readSheet(t, data, "Contabilidade")
	require.Len(t, rows, 2)
	assert.Equal(t, stagingHeaders, rows[0])
	assert.Equal(t, []string{
		"99.888.777/0001-66", "Mercado Sol", "2026-07",
		"1000.00", "100.00", "50.00", "1050.00",
		"120.75", "929.25", "15.00", "1035.00",
	}, rows[1])
}

func TestBuildRejectedWorkbook(t *testing.T) {
	lote := &core.Lote{ID: 4, Competence: "2026-07"}
	rejected := []core.RejectedClient{
		{ClientID: 7, Name: "Loja Sem Cadastro", Reason: core.ReasonMissingRegistration,
			Total: decimal.NewFromInt(300)},
		{ClientID: 8, Reason: core.ReasonIncompleteAddress, Total: decimal.NewFromInt(80)},
	}

	data, err := BuildRejectedWorkbook(lote, rejected)
	require.NoError(t, err)

	rows := readSheet(t, data, "Rejeitados")
	require.Len(t, rows, 3)
	assert.Equal(t, "Loja Sem Cadastro", rows[1][0])
	assert.Equal(t, core.ReasonMissingRegistration, rows[1][1])
	assert.Equal(t, "cliente 8", rows[2][0], "nameless rejection falls back to the id")
}

func TestExtractInvoiceNumber(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"NF 1234 - Estrela.pdf", "1234"},
		{"nfse_000789.xml", "789"},
		{"NFS-e 0042.pdf", "42"},
		{"relatorio 2026 fatura 98765.pdf", "98765"},
		{"1234.pdf", "1234"},
		{"comprovante.pdf", ""},
		{"NF0000.pdf", "0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractInvoiceNumber(tc.filename), tc.filename)
	}
}
