package dispatch

import (
	"bytes"
	"fmt"

	"billing-console/internal/core"

	"github.com/xuri/excelize/v2"
)

// invoiceExportHeaders is the fixed 19-column schema of the downstream
// invoicing integration. Column order is contractual.
var invoiceExportHeaders = []string{
	"CNPJ", "RAZAO SOCIAL", "NOME FANTASIA", "EMAIL", "VALOR NF",
	"CODIGO SERVICO", "LOGRADOURO", "NUMERO", "BAIRRO", "CIDADE",
	"UF", "CEP", "DESCRICAO", "COMPETENCIA", "ALIQUOTA",
	"COD TRIBUTACAO", "NATUREZA OPERACAO", "ISS RETIDO", "OBSERVACAO",
}

const (
	serviceCode     = "17.02"
	taxCode         = "6912"
	operationNature = "1"
)

// BuildInvoiceWorkbook renders consolidated records into the invoicing
// integration's workbook. One row per client carrying the NF share.
func BuildInvoiceWorkbook(lote *core.Lote, records []core.ConsolidatedRecord, clients map[int]*core.Client) ([]byte, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		c := clients[r.ClientID]
		if c == nil {
			continue
		}
		rows = append(rows, []any{
			core.FormatCNPJ(c.CNPJ), c.LegalName, c.TradeName, c.Email,
			core.RoundMoney(r.InvoiceShare).StringFixed(2),
			serviceCode, c.Street, c.Number, c.District, c.City,
			c.State, c.ZipCode,
			fmt.Sprintf("Serviços prestados — competência %s", lote.Competence),
			lote.Competence, "2.00", taxCode, operationNature, "N", "",
		})
	}
	return writeWorkbook("Faturamento", toAnyRows(invoiceExportHeaders), rows)
}

// stagingHeaders is the free-form accounting-software staging schema.
var stagingHeaders = []string{
	"CNPJ", "CLIENTE", "COMPETENCIA", "BASE", "ACRESCIMOS", "DESCONTOS",
	"LIQUIDO", "NF", "NC", "IRRF", "VALOR FINAL",
}

// BuildStagingWorkbook renders the accounting-staging export with the full
// figure breakdown per client.
func BuildStagingWorkbook(lote *core.Lote, records []core.ConsolidatedRecord, clients map[int]*core.Client) ([]byte, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		name := ""
		cnpj := ""
		if c := clients[r.ClientID]; c != nil {
			name = c.LegalName
			cnpj = core.FormatCNPJ(c.CNPJ)
		}
		rows = append(rows, []any{
			cnpj, name, lote.Competence,
			core.RoundMoney(r.Base).StringFixed(2),
			core.RoundMoney(r.Additions).StringFixed(2),
			core.RoundMoney(r.Deductions).StringFixed(2),
			core.RoundMoney(r.Net).StringFixed(2),
			core.RoundMoney(r.InvoiceShare).StringFixed(2),
			core.RoundMoney(r.CreditNoteShare).StringFixed(2),
			core.RoundMoney(r.IRRF).StringFixed(2),
			core.RoundMoney(r.Settlement).StringFixed(2),
		})
	}
	return writeWorkbook("Contabilidade", toAnyRows(stagingHeaders), rows)
}

// BuildRejectedWorkbook renders the rejected-clients report handed to staff
// for manual follow-up.
func BuildRejectedWorkbook(lote *core.Lote, rejected []core.RejectedClient) ([]byte, error) {
	headers := []string{"CLIENTE", "MOTIVO", "VALOR PENDENTE", "COMPETENCIA"}
	rows := make([][]any, 0, len(rejected))
	for _, r := range rejected {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("cliente %d", r.ClientID)
		}
		rows = append(rows, []any{
			name, r.Reason, core.RoundMoney(r.Total).StringFixed(2), lote.Competence,
		})
	}
	return writeWorkbook("Rejeitados", toAnyRows(headers), rows)
}

func writeWorkbook(sheet string, headers []any, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func toAnyRows(headers []string) []any {
	out := make([]any, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}
