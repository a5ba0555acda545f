package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Logical fields of a client roster upload and their header spellings.
var clientColumnSpecs = []ColumnSpec{
	{Field: "legal_name", Synonyms: []string{"razao social", "razao"}, Required: true},
	{Field: "trade_name", Synonyms: []string{"nome fantasia", "fantasia", "loja"}, Required: false},
	{Field: "cnpj", Synonyms: []string{"cnpj"}, Required: true},
	{Field: "accounting_name", Synonyms: []string{"nome contabilidade", "contabilidade"}, Required: false},
	{Field: "email", Synonyms: []string{"email", "e mail"}, Required: false},
	{Field: "street", Synonyms: []string{"logradouro", "endereco", "rua"}, Required: false},
	{Field: "number", Synonyms: []string{"numero"}, Required: false},
	{Field: "district", Synonyms: []string{"bairro"}, Required: false},
	{Field: "city", Synonyms: []string{"cidade", "municipio"}, Required: false},
	{Field: "state", Synonyms: []string{"uf", "estado"}, Required: false},
	{Field: "zip_code", Synonyms: []string{"cep"}, Required: false},
	{Field: "payment_terms", Synonyms: []string{"prazo pagamento", "prazo"}, Required: false},
}

// ClientImportSummary reports what a roster upload produced.
type ClientImportSummary struct {
	Parsed  int `json:"parsed"`
	Skipped int `json:"skipped"`
}

// ParseClientUpload reads a roster spreadsheet (.xlsx or legacy .xls) into
// ClientInput values. Lines without a plausible CNPJ (14 digits after
// normalization) are skipped rather than failing the batch, since roster
// exports routinely carry subtotal and annotation lines. Duplicate CNPJs
// within the same upload keep the first occurrence.
func ParseClientUpload(filename string, data []byte, billingCycleID int) ([]ClientInput, ClientImportSummary, error) {
	grid, err := readWorkbook(filename, data)
	if err != nil {
		return nil, ClientImportSummary{}, err
	}
	if len(grid) < 2 {
		return nil, ClientImportSummary{}, fmt.Errorf("upload %q has no data rows", filename)
	}

	columns, err := ResolveColumns(grid[0], clientColumnSpecs)
	if err != nil {
		return nil, ClientImportSummary{}, err
	}

	var (
		inputs  []ClientInput
		summary ClientImportSummary
		seen    = map[string]bool{}
	)
	for _, line := range grid[1:] {
		if isBlankLine(line) {
			continue
		}

		cnpj := NormalizeCNPJ(cellAt(line, columns, "cnpj"))
		if len(cnpj) != 14 || seen[cnpj] {
			summary.Skipped++
			continue
		}
		seen[cnpj] = true

		input := ClientInput{
			LegalName:      cellAt(line, columns, "legal_name"),
			TradeName:      cellAt(line, columns, "trade_name"),
			CNPJ:           cnpj,
			AccountingName: cellAt(line, columns, "accounting_name"),
			Email:          strings.ToLower(cellAt(line, columns, "email")),
			BillingCycleID: billingCycleID,
			Street:         cellAt(line, columns, "street"),
			Number:         cellAt(line, columns, "number"),
			District:       cellAt(line, columns, "district"),
			City:           cellAt(line, columns, "city"),
			State:          strings.ToUpper(cellAt(line, columns, "state")),
			ZipCode:        cellAt(line, columns, "zip_code"),
		}
		if input.TradeName == "" {
			input.TradeName = input.LegalName
		}
		if terms := cellAt(line, columns, "payment_terms"); terms != "" {
			if n, err := strconv.Atoi(terms); err == nil && n > 0 {
				input.PaymentTerms = n
			}
		}

		inputs = append(inputs, input)
		summary.Parsed++
	}
	return inputs, summary, nil
}
