package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// Logical fields of a usage upload and the header spellings partners use.
var usageColumnSpecs = []ColumnSpec{
	{Field: "description", Synonyms: []string{"descricao", "agendamento", "plantao", "servico"}, Required: true},
	{Field: "start", Synonyms: []string{"data inicio", "inicio", "data"}, Required: true},
	{Field: "end", Synonyms: []string{"data fim", "fim", "termino"}, Required: false},
	{Field: "value", Synonyms: []string{"valor total", "valor", "total"}, Required: true},
	{Field: "store", Synonyms: []string{"loja", "unidade", "estabelecimento"}, Required: false},
	{Field: "cnpj", Synonyms: []string{"cnpj"}, Required: false},
}

// ImportSummary reports what an upload produced before anything is persisted.
type ImportSummary struct {
	Matched    int `json:"matched"`
	Unresolved int `json:"unresolved"`
	Skipped    int `json:"skipped"`
}

// ParseUsageUpload reads a partner spreadsheet (.xlsx or legacy .xls) and
// turns every populated line into a UsageRow. The store label comes from the
// dedicated column when present, otherwise from the tail of the description
// after its last date; each label goes through the tiered matcher against the
// roster. Matched rows come back VALIDATED, unmatched ones
// REJECTED_NO_MATCH with the label kept for manual resolution. parentID
// optionally narrows matching to one franchise group.
func ParseUsageUpload(filename string, data []byte, roster []Client, parentID int) ([]UsageRow, ImportSummary, error) {
	grid, err := readWorkbook(filename, data)
	if err != nil {
		return nil, ImportSummary{}, err
	}
	if len(grid) < 2 {
		return nil, ImportSummary{}, fmt.Errorf("upload %q has no data rows", filename)
	}

	columns, err := ResolveColumns(grid[0], usageColumnSpecs)
	if err != nil {
		return nil, ImportSummary{}, err
	}

	if parentID != 0 {
		roster = FilterByParent(roster, parentID)
	}

	var (
		usage   []UsageRow
		summary ImportSummary
	)
	for _, line := range grid[1:] {
		if isBlankLine(line) {
			continue
		}

		value := ParseMoney(cellAt(line, columns, "value"))
		description := cellAt(line, columns, "description")
		label := cellAt(line, columns, "store")
		if label == "" {
			label = ExtractStoreLabel(description)
		}
		if cnpj := cellAt(line, columns, "cnpj"); cnpj != "" {
			// A CNPJ column is authoritative; fold it into the label so the
			// matcher's tax-id tier sees it first.
			label = label + " " + cnpj
		}
		if label == "" && value.IsZero() {
			summary.Skipped++
			continue
		}

		start := parseCellDate(cellAt(line, columns, "start"))
		end := parseCellDate(cellAt(line, columns, "end"))
		if end.IsZero() {
			end = start
		}

		row := UsageRow{
			Start:      start,
			End:        end,
			Value:      value,
			StoreLabel: strings.TrimSpace(label),
		}
		if c := MatchStore(label, roster); c != nil {
			// Each store bills on its own figures, franchise or not; the
			// parent link only affects how dispatch nests the line items.
			row.ClientID = c.ID
			row.StoreID = c.ID
			row.Status = RowStatusValidated
			summary.Matched++
		} else {
			row.Status = RowStatusRejectedNoMatch
			summary.Unresolved++
		}
		usage = append(usage, row)
	}
	return usage, summary, nil
}

// readWorkbook returns the first sheet as a string grid, trying the legacy
// .xls reader first for .xls uploads and excelize for everything else.
func readWorkbook(filename string, data []byte) ([][]string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".xls") {
		workbook, err := xls.OpenReader(bytes.NewReader(data))
		if err == nil {
			sheets := workbook.GetSheets()
			if len(sheets) == 0 {
				return nil, fmt.Errorf("upload %q contains no sheets", filename)
			}
			var grid [][]string
			for _, row := range sheets[0].GetRows() {
				var line []string
				for _, cell := range row.GetCols() {
					line = append(line, cell.GetString())
				}
				grid = append(grid, line)
			}
			return grid, nil
		}
		// Some partners rename .xlsx files to .xls; fall through to excelize.
	}
	return readXLSX(bytes.NewReader(data))
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook contains no sheets")
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return grid, nil
}

// Date spellings seen across partner uploads.
var cellDateLayouts = []string{
	"02/01/2006", "2/1/2006", "02/01/06", "2006-01-02",
	"02/01/2006 15:04", "2006-01-02 15:04:05",
}

func parseCellDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func cellAt(line []string, columns ColumnMap, field string) string {
	idx, ok := columns[field]
	if !ok || idx >= len(line) {
		return ""
	}
	return strings.TrimSpace(line[idx])
}

func isBlankLine(line []string) bool {
	for _, cell := range line {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
