package dispatch

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	nfTaggedRegex = regexp.MustCompile(`(?i)\bNFS?E?[\s_\-.]*0*(\d+)`)
	digitRunRegex = regexp.MustCompile(`\d+`)
)

// ExtractInvoiceNumber pulls the invoice number out of a fiscal document
// filename. Partners name these files inconsistently ("NF 1234 - loja.pdf",
// "nfse_000789.xml", "1234.pdf"); a digit run tagged with an NF marker wins,
// otherwise the longest digit run in the name is used. Returns "" when the
// name carries no digits at all.
func ExtractInvoiceNumber(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	if m := nfTaggedRegex.FindStringSubmatch(name); m != nil {
		return m[1]
	}

	longest := ""
	for _, run := range digitRunRegex.FindAllString(name, -1) {
		trimmed := strings.TrimLeft(run, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		if len(trimmed) > len(longest) {
			longest = trimmed
		}
	}
	return longest
}
