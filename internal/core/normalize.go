package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^A-Z0-9 ]+`)
	whitespaceRegex      = regexp.MustCompile(`\s+`)
	nonDigitRegex        = regexp.MustCompile(`\D`)
)

// FoldText uppercases a string, strips accents and collapses punctuation and
// whitespace, so header and name comparisons survive the spelling variation
// of partner spreadsheets ("Funcionário", "FUNCIONARIO ", "funcionario").
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	out, _, _ := transform.String(t, s)
	out = strings.ToUpper(out)
	out = nonAlphanumericRegex.ReplaceAllString(out, " ")
	out = whitespaceRegex.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// ParseMoney converts an arbitrary spreadsheet cell value into a decimal
// amount. It never fails: empty or unparseable input yields zero. The
// separator heuristic resolves Brazilian versus international formats: when
// both "," and "." appear, the right-most one is the decimal separator; a
// lone "," is decimal; a lone "." is decimal unless it appears more than
// once, in which case every "." is a thousands separator.
func ParseMoney(v any) decimal.Decimal {
	var s string
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case string:
		s = t
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case decimal.Decimal:
		return t
	default:
		s = fmt.Sprint(t)
	}

	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimPrefix(s, "-")
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Right-most separator is the decimal one.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	// Drop any residue that is not a digit or the surviving decimal point.
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" || s == "." {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if neg {
		d = d.Neg()
	}
	return d
}

// NormalizeCNPJ strips everything but digits from a tax id.
func NormalizeCNPJ(s string) string {
	return nonDigitRegex.ReplaceAllString(s, "")
}

// FormatCNPJ re-inserts the standard XX.XXX.XXX/XXXX-XX punctuation. Anything
// that does not normalize to exactly 14 digits is returned as the raw digit
// string unchanged.
func FormatCNPJ(s string) string {
	d := NormalizeCNPJ(s)
	if len(d) != 14 {
		return d
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s", d[0:2], d[2:5], d[5:8], d[8:12], d[12:14])
}

// RoundMoney applies the presentation rounding rule: two decimals, half up.
// Internal sums stay at full precision; only outbound payloads and exports
// go through this.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
