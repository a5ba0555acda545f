package core_test

import (
	"testing"

	"billing-console/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseMoney_SeparatorHeuristic(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1234.56", "1234.56"},
		{"1234,56", "1234.56"},
		{"", "0"},
		{"R$ 1.234,56", "1234.56"},
		{"R$1500", "1500"},
		{"1.234.567", "1234567"},   // multiple dots, no comma: thousands only
		{"1.234.567,89", "1234567.89"},
		{"1,234,567.89", "1234567.89"},
		{"-150,00", "-150"},
		{"(150,00)", "-150"},
		{"abc", "0"},
		{nil, "0"},
		{float64(42.5), "42.5"},
		{7, "7"},
	}
	for _, tt := range tests {
		got := core.ParseMoney(tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"ParseMoney(%v) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestNormalizeCNPJ(t *testing.T) {
	assert.Equal(t, "12345678000195", core.NormalizeCNPJ("12.345.678/0001-95"))
	assert.Equal(t, "12345678000195", core.NormalizeCNPJ("12345678000195"))
	assert.Equal(t, "", core.NormalizeCNPJ("n/a"))
}

func TestFormatCNPJ(t *testing.T) {
	// Punctuation is inserted only for exactly 14 digits.
	assert.Equal(t, "12.345.678/0001-95", core.FormatCNPJ("12345678000195"))
	assert.Equal(t, "12.345.678/0001-95", core.FormatCNPJ("12.345.678/0001-95"))
	assert.Equal(t, "123456", core.FormatCNPJ("123456"))
	assert.Equal(t, "123456789001955", core.FormatCNPJ("123456789001955"))
	assert.Equal(t, "", core.FormatCNPJ(""))
}

func TestFoldText(t *testing.T) {
	assert.Equal(t, "FUNCIONARIO", core.FoldText("  Funcionário "))
	assert.Equal(t, "LOJA SAO PAULO 01", core.FoldText("Loja - São Paulo/01"))
	assert.Equal(t, "", core.FoldText("---"))
}

func TestRoundMoney_HalfUp(t *testing.T) {
	assert.Equal(t, "120.75", core.RoundMoney(decimal.RequireFromString("120.745")).StringFixed(2))
	assert.Equal(t, "120.74", core.RoundMoney(decimal.RequireFromString("120.744")).StringFixed(2))
}
