package ai

import (
	"testing"

	"billing-console/internal/core"

	"github.com/stretchr/testify/assert"
)

func TestMatchSuggestionPrune(t *testing.T) {
	roster := []*core.Client{{ID: 3}, {ID: 7}}
	s := MatchSuggestion{Candidates: []Candidate{
		{ClientID: 7, Confidence: 0.9},
		{ClientID: 42, Confidence: 0.8}, // hallucinated id
		{ClientID: 3, Confidence: 0.4},
	}}

	s.prune(roster)

	assert.Len(t, s.Candidates, 2)
	assert.Equal(t, 7, s.Candidates[0].ClientID)
	assert.Equal(t, 3, s.Candidates[1].ClientID)
}

func TestRosterListing(t *testing.T) {
	out := rosterListing([]*core.Client{
		{ID: 3, LegalName: "Estrela Comercio LTDA", TradeName: "Estrela", CNPJ: "11222333000181"},
	})
	assert.Contains(t, out, "id=3")
	assert.Contains(t, out, "11.222.333/0001-81")
}
