package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"billing-console/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// SuggestionService proposes roster matches for store labels the
// deterministic matcher rejected. Suggestions are advisory: a staff member
// still confirms every resolution by hand.
type SuggestionService interface {
	SuggestMatches(ctx context.Context, label string, roster []*core.Client) (*MatchSuggestion, error)
}

// MatchSuggestion is the structured answer for one unresolved label.
type MatchSuggestion struct {
	Label      string      `json:"label"`
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one proposed roster client, ordered most likely first.
type Candidate struct {
	ClientID   int     `json:"client_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type Suggester struct {
	client *openai.Client
}

func NewSuggester(apiKey string) *Suggester {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Suggester{client: &client}
}

func (s *Suggester) SuggestMatches(ctx context.Context, label string, roster []*core.Client) (*MatchSuggestion, error) {
	prompt := fmt.Sprintf(`You are matching Brazilian store names from billing spreadsheets to a client roster.
The spreadsheet label may carry dates, abbreviations, typos or missing accents.
Rules:
1. Propose at most 3 candidates, ordered most likely first, using ONLY client ids from the roster below.
2. Provide a confidence score (0.0-1.0) per candidate.
3. Explain your reasoning briefly, in Portuguese.
4. Return an empty candidate list if nothing plausibly matches.

Roster:
%s

Label: %s`, rosterListing(roster), label)

	schemaStruct := generateSchema()
	schemaJSON, err := json.Marshal(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(shared.ChatModelGPT4o),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "store_match_suggestion",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("Candidate roster matches for an unresolved store label"),
				},
			},
		},
	}

	resp, err := s.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var suggestion MatchSuggestion
	if err := json.Unmarshal([]byte(content), &suggestion); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	suggestion.Label = label
	suggestion.prune(roster)

	return &suggestion, nil
}

// prune drops candidates whose id is not on the roster. The model is told to
// stay on the roster but the answer is not trusted.
func (m *MatchSuggestion) prune(roster []*core.Client) {
	known := make(map[int]bool, len(roster))
	for _, c := range roster {
		known[c.ID] = true
	}
	kept := m.Candidates[:0]
	for _, cand := range m.Candidates {
		if known[cand.ClientID] {
			kept = append(kept, cand)
		}
	}
	m.Candidates = kept
}

func rosterListing(roster []*core.Client) string {
	var b strings.Builder
	for _, c := range roster {
		fmt.Fprintf(&b, "- id=%d razao=%q fantasia=%q cnpj=%s\n",
			c.ID, c.LegalName, c.TradeName, core.FormatCNPJ(c.CNPJ))
	}
	return b.String()
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v MatchSuggestion
	return reflector.Reflect(v)
}
