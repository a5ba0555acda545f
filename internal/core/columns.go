package core

import (
	"fmt"
	"strings"
)

// ColumnSpec declares one logical field and the header spellings partners use
// for it. Synonyms are tried in declaration order.
type ColumnSpec struct {
	Field    string
	Synonyms []string
	Required bool
}

// ColumnMap is the result of resolving a header row: logical field name to
// the zero-based column index of the literal header that matched.
type ColumnMap map[string]int

// MissingColumnsError carries every required field that could not be located,
// so the upload is rejected with one complete message instead of dripping
// failures one header at a time.
type MissingColumnsError struct {
	Fields []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Fields, ", "))
}

// ResolveColumns maps a literal header row onto logical fields. Matching is
// case- and accent-insensitive: exact equality first, then substring
// containment. The first synonym that matches wins. Required fields with no
// match fail the whole resolution; optional fields are simply absent from
// the returned map.
func ResolveColumns(headers []string, specs []ColumnSpec) (ColumnMap, error) {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = FoldText(h)
	}

	out := make(ColumnMap, len(specs))
	var missing []string
	for _, spec := range specs {
		idx, ok := findColumn(folded, spec.Synonyms)
		if !ok {
			if spec.Required {
				missing = append(missing, spec.Field)
			}
			continue
		}
		out[spec.Field] = idx
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Fields: missing}
	}
	return out, nil
}

func findColumn(folded []string, synonyms []string) (int, bool) {
	// Exact pass over every synonym before falling back to containment, so a
	// header that equals a later synonym beats one that merely contains an
	// earlier synonym.
	for _, syn := range synonyms {
		want := FoldText(syn)
		for i, h := range folded {
			if h == want {
				return i, true
			}
		}
	}
	for _, syn := range synonyms {
		want := FoldText(syn)
		if want == "" {
			continue
		}
		for i, h := range folded {
			if strings.Contains(h, want) {
				return i, true
			}
		}
	}
	return 0, false
}
