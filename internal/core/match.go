package core

import (
	"regexp"
	"sort"
	"strings"

	"github.com/schollz/closestmatch"
)

// dateLikeRegex finds date-shaped substrings (02/01/2025, 2/1/25, 02-01-2025)
// inside free-text schedule descriptions. The store label is whatever trails
// the last one.
var dateLikeRegex = regexp.MustCompile(`\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}`)

// ExtractStoreLabel pulls the store name out of a longer schedule description
// by taking the token sequence after the last date-like substring. When no
// date appears the whole trimmed text is the label.
func ExtractStoreLabel(description string) string {
	locs := dateLikeRegex.FindAllStringIndex(description, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(description)
	}
	last := locs[len(locs)-1]
	label := description[last[1]:]
	label = strings.TrimLeft(label, " -–—:|,")
	return strings.TrimSpace(label)
}

// MatchStore associates a free-text store label with a registered client.
// Tiers, short-circuiting at the first hit:
//
//  1. normalized CNPJ equality (authoritative when the label carries one)
//  2. equality against the accounting alias
//  3. equality against the legal name
//  4. substring containment, in either direction, against legal or trade name
//
// Name comparisons are case- and accent-insensitive. Ties inside a tier
// resolve to the lowest client ID, so a match never depends on roster
// ordering. Returns nil when nothing matches.
func MatchStore(label string, roster []Client) *Client {
	folded := FoldText(label)
	if folded == "" {
		return nil
	}

	// Tier 1: a CNPJ embedded in the label beats every name heuristic.
	if cnpj := NormalizeCNPJ(label); len(cnpj) == 14 {
		if c := pickLowest(roster, func(c *Client) bool { return c.CNPJ == cnpj }); c != nil {
			return c
		}
	}

	if c := pickLowest(roster, func(c *Client) bool {
		return FoldText(c.AccountingName) == folded
	}); c != nil {
		return c
	}

	if c := pickLowest(roster, func(c *Client) bool {
		return FoldText(c.LegalName) == folded
	}); c != nil {
		return c
	}

	return pickLowest(roster, func(c *Client) bool {
		return containsEither(folded, FoldText(c.LegalName)) ||
			containsEither(folded, FoldText(c.TradeName))
	})
}

// FilterByParent narrows a roster to one parent company (the parent itself
// plus its filiais), used to cut false positives when the upload is known to
// belong to a franchise group.
func FilterByParent(roster []Client, parentID int) []Client {
	out := make([]Client, 0, len(roster))
	for _, c := range roster {
		if c.ID == parentID || (c.ParentStoreID != nil && *c.ParentStoreID == parentID) {
			out = append(out, c)
		}
	}
	return out
}

// SuggestClosest ranks roster clients by n-gram similarity to an unresolved
// label. Purely advisory: the result feeds the manual-resolution screen and
// never writes a match on its own.
func SuggestClosest(label string, roster []Client, n int) []Client {
	folded := FoldText(label)
	if folded == "" || len(roster) == 0 {
		return nil
	}

	byKey := make(map[string]*Client, len(roster))
	keys := make([]string, 0, len(roster))
	for i := range roster {
		c := &roster[i]
		for _, name := range []string{c.LegalName, c.TradeName, c.AccountingName} {
			k := FoldText(name)
			if k == "" {
				continue
			}
			if prev, ok := byKey[k]; !ok || c.ID < prev.ID {
				if !ok {
					keys = append(keys, k)
				}
				byKey[k] = c
			}
		}
	}

	cm := closestmatch.New(keys, []int{3, 4, 5})
	ranked := cm.ClosestN(folded, len(keys))

	seen := make(map[int]bool)
	var out []Client
	for _, k := range ranked {
		c := byKey[k]
		if c == nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, *c)
		if len(out) == n {
			break
		}
	}
	return out
}

func pickLowest(roster []Client, match func(*Client) bool) *Client {
	var hits []*Client
	for i := range roster {
		if match(&roster[i]) {
			hits = append(hits, &roster[i])
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	return hits[0]
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
