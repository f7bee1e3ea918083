// Package resolver maps loose spoken product references to a single catalog entry.
package resolver

import (
	"strconv"
	"strings"

	"github.com/harunnryd/cipher/pkg/catalog"
)

// Strategy tries to pick a product. ref is the lower-cased, trimmed utterance,
// narrowed is the domain-narrowed candidate set and all is the caller's full set.
type Strategy struct {
	Name  string
	Match func(ref string, narrowed, all []catalog.Product) (catalog.Product, bool)
}

var ordinals = []string{"first", "second", "third", "fourth"}

// Strategies returns the resolution strategies in priority order.
// Domain narrowing is applied by Resolve before any of them run.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "ordinal", Match: matchOrdinal},
		{Name: "exact_id", Match: matchExactID},
		{Name: "color_category", Match: matchColorCategory},
		{Name: "name_all_tokens", Match: matchAllTokens},
		{Name: "name_any_token", Match: matchAnyToken},
		{Name: "numeric_index", Match: matchNumericIndex},
		{Name: "ordinal_unnarrowed", Match: matchOrdinalUnnarrowed},
	}
}

// Resolve returns the first product picked by the ordered strategies.
func Resolve(utterance string, candidates []catalog.Product) (catalog.Product, bool) {
	p, _, ok := ResolveWith(Strategies(), utterance, candidates)
	return p, ok
}

// ResolveWith runs the given strategies and also reports which one matched.
func ResolveWith(strategies []Strategy, utterance string, candidates []catalog.Product) (catalog.Product, string, bool) {
	ref := strings.ToLower(strings.TrimSpace(utterance))
	if ref == "" || len(candidates) == 0 {
		return catalog.Product{}, "", false
	}
	narrowed := Narrow(ref, candidates)
	for _, s := range strategies {
		if p, ok := s.Match(ref, narrowed, candidates); ok {
			return p, s.Name, true
		}
	}
	return catalog.Product{}, "", false
}

// Narrow restricts candidates to mobiles when the reference mentions a phone,
// falling back to the full set when no mobile exists.
func Narrow(ref string, candidates []catalog.Product) []catalog.Product {
	if !catalog.MentionsPhone(ref) {
		return candidates
	}
	var mobiles []catalog.Product
	for _, p := range candidates {
		if p.Category == catalog.CategoryMobile {
			mobiles = append(mobiles, p)
		}
	}
	if len(mobiles) == 0 {
		return candidates
	}
	return mobiles
}

func matchOrdinal(ref string, narrowed, _ []catalog.Product) (catalog.Product, bool) {
	return pickOrdinal(ref, narrowed)
}

func matchOrdinalUnnarrowed(ref string, _, all []catalog.Product) (catalog.Product, bool) {
	return pickOrdinal(ref, all)
}

func pickOrdinal(ref string, set []catalog.Product) (catalog.Product, bool) {
	for idx, word := range ordinals {
		if strings.Contains(ref, word) && idx < len(set) {
			return set[idx], true
		}
	}
	return catalog.Product{}, false
}

func matchExactID(ref string, _, all []catalog.Product) (catalog.Product, bool) {
	for _, p := range all {
		if strings.ToLower(p.ID) == ref {
			return p, true
		}
	}
	return catalog.Product{}, false
}

func matchColorCategory(ref string, _, all []catalog.Product) (catalog.Product, bool) {
	for _, p := range all {
		color := strings.ToLower(p.Color)
		category := strings.ToLower(p.Category)
		if color != "" && category != "" && strings.Contains(ref, color) && strings.Contains(ref, category) {
			return p, true
		}
	}
	return catalog.Product{}, false
}

// matchAllTokens requires at least one significant token so that a reference
// made only of short words does not select the first candidate.
func matchAllTokens(ref string, narrowed, _ []catalog.Product) (catalog.Product, bool) {
	tokens := significantTokens(ref)
	if len(tokens) == 0 {
		return catalog.Product{}, false
	}
	for _, p := range narrowed {
		name := strings.ToLower(p.Name)
		all := true
		for _, tok := range tokens {
			if !strings.Contains(name, tok) {
				all = false
				break
			}
		}
		if all {
			return p, true
		}
	}
	return catalog.Product{}, false
}

func matchAnyToken(ref string, _, all []catalog.Product) (catalog.Product, bool) {
	tokens := significantTokens(ref)
	for _, p := range all {
		name := strings.ToLower(p.Name)
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				return p, true
			}
		}
	}
	return catalog.Product{}, false
}

func matchNumericIndex(ref string, narrowed, _ []catalog.Product) (catalog.Product, bool) {
	for _, tok := range strings.Fields(ref) {
		if !isDigits(tok) {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if idx := n - 1; idx >= 0 && idx < len(narrowed) {
			return narrowed[idx], true
		}
	}
	return catalog.Product{}, false
}

func significantTokens(ref string) []string {
	var out []string
	for _, tok := range strings.Fields(ref) {
		if len(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
