package catalog

import (
	"math"
	"strconv"
	"strings"
)

// CategoryMobile is the canonical category for phones.
const CategoryMobile = "mobile"

var categorySynonyms = map[string]string{
	"phone":        CategoryMobile,
	"phones":       CategoryMobile,
	"mobile":       CategoryMobile,
	"mobile phone": CategoryMobile,
	"mobiles":      CategoryMobile,
	"tshirt":       "tshirt",
	"t-shirts":     "tshirt",
	"tees":         "tshirt",
	"tee":          "tshirt",
}

var phoneKeywords = []string{"phone", "mobile"}

// Criteria is a sparse filter request. Zero values are inactive.
type Criteria struct {
	Query    string
	Category string
	Color    string
	Size     string
	MinPrice *int
	MaxPrice *int
}

// Empty reports whether no criterion is active.
func (c Criteria) Empty() bool {
	return strings.TrimSpace(c.Query) == "" && strings.TrimSpace(c.Category) == "" &&
		strings.TrimSpace(c.Color) == "" && strings.TrimSpace(c.Size) == "" &&
		c.MinPrice == nil && c.MaxPrice == nil
}

// NormalizeCategory lower-cases a category and maps synonyms to their canonical form.
func NormalizeCategory(category string) string {
	cat := strings.ToLower(strings.TrimSpace(category))
	if canon, ok := categorySynonyms[cat]; ok {
		return canon
	}
	return cat
}

// MentionsPhone reports whether text contains a phone/mobile keyword.
func MentionsPhone(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range phoneKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ParseBound converts a loosely typed price bound. Non-numeric, zero and
// negative values yield nil so the bound is ignored.
func ParseBound(v any) *int {
	var n int
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		n = val
	case int32:
		n = int(val)
	case int64:
		n = int(val)
	case float32:
		n = int(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		n = int(val)
	case *int:
		if val == nil {
			return nil
		}
		n = *val
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}

// Filter returns the products matching every active criterion, in input order.
//
// Category matching is lenient: a product matches when its category equals the
// normalized value or either string contains the other, so "home" also matches
// "smart-home". Color is a whole-word match that ignores case and surrounding
// space.
func Filter(products []Product, c Criteria) []Product {
	category := NormalizeCategory(c.Category)
	color := strings.ToLower(strings.TrimSpace(c.Color))
	size := strings.TrimSpace(c.Size)
	query := strings.ToLower(strings.TrimSpace(c.Query))

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if category != "" && !categoryMatches(p.Category, category) {
			continue
		}
		if c.MaxPrice != nil && p.Price > *c.MaxPrice {
			continue
		}
		if c.MinPrice != nil && p.Price < *c.MinPrice {
			continue
		}
		if color != "" && strings.ToLower(p.Color) != color {
			continue
		}
		if size != "" && !p.HasSize(size) {
			continue
		}
		if query != "" {
			if MentionsPhone(query) {
				if p.Category != CategoryMobile {
					continue
				}
			} else if !strings.Contains(strings.ToLower(p.Name), query) &&
				!strings.Contains(strings.ToLower(p.Description), query) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func categoryMatches(productCategory, want string) bool {
	pc := strings.ToLower(productCategory)
	return pc == want || strings.Contains(pc, want) || strings.Contains(want, pc)
}
