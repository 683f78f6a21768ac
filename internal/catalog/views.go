package catalog

import (
	"slices"
	"strings"

	"github.com/fjod/corc-store/internal/domain"
)

type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortPriceAsc  SortOrder = "low"
	SortPriceDesc SortOrder = "high"
)

// AllCategories selects every product.
const AllCategories = "All"

func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case SortNewest, SortPriceAsc, SortPriceDesc:
		return SortOrder(s), true
	case "":
		return SortNewest, true
	default:
		return "", false
	}
}

// FilterByCategory returns a new slice; ps is not modified.
func FilterByCategory(ps []domain.Product, category string) []domain.Product {
	out := make([]domain.Product, 0, len(ps))
	for _, p := range ps {
		if category == "" || category == AllCategories || p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Sort returns a sorted copy. Newest is descending id; ties keep their input order.
func Sort(ps []domain.Product, order SortOrder) []domain.Product {
	out := slices.Clone(ps)
	switch order {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b domain.Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b domain.Product) int { return b.Price.Cmp(a.Price) })
	default:
		slices.SortStableFunc(out, func(a, b domain.Product) int {
			switch {
			case a.ID > b.ID:
				return -1
			case a.ID < b.ID:
				return 1
			}
			return 0
		})
	}
	return out
}

// Search matches name or category, case-insensitively.
func Search(ps []domain.Product, query string) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []domain.Product{}
	}
	out := []domain.Product{}
	for _, p := range ps {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Category), q) {
			out = append(out, p)
		}
	}
	return out
}

// Categories lists "All" followed by each category in first-seen order.
func Categories(ps []domain.Product) []string {
	out := []string{AllCategories}
	seen := make(map[string]bool)
	for _, p := range ps {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}
