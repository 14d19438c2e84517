package store

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode/utf16"

	"jstagram/pkg/domain"
)

// Resolve filters, orders and caps records according to q.
// records must be in insertion order and may be reordered in place.
func Resolve(records []domain.Picture, q Query) []domain.Picture {
	out := records
	if q.Title != "" {
		out = filterTitle(records, q.Title)
	}

	switch q.Order {
	case domain.OrderTitleAsc:
		slices.SortStableFunc(out, titleAsc)
	case domain.OrderTitleDesc:
		slices.SortStableFunc(out, titleDesc)
	case domain.OrderRandom:
		shuffleHead(out, domain.PageSize)
	case domain.OrderOldest:
	default:
		if len(out) > domain.PageSize {
			out = out[len(out)-domain.PageSize:]
		}
		slices.Reverse(out)
	}

	if len(out) > domain.PageSize {
		out = out[:domain.PageSize]
	}
	return out
}

func filterTitle(records []domain.Picture, title string) []domain.Picture {
	out := make([]domain.Picture, 0, len(records))
	for _, p := range records {
		if strings.Contains(p.Title, title) {
			out = append(out, p)
		}
	}
	return out
}

// titleAsc orders by title, then by id so equal titles keep insertion order.
func titleAsc(a, b domain.Picture) int {
	if c := compareCodeUnits(a.Title, b.Title); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func titleDesc(a, b domain.Picture) int {
	return titleAsc(b, a)
}

// compareCodeUnits compares strings by UTF-16 code unit, which differs from
// byte order only for characters above U+FFFF.
func compareCodeUnits(a, b string) int {
	if isBMPOnly(a) && isBMPOnly(b) {
		return strings.Compare(a, b)
	}
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

func isBMPOnly(s string) bool {
	for _, r := range s {
		if r > 0xFFFF {
			return false
		}
	}
	return true
}

// shuffleHead performs the first n steps of a Fisher-Yates shuffle so that
// s[:n] is a uniform random selection in random order.
func shuffleHead(s []domain.Picture, n int) {
	if n > len(s) {
		n = len(s)
	}
	for i := 0; i < n; i++ {
		j := i + rand.IntN(len(s)-i)
		s[i], s[j] = s[j], s[i]
	}
}
