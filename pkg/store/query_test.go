package store

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"jstagram/pkg/domain"
)

func ids(pictures []domain.Picture) []int64 {
	out := make([]int64, 0, len(pictures))
	for _, p := range pictures {
		out = append(out, p.ID)
	}
	return out
}

func syntheticPictures(n int) []domain.Picture {
	out := make([]domain.Picture, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Picture{
			ID:       int64(i),
			Title:    fmt.Sprintf("picture %02d", (i*7)%n),
			Filename: fmt.Sprintf("%d.png", i),
		})
	}
	return out
}

func resolveCopy(records []domain.Picture, q Query) []domain.Picture {
	return Resolve(slices.Clone(records), q)
}

func TestResolveSampleOrders(t *testing.T) {
	samples := SamplePictures()
	cases := []struct {
		token string
		want  []int64
	}{
		{"asc", []int64{1, 4, 3, 2}},
		{"a2z", []int64{1, 4, 3, 2}},
		{"desc", []int64{2, 3, 4, 1}},
		{"z2a", []int64{2, 3, 4, 1}},
		{"old", []int64{1, 2, 3, 4}},
		{"new", []int64{4, 3, 2, 1}},
		{"", []int64{4, 3, 2, 1}},
		{"sideways", []int64{4, 3, 2, 1}},
	}
	for _, tc := range cases {
		got := ids(resolveCopy(samples, Query{Order: domain.ParseSortOrder(tc.token)}))
		if !slices.Equal(got, tc.want) {
			t.Fatalf("order %q: got %v want %v", tc.token, got, tc.want)
		}
	}
}

func TestResolveAscIsReverseOfDesc(t *testing.T) {
	records := syntheticPictures(9)
	// duplicate titles exercise the id tie-break
	records = append(records, domain.Picture{ID: 10, Title: records[0].Title})

	asc := ids(resolveCopy(records, Query{Order: domain.OrderTitleAsc}))
	desc := ids(resolveCopy(records, Query{Order: domain.OrderTitleDesc}))
	slices.Reverse(desc)
	if !slices.Equal(asc, desc) {
		t.Fatalf("asc %v is not the reverse of desc %v", asc, desc)
	}
}

func TestResolveNewestIsReverseOfOldestUpToPageSize(t *testing.T) {
	records := syntheticPictures(domain.PageSize)
	newest := ids(resolveCopy(records, Query{Order: domain.OrderNewest}))
	oldest := ids(resolveCopy(records, Query{Order: domain.OrderOldest}))
	slices.Reverse(newest)
	if !slices.Equal(newest, oldest) {
		t.Fatalf("reversed newest %v != oldest %v", newest, oldest)
	}
}

func TestResolveNewestTakesMostRecentPage(t *testing.T) {
	records := syntheticPictures(13)
	got := ids(resolveCopy(records, Query{Order: domain.OrderNewest}))
	want := []int64{13, 12, 11, 10, 9, 8, 7, 6, 5, 4}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	// cap-then-reverse must agree with reverse-then-cap
	reversed := slices.Clone(records)
	slices.Reverse(reversed)
	if !slices.Equal(got, ids(reversed[:domain.PageSize])) {
		t.Fatalf("cap-then-reverse %v disagrees with reverse-then-cap", got)
	}

	oldest := ids(resolveCopy(records, Query{Order: domain.OrderOldest}))
	if !slices.Equal(oldest, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Fatalf("oldest page mismatch: %v", oldest)
	}
}

func TestResolveRandomCardinalityAndMembership(t *testing.T) {
	records := syntheticPictures(25)
	for i := range records {
		if i%2 == 0 {
			records[i].Title = "fish " + records[i].Title
		}
	}
	for _, title := range []string{"", "fish", "picture 0"} {
		var pool []domain.Picture
		for _, p := range records {
			if strings.Contains(p.Title, title) {
				pool = append(pool, p)
			}
		}
		for range 20 {
			got := resolveCopy(records, Query{Title: title, Order: domain.OrderRandom})
			if len(got) != min(domain.PageSize, len(pool)) {
				t.Fatalf("title %q: got %d results, want %d", title, len(got), min(domain.PageSize, len(pool)))
			}
			seen := map[int64]bool{}
			for _, p := range got {
				if !strings.Contains(p.Title, title) {
					t.Fatalf("title %q: result %q does not match", title, p.Title)
				}
				if seen[p.ID] {
					t.Fatalf("title %q: duplicate id %d", title, p.ID)
				}
				seen[p.ID] = true
			}
		}
	}
}

func TestResolveFilterIsCaseSensitiveSubstring(t *testing.T) {
	samples := SamplePictures()
	for _, order := range []domain.SortOrder{domain.OrderTitleAsc, domain.OrderTitleDesc, domain.OrderRandom, domain.OrderOldest, domain.OrderNewest} {
		got := resolveCopy(samples, Query{Title: "big", Order: order})
		if len(got) != 3 {
			t.Fatalf("order %q: expected 3 matches for big, got %v", order, ids(got))
		}
		for _, p := range got {
			if !strings.Contains(p.Title, "big") {
				t.Fatalf("order %q: unexpected match %q", order, p.Title)
			}
		}
		if got := resolveCopy(samples, Query{Title: "FISH", Order: order}); len(got) != 0 {
			t.Fatalf("order %q: filter should be case-sensitive, got %v", order, ids(got))
		}
		if got := resolveCopy(samples, Query{Title: "nonexistent-substring", Order: order}); len(got) != 0 {
			t.Fatalf("order %q: expected no matches, got %v", order, ids(got))
		}
	}
}

func TestResolveEmpty(t *testing.T) {
	for _, order := range []domain.SortOrder{domain.OrderTitleAsc, domain.OrderRandom, domain.OrderNewest} {
		if got := Resolve(nil, Query{Order: order}); len(got) != 0 {
			t.Fatalf("order %q: expected empty result, got %v", order, got)
		}
	}
}

func TestCompareCodeUnits(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"a", "b", -1},
		{"B", "a", -1},
		{"same", "same", 0},
		{"ab", "a", 1},
		// U+1F41F (surrogate pair D83D) sorts before U+FF21 in UTF-16 but after it in UTF-8
		{"\U0001F41F", "Ａ", -1},
	}
	for _, tc := range cases {
		if got := compareCodeUnits(tc.a, tc.b); got != tc.want {
			t.Fatalf("compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
