package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"jstagram/pkg/domain"
)

func TestMemoryCatalogInsertIssuesIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()

	first, err := c.Insert(ctx, "hello", "a.png")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected first id 1, got %d", first.ID)
	}
	second, _ := c.Insert(ctx, "", "b.png")
	if second.ID != 2 {
		t.Fatalf("expected second id 2, got %d", second.ID)
	}

	if _, err := c.Remove(ctx, second.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	third, _ := c.Insert(ctx, "again", "c.png")
	if third.ID != 3 {
		t.Fatalf("ids must not be reused after delete, got %d", third.ID)
	}
}

func TestMemoryCatalogSeedContinuesAfterHighestID(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog(WithSeed(SamplePictures()))

	got, err := c.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !slices.Equal(ids(got), []int64{4, 3, 2, 1}) {
		t.Fatalf("unexpected default listing: %v", ids(got))
	}
	p, _ := c.Insert(ctx, "testTitle", "toDelete.png")
	if p.ID != 5 {
		t.Fatalf("expected id 5 after seed, got %d", p.ID)
	}
}

func TestMemoryCatalogRemove(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog(WithSeed(SamplePictures()))

	removed, err := c.Remove(ctx, 2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Filename != "2.png" {
		t.Fatalf("unexpected removed record: %+v", removed)
	}
	if _, err := c.Remove(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
	if _, err := c.Remove(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	got, _ := c.Query(ctx, Query{Order: domain.OrderOldest})
	if !slices.Equal(ids(got), []int64{1, 3, 4}) {
		t.Fatalf("unexpected listing after remove: %v", ids(got))
	}
}

func TestMemoryCatalogQueryDoesNotExposeInternalState(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog(WithSeed(SamplePictures()))

	got, _ := c.Query(ctx, Query{Order: domain.OrderOldest})
	got[0].Title = "mutated"
	again, _ := c.Query(ctx, Query{Order: domain.OrderOldest})
	if again[0].Title == "mutated" {
		t.Fatalf("query result aliases catalog storage")
	}
}

func TestMemoryCatalogConcurrentInsertsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	const workers = 64

	var wg sync.WaitGroup
	idsCh := make(chan int64, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Insert(ctx, fmt.Sprintf("t%d", i), fmt.Sprintf("%d.png", i))
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			idsCh <- p.ID
		}()
	}
	wg.Wait()
	close(idsCh)

	seen := map[int64]bool{}
	for id := range idsCh {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d ids, got %d", workers, len(seen))
	}
}

func TestMemoryCatalogConcurrentRemoveSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	p, _ := c.Insert(ctx, "contested", "x.png")

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Remove(ctx, p.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful remove, got %d", wins)
	}
}
