// Package entriestest holds the behavior every entries.Backend must show.
package entriestest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"foodlog/internal/core"
	"foodlog/internal/entries"
)

// Factory returns a fresh, empty backend. Cleanup is registered by the factory.
type Factory func(t *testing.T) entries.Backend

// Run executes the shared backend suite.
func Run(t *testing.T, newBackend Factory) {
	t.Run("AddFoodCountsCalls", func(t *testing.T) { testAddFoodCountsCalls(t, newBackend(t)) })
	t.Run("AddServings", func(t *testing.T) { testAddServings(t, newBackend(t)) })
	t.Run("RemoveOneLifecycle", func(t *testing.T) { testRemoveOneLifecycle(t, newBackend(t)) })
	t.Run("RemoveOneAbsentIsNoop", func(t *testing.T) { testRemoveOneAbsent(t, newBackend(t)) })
	t.Run("PutGetDelete", func(t *testing.T) { testPutGetDelete(t, newBackend(t)) })
	t.Run("ScanByDate", func(t *testing.T) { testScanByDate(t, newBackend(t)) })
	t.Run("RecentNames", func(t *testing.T) { testRecentNames(t, newBackend(t)) })
	t.Run("PopularNames", func(t *testing.T) { testPopularNames(t, newBackend(t)) })
	t.Run("PopularNamesSince", func(t *testing.T) { testPopularNamesSince(t, newBackend(t)) })
	t.Run("ConcurrentAddRemove", func(t *testing.T) { testConcurrentAddRemove(t, newBackend(t)) })
	t.Run("CaseSensitiveNames", func(t *testing.T) { testCaseSensitive(t, newBackend(t)) })
}

func quantity(t *testing.T, b entries.Backend, day core.Day, name string) (int, bool) {
	t.Helper()
	q, ok, err := b.Get(context.Background(), day, name)
	if err != nil {
		t.Fatalf("Get(%d, %q): %v", day, name, err)
	}
	return q, ok
}

func mustAdd(t *testing.T, b entries.Backend, day core.Day, name string, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		if _, err := b.AddFood(context.Background(), day, name); err != nil {
			t.Fatalf("AddFood(%d, %q): %v", day, name, err)
		}
	}
}

func testAddFoodCountsCalls(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		q, err := b.AddFood(ctx, 100, "Apple")
		if err != nil {
			t.Fatalf("AddFood: %v", err)
		}
		if q != i {
			t.Fatalf("AddFood #%d returned %d", i, q)
		}
	}
	mustAdd(t, b, 101, "Apple", 2)
	if q, _ := quantity(t, b, 100, "Apple"); q != 5 {
		t.Fatalf("quantity = %d, want 5", q)
	}
	if q, _ := quantity(t, b, 101, "Apple"); q != 2 {
		t.Fatalf("quantity on other day = %d, want 2", q)
	}
	if _, err := b.AddFood(ctx, 100, ""); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func testAddServings(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	if q, err := b.AddServings(ctx, 100, "Rice", 3); err != nil || q != 3 {
		t.Fatalf("AddServings on absent row = %d, %v; want 3", q, err)
	}
	if q, err := b.AddServings(ctx, 100, "Rice", 2); err != nil || q != 5 {
		t.Fatalf("AddServings on existing row = %d, %v; want 5", q, err)
	}

	for _, n := range []int{0, -1, core.MaxServings + 1} {
		if _, err := b.AddServings(ctx, 100, "Rice", n); !errors.Is(err, core.ErrInvalidQuantity) {
			t.Fatalf("AddServings(%d) error = %v, want ErrInvalidQuantity", n, err)
		}
	}
	if q, _ := quantity(t, b, 100, "Rice"); q != 5 {
		t.Fatalf("rejected writes changed quantity to %d", q)
	}
}

func testRemoveOneLifecycle(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	const day = core.Day(19738)
	mustAdd(t, b, day, "Apple", 2)
	if q, _ := quantity(t, b, day, "Apple"); q != 2 {
		t.Fatalf("quantity = %d, want 2", q)
	}

	q, changed, err := b.RemoveOne(ctx, day, "Apple")
	if err != nil || !changed || q != 1 {
		t.Fatalf("RemoveOne = (%d, %v, %v), want (1, true, nil)", q, changed, err)
	}

	q, changed, err = b.RemoveOne(ctx, day, "Apple")
	if err != nil || !changed || q != 0 {
		t.Fatalf("RemoveOne = (%d, %v, %v), want (0, true, nil)", q, changed, err)
	}
	if _, ok := quantity(t, b, day, "Apple"); ok {
		t.Fatalf("row should be deleted at zero")
	}
	rows, err := b.ScanByDate(ctx, day)
	if err != nil {
		t.Fatalf("ScanByDate: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func testRemoveOneAbsent(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	q, changed, err := b.RemoveOne(ctx, 5, "Ghost")
	if err != nil || changed || q != 0 {
		t.Fatalf("RemoveOne on absent row = (%d, %v, %v)", q, changed, err)
	}
	all, err := b.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("no-op remove created rows: %v", all)
	}
}

func testPutGetDelete(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	if _, ok := quantity(t, b, 1, "Rice"); ok {
		t.Fatalf("expected absent row")
	}
	if err := b.Put(ctx, core.FoodEntry{Date: 1, Name: "Rice", Quantity: 4}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if q, ok := quantity(t, b, 1, "Rice"); !ok || q != 4 {
		t.Fatalf("Get = (%d, %v), want (4, true)", q, ok)
	}
	if err := b.Put(ctx, core.FoodEntry{Date: 1, Name: "Rice", Quantity: 7}); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if q, _ := quantity(t, b, 1, "Rice"); q != 7 {
		t.Fatalf("overwrite quantity = %d, want 7", q)
	}
	if err := b.Put(ctx, core.FoodEntry{Date: 1, Name: "Rice", Quantity: 0}); err != nil {
		t.Fatalf("Put zero: %v", err)
	}
	if _, ok := quantity(t, b, 1, "Rice"); ok {
		t.Fatalf("zero quantity must not be persisted")
	}
	if err := b.Put(ctx, core.FoodEntry{Date: 1, Name: "Rice", Quantity: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Delete(ctx, 1, "Rice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := quantity(t, b, 1, "Rice"); ok {
		t.Fatalf("row should be deleted")
	}
	if err := b.Delete(ctx, 1, "Rice"); err != nil {
		t.Fatalf("Delete of absent row: %v", err)
	}
}

func testScanByDate(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	mustAdd(t, b, 10, "Bread", 1)
	mustAdd(t, b, 10, "Apple", 3)
	mustAdd(t, b, 11, "Apple", 1)

	got, err := b.ScanByDate(ctx, 10)
	if err != nil {
		t.Fatalf("ScanByDate: %v", err)
	}
	core.SortEntries(got)
	want := []core.FoodEntry{
		{Date: 10, Name: "Apple", Quantity: 3},
		{Date: 10, Name: "Bread", Quantity: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ScanByDate = %v, want %v", got, want)
	}

	all, err := b.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ScanAll returned %d rows, want 3", len(all))
	}
}

func testRecentNames(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		mustAdd(t, b, core.Day(i), fmt.Sprintf("food-%02d", i), 1)
	}
	// food-00 used again most recently.
	mustAdd(t, b, 20, "food-00", 1)
	// Same day as food-00: tie broken by name.
	mustAdd(t, b, 20, "Aardvark stew", 1)

	got, err := b.RecentNames(ctx, 10)
	if err != nil {
		t.Fatalf("RecentNames: %v", err)
	}
	want := []string{"Aardvark stew", "food-00", "food-11", "food-10", "food-09", "food-08", "food-07", "food-06", "food-05", "food-04"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RecentNames = %v, want %v", got, want)
	}
}

func testPopularNames(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	// Quantity does not count, distinct days do.
	mustAdd(t, b, 1, "Apple", 10)
	mustAdd(t, b, 1, "Bread", 1)
	mustAdd(t, b, 2, "Bread", 1)
	mustAdd(t, b, 3, "Bread", 1)
	mustAdd(t, b, 1, "Cheese", 1)
	mustAdd(t, b, 4, "Cheese", 1)
	mustAdd(t, b, 2, "Dates", 1)
	mustAdd(t, b, 3, "Dates", 1)

	got, err := b.PopularNames(ctx, 10)
	if err != nil {
		t.Fatalf("PopularNames: %v", err)
	}
	want := []string{"Bread", "Cheese", "Dates", "Apple"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PopularNames = %v, want %v", got, want)
	}

	got, err = b.PopularNames(ctx, 2)
	if err != nil {
		t.Fatalf("PopularNames: %v", err)
	}
	if !reflect.DeepEqual(got, want[:2]) {
		t.Fatalf("PopularNames(limit 2) = %v", got)
	}
}

func testPopularNamesSince(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	mustAdd(t, b, 1, "Old", 1)
	mustAdd(t, b, 2, "Old", 1)
	mustAdd(t, b, 3, "Old", 1)
	mustAdd(t, b, 10, "New", 1)
	mustAdd(t, b, 11, "New", 1)
	mustAdd(t, b, 11, "Old", 1)

	got, err := b.PopularNamesSince(ctx, 10, 10)
	if err != nil {
		t.Fatalf("PopularNamesSince: %v", err)
	}
	want := []string{"New", "Old"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PopularNamesSince = %v, want %v", got, want)
	}
}

func testConcurrentAddRemove(t *testing.T, b entries.Backend) {
	ctx := context.Background()
	const (
		workers = 8
		adds    = 25
	)
	mustAdd(t, b, 7, "Rice", workers*adds)

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < adds; i++ {
				if _, err := b.AddFood(ctx, 7, "Rice"); err != nil {
					errs <- err
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < adds; i++ {
				q, _, err := b.RemoveOne(ctx, 7, "Rice")
				if err != nil {
					errs <- err
					return
				}
				if q < 0 {
					errs <- fmt.Errorf("negative quantity %d", q)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent mutation: %v", err)
	}
	if q, _ := quantity(t, b, 7, "Rice"); q != workers*adds {
		t.Fatalf("quantity = %d, want %d", q, workers*adds)
	}
}

func testCaseSensitive(t *testing.T, b entries.Backend) {
	mustAdd(t, b, 1, "apple", 1)
	mustAdd(t, b, 1, "Apple", 2)
	if q, _ := quantity(t, b, 1, "apple"); q != 1 {
		t.Fatalf("apple = %d, want 1", q)
	}
	if q, _ := quantity(t, b, 1, "Apple"); q != 2 {
		t.Fatalf("Apple = %d, want 2", q)
	}
}
