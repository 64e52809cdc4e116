package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"foodlog/internal/core"
	"foodlog/internal/entries/memory"
)

func recv(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func quantityOf(snap Snapshot, name string) int {
	for _, e := range snap.Entries {
		if e.Name == name {
			return e.Quantity
		}
	}
	return 0
}

func TestSubscribeDeliversInitialAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hub := NewHub(store)

	store.AddFood(ctx, 10, "Apple")
	sub, err := hub.Subscribe(ctx, 10)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	snap := recv(t, sub.C())
	if snap.Day != 10 || quantityOf(snap, "Apple") != 1 {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	store.AddFood(ctx, 10, "Apple")
	hub.Publish(ctx, 10)
	if snap := recv(t, sub.C()); quantityOf(snap, "Apple") != 2 {
		t.Fatalf("unexpected update: %+v", snap)
	}

	store.RemoveOne(ctx, 10, "Apple")
	store.RemoveOne(ctx, 10, "Apple")
	hub.Publish(ctx, 10)
	if snap := recv(t, sub.C()); len(snap.Entries) != 0 {
		t.Fatalf("expected empty day after removal, got %+v", snap)
	}
}

func TestPublishOtherDayIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hub := NewHub(store)

	sub, err := hub.Subscribe(ctx, 1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()
	recv(t, sub.C())

	store.AddFood(ctx, 2, "Bread")
	hub.Publish(ctx, 2)

	select {
	case snap := <-sub.C():
		t.Fatalf("unexpected snapshot for other day: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLatestSnapshotWins(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hub := NewHub(store)

	sub, err := hub.Subscribe(ctx, 3)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	for i := 0; i < 5; i++ {
		store.AddFood(ctx, 3, "Rice")
		hub.Publish(ctx, 3)
	}
	if snap := recv(t, sub.C()); quantityOf(snap, "Rice") != 5 {
		t.Fatalf("expected only the latest snapshot, got %+v", snap)
	}
}

func TestCancelUnregisters(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(memory.New())

	sub, err := hub.Subscribe(ctx, 4)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if hub.Subscribers(4) != 1 {
		t.Fatalf("expected one subscriber")
	}
	sub.Cancel()
	sub.Cancel()
	if hub.Subscribers(4) != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	// Channel drains the initial snapshot then reports closed.
	for range sub.C() {
	}
}

type failingLoader struct{}

func (failingLoader) ScanByDate(context.Context, core.Day) ([]core.FoodEntry, error) {
	return nil, core.NewStorageError("scan by date", errors.New("disk gone"))
}

func TestSubscribeLoadError(t *testing.T) {
	hub := NewHub(failingLoader{})
	if _, err := hub.Subscribe(context.Background(), 1); !core.IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if hub.Subscribers(1) != 0 {
		t.Fatalf("failed subscription must not stay registered")
	}
}

func TestSelectorSwitchToLatest(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hub := NewHub(store)
	store.AddFood(ctx, 100, "Apple")
	store.AddFood(ctx, 101, "Bread")

	sel := NewSelector(hub)
	defer sel.Close()

	if err := sel.SetDate(ctx, 100); err != nil {
		t.Fatalf("SetDate: %v", err)
	}
	if snap := recv(t, sel.C()); snap.Day != 100 || quantityOf(snap, "Apple") != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := sel.NextDay(ctx); err != nil {
		t.Fatalf("NextDay: %v", err)
	}
	if sel.Current() != 101 {
		t.Fatalf("Current = %d, want 101", sel.Current())
	}
	if hub.Subscribers(100) != 0 {
		t.Fatalf("old day subscription must be cancelled")
	}
	if hub.Subscribers(101) != 1 {
		t.Fatalf("expected one subscription for the new day")
	}
	if snap := recv(t, sel.C()); snap.Day != 101 || quantityOf(snap, "Bread") != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Mutations on the old day no longer reach the selector.
	store.AddFood(ctx, 100, "Apple")
	hub.Publish(ctx, 100)
	store.AddFood(ctx, 101, "Bread")
	hub.Publish(ctx, 101)
	if snap := recv(t, sel.C()); snap.Day != 101 || quantityOf(snap, "Bread") != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := sel.PrevDay(ctx); err != nil {
		t.Fatalf("PrevDay: %v", err)
	}
	if snap := recv(t, sel.C()); snap.Day != 100 || quantityOf(snap, "Apple") != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSelectorClose(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(memory.New())
	sel := NewSelector(hub)
	if err := sel.SetDate(ctx, 1); err != nil {
		t.Fatalf("SetDate: %v", err)
	}
	sel.Close()
	sel.Close()
	if hub.Subscribers(1) != 0 {
		t.Fatalf("Close must cancel the subscription")
	}
	if err := sel.SetDate(ctx, 2); !errors.Is(err, ErrSelectorClosed) {
		t.Fatalf("expected ErrSelectorClosed, got %v", err)
	}
}
