package live

import (
	"context"
	"log/slog"
	"sync"

	"foodlog/internal/core"
)

// Snapshot is the full set of entries of one day after a commit.
type Snapshot struct {
	Day     core.Day
	Entries []core.FoodEntry
}

// Loader reads the rows of a day. entries.Store satisfies it.
type Loader interface {
	ScanByDate(ctx context.Context, day core.Day) ([]core.FoodEntry, error)
}

// Hub fans out per-day snapshots to subscribers after each committed mutation.
type Hub struct {
	loader Loader

	mu   sync.RWMutex
	subs map[core.Day]map[*Subscription]struct{}

	// publishMu orders load+deliver so the last publish always carries the
	// latest committed state.
	publishMu sync.Mutex
}

func NewHub(loader Loader) *Hub {
	return &Hub{
		loader: loader,
		subs:   make(map[core.Day]map[*Subscription]struct{}),
	}
}

// Subscription receives snapshots of a single day. C holds at most one
// pending snapshot; a newer one replaces an unread older one.
type Subscription struct {
	Day core.Day

	hub    *Hub
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
}

// C returns the snapshot channel. It is closed by Cancel.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Subscribe registers interest in day and queues its current snapshot.
func (h *Hub) Subscribe(ctx context.Context, day core.Day) (*Subscription, error) {
	sub := &Subscription{Day: day, hub: h, ch: make(chan Snapshot, 1)}

	h.mu.Lock()
	set := h.subs[day]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[day] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	rows, err := h.loader.ScanByDate(ctx, day)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.deliver(Snapshot{Day: day, Entries: rows})
	return sub, nil
}

// Publish pushes the current state of day to its subscribers. Load failures
// are logged; subscribers keep their previous snapshot.
func (h *Hub) Publish(ctx context.Context, day core.Day) {
	h.mu.RLock()
	n := len(h.subs[day])
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	rows, err := h.loader.ScanByDate(ctx, day)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load day for subscribers", "date", day.String(), "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[day]))
	for sub := range h.subs[day] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(Snapshot{Day: day, Entries: append([]core.FoodEntry(nil), rows...)})
	}
}

// Subscribers returns the number of active subscriptions for day.
func (h *Hub) Subscribers(day core.Day) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[day])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subs[sub.Day]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.Day)
		}
	}
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// Cancel unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
