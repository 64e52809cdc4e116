package live

import (
	"context"
	"errors"
	"sync"

	"foodlog/internal/core"
)

var ErrSelectorClosed = errors.New("selector closed")

// Selector follows one selected day at a time. Changing the day cancels the
// previous subscription before the new one starts, so C only ever carries
// snapshots of the current day.
type Selector struct {
	hub *Hub
	out chan Snapshot

	mu      sync.Mutex
	current core.Day
	sub     *Subscription
	gen     uint64
	closed  bool
	wg      sync.WaitGroup
}

func NewSelector(hub *Hub) *Selector {
	return &Selector{hub: hub, out: make(chan Snapshot, 1)}
}

// C delivers snapshots of the selected day. Closed by Close.
func (s *Selector) C() <-chan Snapshot {
	return s.out
}

// Current returns the selected day. Zero before the first SetDate.
func (s *Selector) Current() core.Day {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetDate switches the selection to day.
func (s *Selector) SetDate(ctx context.Context, day core.Day) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSelectorClosed
	}
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.gen++
	gen := s.gen
	s.current = day
	// Drop a pending snapshot of the old day.
	select {
	case <-s.out:
	default:
	}
	s.mu.Unlock()

	sub, err := s.hub.Subscribe(ctx, day)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		// Superseded while subscribing.
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.wg.Add(1)
	s.mu.Unlock()

	go s.forward(gen, sub)
	return nil
}

// PrevDay selects the day before the current one.
func (s *Selector) PrevDay(ctx context.Context) error {
	return s.SetDate(ctx, s.Current().AddDays(-1))
}

// NextDay selects the day after the current one.
func (s *Selector) NextDay(ctx context.Context) error {
	return s.SetDate(ctx, s.Current().AddDays(1))
}

func (s *Selector) forward(gen uint64, sub *Subscription) {
	defer s.wg.Done()
	for snap := range sub.C() {
		s.mu.Lock()
		if s.closed || s.gen != gen {
			s.mu.Unlock()
			return
		}
		select {
		case <-s.out:
		default:
		}
		s.out <- snap
		s.mu.Unlock()
	}
}

// Close cancels the active subscription and closes C.
func (s *Selector) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	close(s.out)
}
