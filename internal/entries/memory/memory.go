package memory

import (
	"context"
	"errors"
	"sync"

	"foodlog/internal/core"
)

var errClosed = errors.New("store closed")

// Store keeps entries in a map guarded by a single lock. Writers are
// serialized for the whole store.
type Store struct {
	mu     sync.RWMutex
	rows   map[core.EntryKey]int
	closed bool
}

func New() *Store {
	return &Store{rows: make(map[core.EntryKey]int)}
}

// NewWithEntries seeds the store. Rows with a non-positive quantity are dropped.
func NewWithEntries(seed []core.FoodEntry) *Store {
	s := New()
	for _, e := range seed {
		if e.Quantity > 0 {
			s.rows[e.Key()] += e.Quantity
		}
	}
	return s
}

func (s *Store) Get(_ context.Context, day core.Day, name string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, core.NewStorageError("get", errClosed)
	}
	q, ok := s.rows[core.EntryKey{Date: day, Name: name}]
	return q, ok, nil
}

func (s *Store) Put(_ context.Context, e core.FoodEntry) error {
	if err := core.ValidateName(e.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewStorageError("put", errClosed)
	}
	if e.Quantity <= 0 {
		delete(s.rows, e.Key())
		return nil
	}
	s.rows[e.Key()] = e.Quantity
	return nil
}

func (s *Store) Delete(_ context.Context, day core.Day, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewStorageError("delete", errClosed)
	}
	delete(s.rows, core.EntryKey{Date: day, Name: name})
	return nil
}

func (s *Store) ScanAll(_ context.Context) ([]core.FoodEntry, error) {
	return s.scan("scan all", func(core.EntryKey) bool { return true })
}

func (s *Store) ScanByDate(_ context.Context, day core.Day) ([]core.FoodEntry, error) {
	return s.scan("scan by date", func(k core.EntryKey) bool { return k.Date == day })
}

func (s *Store) scan(op string, keep func(core.EntryKey) bool) ([]core.FoodEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.NewStorageError(op, errClosed)
	}
	out := make([]core.FoodEntry, 0, len(s.rows))
	for k, q := range s.rows {
		if keep(k) {
			out = append(out, core.FoodEntry{Date: k.Date, Name: k.Name, Quantity: q})
		}
	}
	core.SortEntries(out)
	return out, nil
}

func (s *Store) AddFood(ctx context.Context, day core.Day, name string) (int, error) {
	return s.AddServings(ctx, day, name, 1)
}

func (s *Store) AddServings(_ context.Context, day core.Day, name string, n int) (int, error) {
	if err := (core.FoodEntry{Date: day, Name: name, Quantity: n}).Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.NewStorageError("add food", errClosed)
	}
	k := core.EntryKey{Date: day, Name: name}
	s.rows[k] += n
	return s.rows[k], nil
}

func (s *Store) RemoveOne(_ context.Context, day core.Day, name string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, core.NewStorageError("remove one", errClosed)
	}
	k := core.EntryKey{Date: day, Name: name}
	q, ok := s.rows[k]
	if !ok || q <= 0 {
		delete(s.rows, k)
		return 0, false, nil
	}
	q--
	if q == 0 {
		delete(s.rows, k)
	} else {
		s.rows[k] = q
	}
	return q, true, nil
}

func (s *Store) RecentNames(ctx context.Context, limit int) ([]string, error) {
	all, err := s.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	return core.RankRecent(core.Aggregate(all), limit), nil
}

func (s *Store) PopularNames(ctx context.Context, limit int) ([]string, error) {
	all, err := s.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	return core.RankPopular(core.Aggregate(all), limit), nil
}

func (s *Store) PopularNamesSince(_ context.Context, since core.Day, limit int) ([]string, error) {
	rows, err := s.scan("popular since", func(k core.EntryKey) bool { return k.Date >= since })
	if err != nil {
		return nil, err
	}
	return core.RankPopular(core.Aggregate(rows), limit), nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.NewStorageError("ping", errClosed)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
