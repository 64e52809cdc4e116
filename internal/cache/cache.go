package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cleaner is implemented by caches with expiring items.
type Cleaner interface {
	CleanExpired() int
}

// Loading fronts an LRUCache with a loader. Concurrent misses for the same
// key share one load, and Invalidate guarantees that no load started before
// it can repopulate the cache or be joined by a caller arriving after it.
type Loading[T any] struct {
	lru   *LRUCache[T]
	group singleflight.Group

	// mu makes the generation check and store of a finished load atomic
	// with respect to Invalidate.
	mu  sync.Mutex
	gen uint64
}

func NewLoading[T any](maxSize int, ttl time.Duration) *Loading[T] {
	return &Loading[T]{lru: NewLRUCache[T](maxSize, ttl)}
}

// GetOrLoad returns the cached value for key or calls load to fill it.
func (l *Loading[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.lru.Get(key); ok {
		return v, nil
	}

	gen := l.generation()
	flightKey := key + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := l.group.Do(flightKey, func() (interface{}, error) {
		data, err := load(ctx)
		if err != nil {
			return data, err
		}
		l.storeIfCurrent(gen, key, data)
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (l *Loading[T]) generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// storeIfCurrent caches data unless Invalidate ran since gen was read.
func (l *Loading[T]) storeIfCurrent(gen uint64, key string, data T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return false
	}
	l.lru.Set(key, data)
	return true
}

// Peek returns the cached value without loading.
func (l *Loading[T]) Peek(key string) (T, bool) {
	return l.lru.Get(key)
}

// Invalidate drops every cached value.
func (l *Loading[T]) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.lru.Purge()
}

func (l *Loading[T]) CleanExpired() int {
	return l.lru.CleanExpired()
}

func (l *Loading[T]) Size() int {
	return l.lru.Size()
}

// Manager runs periodic cleanup for registered caches.
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	logger      *slog.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
	started     bool
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:      logger,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the cleanup rounds.
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

// CleanNow runs one cleanup round and returns the number of items removed.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Cache cleanup completed", "entries_removed", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop ends the cleanup routine and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.cleanupDone
		}
	})
}
