package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"foodlog/internal/amqp"
	"foodlog/internal/cache"
	"foodlog/internal/core"
	"foodlog/internal/csvio"
	"foodlog/internal/entries"
	"foodlog/internal/live"
	"foodlog/internal/log"
)

const (
	keyRecent  = "recent"
	keyPopular = "popular"
)

// EventPublisher receives committed entry changes. Optional.
type EventPublisher interface {
	PublishEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error
}

// Options tunes a FoodService.
type Options struct {
	RankingLimit    int
	RankingCacheTTL time.Duration
	Publisher       EventPublisher
	Logger          *log.Logger
}

// ImportResult summarizes a best-effort import.
type ImportResult struct {
	Applied    int // lines applied
	Skipped    int // malformed lines
	Increments int // servings added
}

// FoodService is the entry point for collaborators: it runs mutations
// against the backend, then refreshes live subscribers, drops cached
// rankings and announces the change.
type FoodService struct {
	backend   entries.Backend
	hub       *live.Hub
	publisher EventPublisher
	rankings  *cache.Loading[[]string]
	limit     int
	logger    *log.Logger
}

func NewFoodService(backend entries.Backend, opts Options) *FoodService {
	limit := opts.RankingLimit
	if limit <= 0 {
		limit = core.DefaultRankingLimit
	}
	ttl := opts.RankingCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentFood)
	}
	return &FoodService{
		backend:   backend,
		hub:       live.NewHub(backend),
		publisher: opts.Publisher,
		rankings:  cache.NewLoading[[]string](64, ttl),
		limit:     limit,
		logger:    logger,
	}
}

// RankingCache exposes the ranking cache for periodic cleanup.
func (s *FoodService) RankingCache() cache.Cleaner {
	return s.rankings
}

// AddFood logs one more serving of name on day and returns the new quantity.
func (s *FoodService) AddFood(ctx context.Context, day core.Day, name string) (int, error) {
	quantity, err := s.backend.AddFood(ctx, day, name)
	if err != nil {
		return 0, fmt.Errorf("add food: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	s.committed(ctx, day)
	s.publish(ctx, amqp.NewEntryChangedMessage(day, name, quantity, amqp.OpAdd))

	s.logger.InfoContext(ctx, "Food added", log.NewFields().
		WithOperation(log.OpAdd).
		WithEntry(day.String(), name, quantity).
		ToSlice()...)
	return quantity, nil
}

// RemoveOne takes one serving of name off day. Removing from an absent row
// is a no-op and returns 0.
func (s *FoodService) RemoveOne(ctx context.Context, day core.Day, name string) (int, error) {
	quantity, changed, err := s.backend.RemoveOne(ctx, day, name)
	if err != nil {
		return 0, fmt.Errorf("remove food: %w", err)
	}
	if !changed {
		s.logger.DebugContext(ctx, "Nothing to remove", log.FieldDate, day.String(), log.FieldName, name)
		return 0, nil
	}

	ctx = context.WithoutCancel(ctx)
	s.committed(ctx, day)
	s.publish(ctx, amqp.NewEntryChangedMessage(day, name, quantity, amqp.OpRemove))

	s.logger.InfoContext(ctx, "Food removed", log.NewFields().
		WithOperation(log.OpRemove).
		WithEntry(day.String(), name, quantity).
		ToSlice()...)
	return quantity, nil
}

// EntriesForDate returns the current rows of day.
func (s *FoodService) EntriesForDate(ctx context.Context, day core.Day) ([]core.FoodEntry, error) {
	rows, err := s.backend.ScanByDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("entries for date: %w", err)
	}
	return rows, nil
}

// Subscribe follows day; a snapshot arrives now and after every commit on it.
func (s *FoodService) Subscribe(ctx context.Context, day core.Day) (*live.Subscription, error) {
	sub, err := s.hub.Subscribe(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}

// NewSelector returns a day selector bound to this service's live updates.
func (s *FoodService) NewSelector() *live.Selector {
	return live.NewSelector(s.hub)
}

// RecentNames returns up to the ranking limit of names, most recently used first.
func (s *FoodService) RecentNames(ctx context.Context) ([]string, error) {
	return s.ranked(ctx, keyRecent, func(ctx context.Context) ([]string, error) {
		return s.backend.RecentNames(ctx, s.limit)
	})
}

// PopularNames returns names logged on the most distinct days.
func (s *FoodService) PopularNames(ctx context.Context) ([]string, error) {
	return s.ranked(ctx, keyPopular, func(ctx context.Context) ([]string, error) {
		return s.backend.PopularNames(ctx, s.limit)
	})
}

// PopularNamesSince ranks like PopularNames over days on or after since.
func (s *FoodService) PopularNamesSince(ctx context.Context, since core.Day) ([]string, error) {
	return s.ranked(ctx, keyPopular+":"+since.String(), func(ctx context.Context) ([]string, error) {
		return s.backend.PopularNamesSince(ctx, since, s.limit)
	})
}

func (s *FoodService) ranked(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	names, err := s.rankings.GetOrLoad(ctx, key, load)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", key, err)
	}
	return append([]string(nil), names...), nil
}

// Export writes every entry as CSV, ordered by date then name.
func (s *FoodService) Export(ctx context.Context, w io.Writer) error {
	all, err := s.backend.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	core.SortEntries(all)
	if err := csvio.Write(w, all); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	s.logger.InfoContext(ctx, "Entries exported", log.FieldOperation, log.OpExport, "rows", len(all))
	return nil
}

// ExportCSV returns the export as a string.
func (s *FoodService) ExportCSV(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Import adds each well-formed line's quantity to its (date, name) row, one
// atomic write per line. Malformed lines are skipped and counted. A storage
// failure or cancellation stops the import; lines already applied stay
// applied and their days are still pushed to subscribers.
func (s *FoodService) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	touched := make(map[core.Day]struct{})

	defer func() {
		if len(touched) == 0 {
			return
		}
		s.rankings.Invalidate()
		pubCtx := context.WithoutCancel(ctx)
		for day := range touched {
			s.hub.Publish(pubCtx, day)
		}
	}()

	reader := csvio.NewReader(r)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *core.ParseError
		if errors.As(err, &pe) {
			res.Skipped++
			s.logger.DebugContext(ctx, "Skipping import line", "line", pe.Line, "reason", pe.Reason)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("import: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import line %d: %w", rec.Line, err)
		}
		quantity, err := s.backend.AddServings(ctx, rec.Date, rec.Name, rec.Quantity)
		if err != nil {
			return res, fmt.Errorf("import line %d: %w", rec.Line, err)
		}
		touched[rec.Date] = struct{}{}
		res.Increments += rec.Quantity
		res.Applied++
		s.publish(context.WithoutCancel(ctx), amqp.NewEntryChangedMessage(rec.Date, rec.Name, quantity, amqp.OpImport))
	}

	s.logger.InfoContext(ctx, "Entries imported",
		log.FieldOperation, log.OpImport,
		log.FieldApplied, res.Applied,
		log.FieldSkipped, res.Skipped,
		"increments", res.Increments)
	return res, nil
}

// ImportCSV imports from a string.
func (s *FoodService) ImportCSV(ctx context.Context, text string) (ImportResult, error) {
	return s.Import(ctx, bytes.NewReader([]byte(text)))
}

// Ping checks the backend.
func (s *FoodService) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Refresh drops cached rankings and pushes day's entries to subscribers.
// It is used when another process changed the store.
func (s *FoodService) Refresh(ctx context.Context, day core.Day) {
	s.committed(context.WithoutCancel(ctx), day)
}

func (s *FoodService) committed(ctx context.Context, day core.Day) {
	s.rankings.Invalidate()
	s.hub.Publish(ctx, day)
}

func (s *FoodService) publish(ctx context.Context, msg *amqp.EntryChangedMessage) {
	if s.publisher == nil {
		return
	}
	// The change is committed locally; a failed announcement is only logged.
	if err := s.publisher.PublishEntryChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish entry change", log.NewFields().
			WithOperation(log.OpPublish).
			WithEntry(msg.Date, msg.Name, msg.Quantity).
			WithError(err).
			ToSlice()...)
	}
}

// Close closes the backend and, when it supports it, the publisher.
func (s *FoodService) Close() error {
	var errs []error

	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close food service: %w", errors.Join(errs...))
	}
	return nil
}
