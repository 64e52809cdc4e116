package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"foodlog/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable entry store. Writes are serialized through
// writeMu and each mutation runs in its own transaction; reads go straight to
// the pool and may run concurrently.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	writeMu sync.Mutex
}

// DSN builds the modernc.org/sqlite connection string for dbPath.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.NewStorageError("ping", r.db.PingContext(ctx))
}

// Get returns the quantity stored for (day, name).
func (r *SQLiteRepository) Get(ctx context.Context, day core.Day, name string) (int, bool, error) {
	q, err := r.queries.GetQuantity(ctx, int64(day), name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, core.NewStorageError("get", err)
	}
	return int(q), true, nil
}

// Put overwrites or inserts a row; a non-positive quantity deletes it.
func (r *SQLiteRepository) Put(ctx context.Context, e core.FoodEntry) error {
	if err := core.ValidateName(e.Name); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if e.Quantity <= 0 {
		return core.NewStorageError("put", r.queries.DeleteEntry(ctx, int64(e.Date), e.Name))
	}
	err := r.queries.UpsertEntry(ctx, UpsertEntryParams{
		Date:     int64(e.Date),
		Name:     e.Name,
		Quantity: int64(e.Quantity),
	})
	if err != nil {
		return core.NewStorageError("put", err)
	}

	slog.DebugContext(ctx, "Entry written", "date", e.Date.String(), "name", e.Name, "quantity", e.Quantity)
	return nil
}

// Delete removes the row for (day, name) if present.
func (r *SQLiteRepository) Delete(ctx context.Context, day core.Day, name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.queries.DeleteEntry(ctx, int64(day), name); err != nil {
		return core.NewStorageError("delete", err)
	}
	return nil
}

// ScanAll returns every row ordered by date and name.
func (r *SQLiteRepository) ScanAll(ctx context.Context) ([]core.FoodEntry, error) {
	rows, err := r.queries.ListEntries(ctx)
	if err != nil {
		return nil, core.NewStorageError("scan all", err)
	}
	return toEntries(rows), nil
}

// ScanByDate returns the rows logged on day.
func (r *SQLiteRepository) ScanByDate(ctx context.Context, day core.Day) ([]core.FoodEntry, error) {
	rows, err := r.queries.ListEntriesByDate(ctx, int64(day))
	if err != nil {
		return nil, core.NewStorageError("scan by date", err)
	}
	return toEntries(rows), nil
}

// AddFood increments the quantity for (day, name) or inserts it with 1.
func (r *SQLiteRepository) AddFood(ctx context.Context, day core.Day, name string) (int, error) {
	return r.AddServings(ctx, day, name, 1)
}

// AddServings adds n servings to (day, name) in one transaction.
func (r *SQLiteRepository) AddServings(ctx context.Context, day core.Day, name string, n int) (int, error) {
	if err := (core.FoodEntry{Date: day, Name: name, Quantity: n}).Validate(); err != nil {
		return 0, err
	}

	var quantity int64
	err := r.inTx(ctx, func(q *Queries) error {
		updated, err := q.IncrementQuantity(ctx, int64(day), name, int64(n))
		if err != nil {
			return fmt.Errorf("increment quantity: %w", err)
		}
		if updated == 0 {
			if err := q.InsertIgnore(ctx, int64(day), name, int64(n)); err != nil {
				return fmt.Errorf("insert entry: %w", err)
			}
		}
		quantity, err = q.GetQuantity(ctx, int64(day), name)
		if err != nil {
			return fmt.Errorf("read quantity: %w", err)
		}
		if quantity < int64(n) {
			return fmt.Errorf("quantity %d after adding %d: %w", quantity, n, core.ErrConcurrencyViolation)
		}
		return nil
	})
	if err != nil {
		return 0, core.NewStorageError("add food", err)
	}

	slog.DebugContext(ctx, "Food added", "date", day.String(), "name", name, "servings", n, "quantity", quantity)
	return int(quantity), nil
}

// RemoveOne decrements the quantity for (day, name) and deletes the row when
// it reaches zero. Absent rows are left untouched.
func (r *SQLiteRepository) RemoveOne(ctx context.Context, day core.Day, name string) (int, bool, error) {
	var (
		quantity int64
		changed  bool
	)
	err := r.inTx(ctx, func(q *Queries) error {
		decremented, err := q.DecrementQuantity(ctx, int64(day), name)
		if err != nil {
			return fmt.Errorf("decrement quantity: %w", err)
		}
		if decremented > 0 {
			changed = true
			quantity, err = q.GetQuantity(ctx, int64(day), name)
			if err != nil {
				return fmt.Errorf("read quantity: %w", err)
			}
			if quantity < 1 {
				return fmt.Errorf("quantity %d after remove: %w", quantity, core.ErrConcurrencyViolation)
			}
			return nil
		}
		deleted, err := q.DeleteIfAtMostOne(ctx, int64(day), name)
		if err != nil {
			return fmt.Errorf("delete empty entry: %w", err)
		}
		changed = deleted > 0
		quantity = 0
		return nil
	})
	if err != nil {
		return 0, false, core.NewStorageError("remove one", err)
	}

	if changed {
		slog.DebugContext(ctx, "Food removed", "date", day.String(), "name", name, "quantity", quantity)
	}
	return int(quantity), changed, nil
}

// RecentNames returns names ordered by their latest day.
func (r *SQLiteRepository) RecentNames(ctx context.Context, limit int) ([]string, error) {
	names, err := r.queries.RecentNames(ctx, int64(rankingLimit(limit)))
	if err != nil {
		return nil, core.NewStorageError("recent names", err)
	}
	return nonNil(names), nil
}

// PopularNames returns names ordered by distinct day count, then latest day.
func (r *SQLiteRepository) PopularNames(ctx context.Context, limit int) ([]string, error) {
	names, err := r.queries.PopularNames(ctx, int64(rankingLimit(limit)))
	if err != nil {
		return nil, core.NewStorageError("popular names", err)
	}
	return nonNil(names), nil
}

// PopularNamesSince ranks like PopularNames over rows dated on or after since.
func (r *SQLiteRepository) PopularNamesSince(ctx context.Context, since core.Day, limit int) ([]string, error) {
	names, err := r.queries.PopularNamesSince(ctx, int64(since), int64(rankingLimit(limit)))
	if err != nil {
		return nil, core.NewStorageError("popular names since", err)
	}
	return nonNil(names), nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func rankingLimit(limit int) int {
	if limit <= 0 {
		return core.DefaultRankingLimit
	}
	return limit
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

func toEntries(rows []FoodEntry) []core.FoodEntry {
	out := make([]core.FoodEntry, len(rows))
	for i, row := range rows {
		out[i] = core.FoodEntry{
			Date:     core.Day(row.Date),
			Name:     row.Name,
			Quantity: int(row.Quantity),
		}
	}
	return out
}
