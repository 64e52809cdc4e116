package storage

import (
	"context"
	"path/filepath"
	"testing"

	"foodlog/internal/core"
	"foodlog/internal/entries"
	"foodlog/internal/entries/entriestest"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "foodlog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteBackend(t *testing.T) {
	entriestest.Run(t, func(t *testing.T) entries.Backend {
		return newTestRepo(t)
	})
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "foodlog.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	version, dirty, err := SchemaVersion(DSN(path))
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("schema version = %d dirty=%v, want 1 clean", version, dirty)
	}

	// Running again is a no-op.
	if err := RunMigrations(DSN(path)); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foodlog.db")
	ctx := context.Background()

	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	if _, err := repo.AddFood(ctx, 19738, "Apple"); err != nil {
		t.Fatalf("AddFood: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	q, ok, err := repo.Get(ctx, 19738, "Apple")
	if err != nil || !ok || q != 1 {
		t.Fatalf("Get after reopen = (%d, %v, %v)", q, ok, err)
	}
}

func TestClosedRepositoryReturnsStorageError(t *testing.T) {
	repo := newTestRepo(t)
	repo.Close()

	ctx := context.Background()
	if _, err := repo.AddFood(ctx, 1, "Apple"); !core.IsStorageError(err) {
		t.Fatalf("AddFood on closed db: expected storage error, got %v", err)
	}
	if _, err := repo.ScanAll(ctx); !core.IsStorageError(err) {
		t.Fatalf("ScanAll on closed db: expected storage error, got %v", err)
	}
	if _, err := repo.RecentNames(ctx, 10); !core.IsStorageError(err) {
		t.Fatalf("RecentNames on closed db: expected storage error, got %v", err)
	}
}

func TestRankingsOnEmptyTable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	recent, err := repo.RecentNames(ctx, 10)
	if err != nil || recent == nil || len(recent) != 0 {
		t.Fatalf("RecentNames on empty = (%v, %v)", recent, err)
	}
	popular, err := repo.PopularNames(ctx, 0)
	if err != nil || len(popular) != 0 {
		t.Fatalf("PopularNames on empty = (%v, %v)", popular, err)
	}
}
