package entries

import (
	"context"

	"foodlog/internal/core"
)

// Ports implemented by every entry backend.
type (
	// Store is the raw (date, name) -> quantity table.
	Store interface {
		Get(ctx context.Context, day core.Day, name string) (quantity int, ok bool, err error)
		// Put overwrites or inserts a row. A quantity <= 0 deletes it.
		Put(ctx context.Context, e core.FoodEntry) error
		Delete(ctx context.Context, day core.Day, name string) error
		ScanAll(ctx context.Context) ([]core.FoodEntry, error)
		ScanByDate(ctx context.Context, day core.Day) ([]core.FoodEntry, error)
	}

	// Mutator applies the atomic quantity changes.
	Mutator interface {
		// AddFood increments the quantity for (day, name), inserting it with 1
		// when absent, and returns the committed quantity.
		AddFood(ctx context.Context, day core.Day, name string) (int, error)
		// AddServings is AddFood repeated n times as a single atomic write.
		// n must be in 1..core.MaxServings.
		AddServings(ctx context.Context, day core.Day, name string, n int) (int, error)
		// RemoveOne decrements the quantity for (day, name), deleting the row
		// when it reaches zero. It returns the remaining quantity and whether a
		// row was changed; an absent row is a no-op.
		RemoveOne(ctx context.Context, day core.Day, name string) (int, bool, error)
	}

	// Ranker computes the quick-add suggestion lists.
	Ranker interface {
		RecentNames(ctx context.Context, limit int) ([]string, error)
		PopularNames(ctx context.Context, limit int) ([]string, error)
		// PopularNamesSince ranks only rows dated on or after since.
		PopularNamesSince(ctx context.Context, since core.Day, limit int) ([]string, error)
	}

	// Backend bundles everything the food service needs.
	Backend interface {
		Store
		Mutator
		Ranker
		Ping(ctx context.Context) error
		Close() error
	}
)
