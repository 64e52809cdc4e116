package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// FoodEntry mirrors a row of the FoodEntry table.
type FoodEntry struct {
	Date     int64
	Name     string
	Quantity int64
}

const getQuantity = `SELECT quantity FROM FoodEntry WHERE date = ? AND name = ?`

func (q *Queries) GetQuantity(ctx context.Context, date int64, name string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getQuantity, date, name)
	var quantity int64
	err := row.Scan(&quantity)
	return quantity, err
}

const upsertEntry = `INSERT INTO FoodEntry (date, name, quantity) VALUES (?, ?, ?)
ON CONFLICT (date, name) DO UPDATE SET quantity = excluded.quantity`

type UpsertEntryParams struct {
	Date     int64
	Name     string
	Quantity int64
}

func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) error {
	_, err := q.db.ExecContext(ctx, upsertEntry, arg.Date, arg.Name, arg.Quantity)
	return err
}

const incrementQuantity = `UPDATE FoodEntry SET quantity = quantity + ? WHERE date = ? AND name = ?`

func (q *Queries) IncrementQuantity(ctx context.Context, date int64, name string, by int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, incrementQuantity, by, date, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertIgnore = `INSERT OR IGNORE INTO FoodEntry (date, name, quantity) VALUES (?, ?, ?)`

func (q *Queries) InsertIgnore(ctx context.Context, date int64, name string, quantity int64) error {
	_, err := q.db.ExecContext(ctx, insertIgnore, date, name, quantity)
	return err
}

const decrementQuantity = `UPDATE FoodEntry SET quantity = quantity - 1 WHERE date = ? AND name = ? AND quantity > 1`

// DecrementQuantity lowers quantities above one. Rows at one are removed by
// DeleteIfAtMostOne instead, so the quantity > 0 constraint always holds.
func (q *Queries) DecrementQuantity(ctx context.Context, date int64, name string) (int64, error) {
	result, err := q.db.ExecContext(ctx, decrementQuantity, date, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteIfAtMostOne = `DELETE FROM FoodEntry WHERE date = ? AND name = ? AND quantity <= 1`

func (q *Queries) DeleteIfAtMostOne(ctx context.Context, date int64, name string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteIfAtMostOne, date, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteEntry = `DELETE FROM FoodEntry WHERE date = ? AND name = ?`

func (q *Queries) DeleteEntry(ctx context.Context, date int64, name string) error {
	_, err := q.db.ExecContext(ctx, deleteEntry, date, name)
	return err
}

const listEntries = `SELECT date, name, quantity FROM FoodEntry ORDER BY date, name`

func (q *Queries) ListEntries(ctx context.Context) ([]FoodEntry, error) {
	return q.queryEntries(ctx, listEntries)
}

const listEntriesByDate = `SELECT date, name, quantity FROM FoodEntry WHERE date = ? ORDER BY name`

func (q *Queries) ListEntriesByDate(ctx context.Context, date int64) ([]FoodEntry, error) {
	return q.queryEntries(ctx, listEntriesByDate, date)
}

func (q *Queries) queryEntries(ctx context.Context, query string, args ...interface{}) ([]FoodEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FoodEntry
	for rows.Next() {
		var i FoodEntry
		if err := rows.Scan(&i.Date, &i.Name, &i.Quantity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const recentNames = `SELECT name FROM FoodEntry
GROUP BY name
ORDER BY MAX(date) DESC, name ASC
LIMIT ?`

func (q *Queries) RecentNames(ctx context.Context, limit int64) ([]string, error) {
	return q.queryNames(ctx, recentNames, limit)
}

const popularNames = `SELECT name FROM FoodEntry
GROUP BY name
ORDER BY COUNT(DISTINCT date) DESC, MAX(date) DESC, name ASC
LIMIT ?`

func (q *Queries) PopularNames(ctx context.Context, limit int64) ([]string, error) {
	return q.queryNames(ctx, popularNames, limit)
}

const popularNamesSince = `SELECT name FROM FoodEntry
WHERE date >= ?
GROUP BY name
ORDER BY COUNT(DISTINCT date) DESC, MAX(date) DESC, name ASC
LIMIT ?`

func (q *Queries) PopularNamesSince(ctx context.Context, since, limit int64) ([]string, error) {
	return q.queryNames(ctx, popularNamesSince, since, limit)
}

func (q *Queries) queryNames(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
