package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Row is any generation-partitioned table row.
type Row interface {
	FarmlandTile | Crop | BackpackItem | PlayerCore | PlayerTask | DialogueVar
	table() string
}

// Scoped is a view pinned to one generation: Live, Archive, or the reader
// they embed.
type Scoped interface {
	Generation() Generation
	scope() *reader
}

type reader struct {
	db  *DB
	q   sqlx.ExtContext
	gen Generation
}

func (r *reader) scope() *reader { return r }

// Generation returns the partition this view reads.
func (r *reader) Generation() Generation { return r.gen }

// Live reads and writes the live world.
type Live struct {
	reader
}

// Archive reads a snapshot generation. It has no write methods.
type Archive struct {
	reader
}

// Select returns the rows of T in s's generation matching the optional
// predicate, ordered by id. The generation filter is always applied.
func Select[T Row](ctx context.Context, s Scoped, pred string, args ...any) ([]T, error) {
	r := s.scope()
	if err := r.db.ready(); err != nil {
		return nil, err
	}
	var zero T
	query := fmt.Sprintf("SELECT * FROM %s WHERE generation = ?", zero.table())
	if pred != "" {
		query += " AND (" + pred + ")"
	}
	query += " ORDER BY id"

	var rows []T
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, append([]any{r.gen}, args...)...); err != nil {
		return nil, storeErr("select "+zero.table(), err)
	}
	return rows, nil
}

// First returns the lowest-id row matching pred, or nil when none does.
func First[T Row](ctx context.Context, s Scoped, pred string, args ...any) (*T, error) {
	r := s.scope()
	if err := r.db.ready(); err != nil {
		return nil, err
	}
	var zero T
	query := fmt.Sprintf("SELECT * FROM %s WHERE generation = ?", zero.table())
	if pred != "" {
		query += " AND (" + pred + ")"
	}
	query += " ORDER BY id LIMIT 1"

	var row T
	err := sqlx.GetContext(ctx, r.q, &row, query, append([]any{r.gen}, args...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get "+zero.table(), err)
	}
	return &row, nil
}

// Get returns the row of T with the given id if it belongs to s's
// generation, or nil.
func Get[T Row](ctx context.Context, s Scoped, id int64) (*T, error) {
	return First[T](ctx, s, "id = ?", id)
}

// Count returns the number of T rows in s's generation.
func Count[T Row](ctx context.Context, s Scoped) (int, error) {
	r := s.scope()
	if err := r.db.ready(); err != nil {
		return 0, err
	}
	var zero T
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE generation = ?", zero.table())
	if err := sqlx.GetContext(ctx, r.q, &n, query, r.gen); err != nil {
		return 0, storeErr("count "+zero.table(), err)
	}
	return n, nil
}

// Delete removes a live row of T by id and reports whether it existed.
func Delete[T Row](ctx context.Context, l *Live, id int64) (bool, error) {
	if err := l.db.ready(); err != nil {
		return false, err
	}
	var zero T
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND generation = ?", zero.table())
	res, err := l.q.ExecContext(ctx, query, id, LiveGeneration)
	if err != nil {
		return false, storeErr("delete "+zero.table(), err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Purge removes every live row of T and returns how many were removed.
func Purge[T Row](ctx context.Context, l *Live) (int64, error) {
	if err := l.db.ready(); err != nil {
		return 0, err
	}
	var zero T
	res, err := l.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE generation = ?", zero.table()), LiveGeneration)
	if err != nil {
		return 0, storeErr("purge "+zero.table(), err)
	}
	return res.RowsAffected()
}

func (r *reader) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	if err := r.db.ready(); err != nil {
		return nil, err
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return res, nil
}

func (r *reader) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.exec(ctx, op, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
