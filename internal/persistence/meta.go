package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// Well-known world_meta keys.
const (
	MetaGameOver    = "game_over"
	MetaGameOverWhy = "game_over_reason"
	MetaWorldSeed   = "world_seed"
	MetaLastBoot    = "last_boot"
)

func setMeta(ctx context.Context, q sqlx.ExecerContext, key, value string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO world_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return storeErr("save meta "+key, err)
}

func getMeta(ctx context.Context, q sqlx.QueryerContext, key string) (string, bool, error) {
	var value string
	err := sqlx.GetContext(ctx, q, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get meta "+key, err)
	}
	return value, true, nil
}

// SaveMeta stores a key-value pair in the world_meta table.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	if err := db.ready(); err != nil {
		return err
	}
	return setMeta(ctx, db.conn, key, value)
}

// GetMeta retrieves a value from world_meta. ok is false when the key is unset.
func (db *DB) GetMeta(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := db.ready(); err != nil {
		return "", false, err
	}
	return getMeta(ctx, db.conn, key)
}

// DeleteMeta removes key from world_meta.
func (db *DB) DeleteMeta(ctx context.Context, key string) error {
	if err := db.ready(); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, "DELETE FROM world_meta WHERE key = ?", key)
	return storeErr("delete meta "+key, err)
}

// SaveMeta stores a world_meta pair within the transaction.
func (t *Tx) SaveMeta(ctx context.Context, key, value string) error {
	if err := t.db.ready(); err != nil {
		return err
	}
	return setMeta(ctx, t.tx, key, value)
}

// MetaBool reads a boolean world_meta flag; unset or unparsable is false.
func (db *DB) MetaBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := db.GetMeta(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}
