package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

type migration struct {
	version     int
	description string
	sql         string
}

// Migration is an applied schema_migrations row.
type Migration struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
	Checksum    string    `json:"checksum"`
}

var migrations = []migration{
	{1, "base_tables", schemaV1},
	{2, "live_uniqueness", schemaV2},
	{3, "crop_atlas_and_meta", schemaV3},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS farmland_tiles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tile_x INTEGER NOT NULL,
	tile_y INTEGER NOT NULL,
	is_cultivated INTEGER NOT NULL DEFAULT 0,
	is_watered INTEGER NOT NULL DEFAULT 0,
	generation INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS crops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	farmland_id INTEGER NOT NULL REFERENCES farmland_tiles(id),
	crop_type TEXT NOT NULL,
	growth_stage INTEGER NOT NULL DEFAULT 0 CHECK (growth_stage BETWEEN 0 AND 3),
	days_remaining INTEGER NOT NULL CHECK (days_remaining >= 0),
	total_growth_days INTEGER NOT NULL CHECK (total_growth_days > 0),
	watering_count INTEGER NOT NULL DEFAULT 0,
	generation INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS backpack_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_type TEXT NOT NULL,
	item_count INTEGER NOT NULL CHECK (item_count > 0),
	generation INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS player_core (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	current_season TEXT NOT NULL,
	current_day INTEGER NOT NULL,
	clock_time TEXT NOT NULL DEFAULT '',
	last_save_time TEXT NOT NULL DEFAULT '',
	day_count INTEGER NOT NULL DEFAULT 1,
	generation INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS save_backups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	save_date TEXT NOT NULL,
	save_time TEXT NOT NULL,
	current_season TEXT NOT NULL,
	current_day INTEGER NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	is_valid INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS player_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_name TEXT NOT NULL,
	task_type TEXT NOT NULL,
	status TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	target_count INTEGER NOT NULL,
	current_progress INTEGER NOT NULL DEFAULT 0,
	reward_items TEXT NOT NULL DEFAULT '',
	day_assigned INTEGER NOT NULL,
	day_limit INTEGER NOT NULL,
	dialogue_node TEXT NOT NULL DEFAULT '',
	generation INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS dialogue_vars (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	var_name TEXT NOT NULL,
	var_value TEXT NOT NULL DEFAULT '',
	related_system TEXT NOT NULL DEFAULT '',
	generation INTEGER NOT NULL DEFAULT -1
);

CREATE INDEX IF NOT EXISTS idx_farmland_generation ON farmland_tiles(generation, tile_x, tile_y);
CREATE INDEX IF NOT EXISTS idx_crops_generation ON crops(generation, farmland_id);
CREATE INDEX IF NOT EXISTS idx_backpack_generation ON backpack_items(generation, item_type);
CREATE INDEX IF NOT EXISTS idx_tasks_generation ON player_tasks(generation, task_name);
CREATE INDEX IF NOT EXISTS idx_dialogue_generation ON dialogue_vars(generation, var_name);
`

// schemaV2 folds legacy duplicates in the live partition, then forbids new
// ones. Snapshot generations are left exactly as they were saved.
const schemaV2 = `
UPDATE crops SET farmland_id = (
	SELECT MAX(d.id) FROM farmland_tiles d
	JOIN farmland_tiles t ON d.tile_x = t.tile_x AND d.tile_y = t.tile_y
	WHERE t.id = crops.farmland_id AND d.generation = -1
)
WHERE generation = -1
  AND farmland_id IN (SELECT id FROM farmland_tiles WHERE generation = -1);

DELETE FROM farmland_tiles
WHERE generation = -1
  AND id NOT IN (SELECT MAX(id) FROM farmland_tiles WHERE generation = -1 GROUP BY tile_x, tile_y);

DELETE FROM crops
WHERE generation = -1
  AND id NOT IN (SELECT MAX(id) FROM crops WHERE generation = -1 GROUP BY farmland_id);

UPDATE backpack_items SET item_count = (
	SELECT SUM(b.item_count) FROM backpack_items b
	WHERE b.generation = -1 AND b.item_type = backpack_items.item_type
)
WHERE generation = -1
  AND id IN (SELECT MAX(id) FROM backpack_items WHERE generation = -1 GROUP BY item_type);

DELETE FROM backpack_items
WHERE generation = -1
  AND id NOT IN (SELECT MAX(id) FROM backpack_items WHERE generation = -1 GROUP BY item_type);

DELETE FROM player_core
WHERE id NOT IN (SELECT MAX(id) FROM player_core GROUP BY generation);

DELETE FROM player_tasks
WHERE generation = -1
  AND id NOT IN (SELECT MAX(id) FROM player_tasks WHERE generation = -1 GROUP BY task_name, day_assigned);

DELETE FROM dialogue_vars
WHERE generation = -1
  AND id NOT IN (SELECT MAX(id) FROM dialogue_vars WHERE generation = -1 GROUP BY var_name);

CREATE UNIQUE INDEX IF NOT EXISTS idx_farmland_live_coord ON farmland_tiles(tile_x, tile_y) WHERE generation = -1;
CREATE UNIQUE INDEX IF NOT EXISTS idx_crops_live_farmland ON crops(farmland_id) WHERE generation = -1;
CREATE UNIQUE INDEX IF NOT EXISTS idx_backpack_live_type ON backpack_items(item_type) WHERE generation = -1;
CREATE UNIQUE INDEX IF NOT EXISTS idx_player_generation ON player_core(generation);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_live_assignment ON player_tasks(task_name, day_assigned) WHERE generation = -1;
CREATE UNIQUE INDEX IF NOT EXISTS idx_dialogue_live_name ON dialogue_vars(var_name) WHERE generation = -1;
`

const schemaV3 = `
CREATE TABLE IF NOT EXISTS crop_atlas (
	crop_type TEXT PRIMARY KEY,
	seed_name TEXT NOT NULL,
	total_growth_days INTEGER NOT NULL,
	harvest_class TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS world_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// migrate applies every migration up to and including version, each in its
// own transaction.
func (db *DB) migrate(ctx context.Context, version int) error {
	_, err := db.conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL
	);`)
	if err != nil {
		return err
	}

	var current int
	if err := db.conn.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current || m.version > version {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration V%d %s: %w", m.version, m.description, err)
		}
		slog.Info("schema migrated", "version", m.version, "description", m.description)
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		m.version, time.Now().Unix(), m.description, checksum(m.sql),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Migrations returns the applied schema migrations in version order.
func (db *DB) Migrations(ctx context.Context) ([]Migration, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	var rows []struct {
		Version     int    `db:"version"`
		AppliedAt   int64  `db:"applied_at"`
		Description string `db:"description"`
		Checksum    string `db:"checksum"`
	}
	if err := db.conn.SelectContext(ctx, &rows, "SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version"); err != nil {
		return nil, storeErr("list migrations", err)
	}
	out := make([]Migration, len(rows))
	for i, r := range rows {
		out[i] = Migration{
			Version:     r.Version,
			Description: r.Description,
			AppliedAt:   time.Unix(r.AppliedAt, 0),
			Checksum:    r.Checksum,
		}
	}
	return out, nil
}
