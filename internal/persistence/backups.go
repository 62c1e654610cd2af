package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/farmstead/internal/gameerr"
)

// SnapshotWriter inserts rows into one backup generation. It exists only
// inside the transaction that created the backup.
type SnapshotWriter struct {
	r reader
}

// CreateBackup inserts the save_backups row and returns a writer for its
// generation. b.ID and b.IsValid are set.
func (t *Tx) CreateBackup(ctx context.Context, b *SaveBackup) (*SnapshotWriter, error) {
	if err := t.db.ready(); err != nil {
		return nil, err
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO save_backups (save_date, save_time, current_season, current_day, note, is_valid)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		b.SaveDate, b.SaveTime, b.CurrentSeason, b.CurrentDay, b.Note)
	if err != nil {
		return nil, storeErr("insert backup", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("insert backup", err)
	}
	b.ID = id
	b.IsValid = true
	return &SnapshotWriter{r: reader{db: t.db, q: t.tx, gen: Generation(id)}}, nil
}

// Generation returns the backup generation being written.
func (w *SnapshotWriter) Generation() Generation {
	return w.r.gen
}

// PutPlayer writes the snapshot's player row.
func (w *SnapshotWriter) PutPlayer(ctx context.Context, p *PlayerCore) error {
	return w.r.insertPlayer(ctx, p)
}

// PutFarmland copies a tile into the snapshot and sets its new id.
func (w *SnapshotWriter) PutFarmland(ctx context.Context, t *FarmlandTile) error {
	return w.r.insertFarmland(ctx, t)
}

// PutCrop copies a crop into the snapshot. c.FarmlandID must already name a
// tile of this snapshot, otherwise it is ReferentialGap.
func (w *SnapshotWriter) PutCrop(ctx context.Context, c *Crop) error {
	tile, err := w.r.FarmlandByID(ctx, c.FarmlandID)
	if err != nil {
		return err
	}
	if tile == nil {
		return gameerr.New(gameerr.ReferentialGap, "crop on farmland %d outside %s", c.FarmlandID, w.r.gen)
	}
	return w.r.insertCrop(ctx, c)
}

// PutItem copies a backpack stack into the snapshot.
func (w *SnapshotWriter) PutItem(ctx context.Context, it *BackpackItem) error {
	return w.r.insertItem(ctx, it)
}

// PutTask copies a task into the snapshot.
func (w *SnapshotWriter) PutTask(ctx context.Context, t *PlayerTask) error {
	return w.r.insertTask(ctx, t)
}

// PutVar copies a dialogue variable into the snapshot.
func (w *SnapshotWriter) PutVar(ctx context.Context, v *DialogueVar) error {
	return w.r.insertVar(ctx, v)
}

func selectBackups(ctx context.Context, q sqlx.QueryerContext, includeInvalid bool) ([]SaveBackup, error) {
	query := "SELECT * FROM save_backups"
	if !includeInvalid {
		query += " WHERE is_valid = 1"
	}
	query += " ORDER BY id DESC"

	var out []SaveBackup
	if err := sqlx.SelectContext(ctx, q, &out, query); err != nil {
		return nil, storeErr("list backups", err)
	}
	return out, nil
}

func getBackup(ctx context.Context, q sqlx.QueryerContext, id int64) (*SaveBackup, error) {
	var b SaveBackup
	err := sqlx.GetContext(ctx, q, &b, "SELECT * FROM save_backups WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get backup", err)
	}
	return &b, nil
}

// Backups lists backups newest first. Invalidated ones are omitted unless
// includeInvalid is set.
func (db *DB) Backups(ctx context.Context, includeInvalid bool) ([]SaveBackup, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	return selectBackups(ctx, db.conn, includeInvalid)
}

// Backup returns the backup with id, valid or not, or nil.
func (db *DB) Backup(ctx context.Context, id int64) (*SaveBackup, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	return getBackup(ctx, db.conn, id)
}

// Backup returns the backup with id within the transaction, or nil.
func (t *Tx) Backup(ctx context.Context, id int64) (*SaveBackup, error) {
	if err := t.db.ready(); err != nil {
		return nil, err
	}
	return getBackup(ctx, t.tx, id)
}

// SoftInvalidate marks a backup unusable for restore. Its rows are kept.
func (db *DB) SoftInvalidate(ctx context.Context, id int64) error {
	if err := db.ready(); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, "UPDATE save_backups SET is_valid = 0 WHERE id = ?", id)
	if err != nil {
		return storeErr("invalidate backup", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gameerr.New(gameerr.BackupNotFound, "backup %d does not exist", id)
	}
	return nil
}
