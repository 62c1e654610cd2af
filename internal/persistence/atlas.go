package persistence

import "context"

// SyncCropAtlas replaces the crop_atlas table with entries.
func (db *DB) SyncCropAtlas(ctx context.Context, entries []AtlasEntry) error {
	return db.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, "DELETE FROM crop_atlas"); err != nil {
			return storeErr("clear crop atlas", err)
		}
		stmt, err := tx.tx.PreparexContext(ctx,
			"INSERT INTO crop_atlas (crop_type, seed_name, total_growth_days, harvest_class) VALUES (?, ?, ?, ?)")
		if err != nil {
			return storeErr("prepare crop atlas", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.CropType, e.SeedName, e.TotalGrowthDays, e.HarvestClass); err != nil {
				return storeErr("insert crop atlas "+e.CropType, err)
			}
		}
		return nil
	})
}

// CropAtlas returns the stored crop definitions ordered by type.
func (db *DB) CropAtlas(ctx context.Context) ([]AtlasEntry, error) {
	if err := db.ready(); err != nil {
		return nil, err
	}
	var out []AtlasEntry
	if err := db.conn.SelectContext(ctx, &out, "SELECT * FROM crop_atlas ORDER BY crop_type"); err != nil {
		return nil, storeErr("list crop atlas", err)
	}
	return out, nil
}
