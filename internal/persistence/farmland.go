package persistence

import (
	"context"

	"github.com/talgya/farmstead/internal/gameerr"
)

// Farmland returns every tile in the view's generation.
func (r *reader) Farmland(ctx context.Context) ([]FarmlandTile, error) {
	return Select[FarmlandTile](ctx, r, "")
}

// FarmlandAt returns the tile at (x, y), or nil.
func (r *reader) FarmlandAt(ctx context.Context, x, y int) (*FarmlandTile, error) {
	return First[FarmlandTile](ctx, r, "tile_x = ? AND tile_y = ?", x, y)
}

// FarmlandByID returns the tile with id in this generation, or nil.
func (r *reader) FarmlandByID(ctx context.Context, id int64) (*FarmlandTile, error) {
	return Get[FarmlandTile](ctx, r, id)
}

func (r *reader) insertFarmland(ctx context.Context, t *FarmlandTile) error {
	id, err := r.insert(ctx, "insert farmland",
		`INSERT INTO farmland_tiles (tile_x, tile_y, is_cultivated, is_watered, generation)
		 VALUES (?, ?, ?, ?, ?)`,
		t.TileX, t.TileY, t.IsCultivated, t.IsWatered, r.gen)
	if err != nil {
		return err
	}
	t.ID = id
	t.Generation = r.gen
	return nil
}

// SaveFarmland inserts t when it has no id and updates it otherwise. A second
// live tile at the same coordinate is DuplicateLiveRow.
func (l *Live) SaveFarmland(ctx context.Context, t *FarmlandTile) error {
	if t.ID == 0 {
		return l.insertFarmland(ctx, t)
	}
	res, err := l.exec(ctx, "update farmland",
		`UPDATE farmland_tiles SET tile_x = ?, tile_y = ?, is_cultivated = ?, is_watered = ?
		 WHERE id = ? AND generation = ?`,
		t.TileX, t.TileY, t.IsCultivated, t.IsWatered, t.ID, LiveGeneration)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gameerr.New(gameerr.NotFound, "no live farmland %d", t.ID)
	}
	return nil
}

// ClearWatering resets is_watered on every live tile and returns how many
// tiles were watered.
func (l *Live) ClearWatering(ctx context.Context) (int64, error) {
	res, err := l.exec(ctx, "clear watering",
		"UPDATE farmland_tiles SET is_watered = 0 WHERE generation = ? AND is_watered = 1", LiveGeneration)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
