package persistence

import (
	"context"

	"github.com/talgya/farmstead/internal/gameerr"
)

// Crops returns every crop in the view's generation.
func (r *reader) Crops(ctx context.Context) ([]Crop, error) {
	return Select[Crop](ctx, r, "")
}

// CropByID returns the crop with id in this generation, or nil.
func (r *reader) CropByID(ctx context.Context, id int64) (*Crop, error) {
	return Get[Crop](ctx, r, id)
}

// CropOn returns the crop planted on the given tile, or nil.
func (r *reader) CropOn(ctx context.Context, farmlandID int64) (*Crop, error) {
	return First[Crop](ctx, r, "farmland_id = ?", farmlandID)
}

func (r *reader) insertCrop(ctx context.Context, c *Crop) error {
	id, err := r.insert(ctx, "insert crop",
		`INSERT INTO crops (farmland_id, crop_type, growth_stage, days_remaining, total_growth_days, watering_count, generation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.FarmlandID, c.CropType, c.GrowthStage, c.DaysRemaining, c.TotalGrowthDays, c.WateringCount, r.gen)
	if err != nil {
		return err
	}
	c.ID = id
	c.Generation = r.gen
	return nil
}

// InsertCrop plants c and sets its id. A second live crop on the same tile is
// DuplicateLiveRow.
func (l *Live) InsertCrop(ctx context.Context, c *Crop) (int64, error) {
	if err := l.insertCrop(ctx, c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

// UpdateCrop writes the mutable fields of a live crop.
func (l *Live) UpdateCrop(ctx context.Context, c *Crop) error {
	res, err := l.exec(ctx, "update crop",
		`UPDATE crops SET growth_stage = ?, days_remaining = ?, total_growth_days = ?, watering_count = ?
		 WHERE id = ? AND generation = ?`,
		c.GrowthStage, c.DaysRemaining, c.TotalGrowthDays, c.WateringCount, c.ID, LiveGeneration)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gameerr.New(gameerr.NotFound, "no live crop %d", c.ID)
	}
	return nil
}

// DeleteCrop removes a live crop and reports whether it existed.
func (l *Live) DeleteCrop(ctx context.Context, id int64) (bool, error) {
	return Delete[Crop](ctx, l, id)
}

// DeduplicateLiveCrops keeps the newest live crop per tile and removes the
// rest. Snapshot generations are untouched. It returns the number removed.
func (l *Live) DeduplicateLiveCrops(ctx context.Context) (int64, error) {
	res, err := l.exec(ctx, "dedupe crops",
		`DELETE FROM crops
		 WHERE generation = ?
		   AND id NOT IN (SELECT MAX(id) FROM crops WHERE generation = ? GROUP BY farmland_id)`,
		LiveGeneration, LiveGeneration)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
