// Package farm runs the tile actions and crop lifecycle on top of the store:
// cultivate, water and plant intents, the day-advance growth pass, and
// harvesting.
package farm

import (
	"context"
	"log/slog"

	"github.com/talgya/farmstead/internal/entropy"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/guard"
	"github.com/talgya/farmstead/internal/persistence"
	"github.com/talgya/farmstead/internal/world"
)

// HarvestListener is told about each committed harvest.
type HarvestListener func(ctx context.Context, res HarvestResult)

// Options configures a Farm. Zero values select no-op visuals, crypto
// randomness and the default logger.
type Options struct {
	Visuals Visuals
	Rand    entropy.Source
	Logger  *slog.Logger
}

// Farm owns the farmland and crop tables of the live world.
type Farm struct {
	db       *persistence.DB
	catalog  *Catalog
	visuals  Visuals
	rand     entropy.Source
	log      *slog.Logger
	planting *guard.Guard

	harvestListeners []HarvestListener
}

// New creates a Farm.
func New(db *persistence.DB, catalog *Catalog, opts Options) *Farm {
	if opts.Visuals == nil {
		opts.Visuals = NopVisuals{}
	}
	if opts.Rand == nil {
		opts.Rand = entropy.Crypto{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Farm{
		db:       db,
		catalog:  catalog,
		visuals:  opts.Visuals,
		rand:     opts.Rand,
		log:      opts.Logger.With("component", "farm"),
		planting: guard.New("plant-crop"),
	}
}

// OnHarvest registers a listener for committed harvests.
func (f *Farm) OnHarvest(fn HarvestListener) {
	f.harvestListeners = append(f.harvestListeners, fn)
}

// InitFarmland creates a live tile for every farmable map cell that has
// none yet and mirrors the catalog into crop_atlas. It returns the number of
// tiles created.
func (f *Farm) InitFarmland(ctx context.Context, m *world.Map) (int, error) {
	if err := f.db.SyncCropAtlas(ctx, f.catalog.Atlas()); err != nil {
		return 0, err
	}

	created := 0
	err := f.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		for _, c := range m.Farmable() {
			existing, err := live.FarmlandAt(ctx, c.X, c.Y)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			if err := live.SaveFarmland(ctx, &persistence.FarmlandTile{TileX: c.X, TileY: c.Y}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		f.log.Info("farmland initialised", "created", created, "map", m.String())
	}
	return created, nil
}

// Tile returns the live tile at (x, y) or NotFound.
func (f *Farm) Tile(ctx context.Context, x, y int) (*persistence.FarmlandTile, error) {
	t, err := f.db.Live().FarmlandAt(ctx, x, y)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, gameerr.New(gameerr.NotFound, "no farmland at (%d,%d)", x, y)
	}
	return t, nil
}

// Cultivate hoes the tile at (x, y).
func (f *Farm) Cultivate(ctx context.Context, x, y int) error {
	t, err := f.Tile(ctx, x, y)
	if err != nil {
		return f.noop("cultivate", x, y, err)
	}
	if t.IsCultivated {
		return f.noop("cultivate", x, y, gameerr.New(gameerr.Rejected, "already cultivated"))
	}
	t.IsCultivated = true
	if err := f.db.Live().SaveFarmland(ctx, t); err != nil {
		return f.noop("cultivate", x, y, err)
	}
	f.visuals.ShowTile(*t)
	return nil
}

// Water waters a cultivated tile once per day.
func (f *Farm) Water(ctx context.Context, x, y int) error {
	t, err := f.Tile(ctx, x, y)
	if err != nil {
		return f.noop("water", x, y, err)
	}
	if !t.IsCultivated {
		return f.noop("water", x, y, gameerr.New(gameerr.Rejected, "tile is not cultivated"))
	}
	if t.IsWatered {
		return f.noop("water", x, y, gameerr.New(gameerr.Rejected, "already watered today"))
	}
	t.IsWatered = true
	if err := f.db.Live().SaveFarmland(ctx, t); err != nil {
		return f.noop("water", x, y, err)
	}
	f.visuals.ShowTile(*t)
	return nil
}

// Plant sows seed on the empty cultivated tile at (x, y). The crop insert and
// the seed consumption commit together. A concurrent Plant is rejected with
// Busy.
func (f *Farm) Plant(ctx context.Context, x, y int, seed string) (*persistence.Crop, error) {
	release, err := f.planting.Enter()
	if err != nil {
		return nil, f.noop("plant", x, y, err)
	}
	defer release()

	def, ok := f.catalog.BySeed(seed)
	if !ok {
		return nil, f.noop("plant", x, y, gameerr.New(gameerr.Invalid, "%q is not a seed", seed))
	}

	var crop *persistence.Crop
	err = f.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		t, err := live.FarmlandAt(ctx, x, y)
		if err != nil {
			return err
		}
		if t == nil {
			return gameerr.New(gameerr.NotFound, "no farmland at (%d,%d)", x, y)
		}
		if !t.IsCultivated {
			return gameerr.New(gameerr.Rejected, "tile is not cultivated")
		}
		existing, err := live.CropOn(ctx, t.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return gameerr.New(gameerr.Rejected, "tile already has crop %d", existing.ID)
		}

		c := &persistence.Crop{
			FarmlandID:      t.ID,
			CropType:        def.Type,
			GrowthStage:     persistence.StageSeed,
			DaysRemaining:   def.GrowthDays,
			TotalGrowthDays: def.GrowthDays,
		}
		if _, err := live.InsertCrop(ctx, c); err != nil {
			return err
		}
		if _, err := live.ConsumeItem(ctx, seed, 1); err != nil {
			return err
		}
		crop = c
		return nil
	})
	if err != nil {
		return nil, f.noop("plant", x, y, err)
	}

	f.visuals.ShowCrop(crop.ID, crop.GrowthStage, crop.CropType, x, y)
	f.log.Info("crop planted", "crop_id", crop.ID, "crop_type", crop.CropType, "x", x, "y", y)
	return crop, nil
}

// Apply dispatches an input intent on (x, y) according to the tool mode of
// the selected item.
func (f *Farm) Apply(ctx context.Context, item string, x, y int) error {
	switch ModeForItem(item) {
	case ModeCultivate:
		return f.Cultivate(ctx, x, y)
	case ModeWater:
		return f.Water(ctx, x, y)
	case ModePlant:
		_, err := f.Plant(ctx, x, y, item)
		return err
	default:
		return gameerr.New(gameerr.Rejected, "%q has no tool mode", item)
	}
}

// CropAt returns the live crop on (x, y), or nil.
func (f *Farm) CropAt(ctx context.Context, x, y int) (*persistence.Crop, error) {
	t, err := f.Tile(ctx, x, y)
	if err != nil {
		return nil, err
	}
	return f.db.Live().CropOn(ctx, t.ID)
}

// Reset removes every live crop and returns every live tile to bare soil.
func (f *Farm) Reset(ctx context.Context) error {
	var removed []int64
	err := f.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		crops, err := live.Crops(ctx)
		if err != nil {
			return err
		}
		for _, c := range crops {
			removed = append(removed, c.ID)
		}
		if _, err := persistence.Purge[persistence.Crop](ctx, live); err != nil {
			return err
		}
		tiles, err := live.Farmland(ctx)
		if err != nil {
			return err
		}
		for i := range tiles {
			tiles[i].IsCultivated = false
			tiles[i].IsWatered = false
			if err := live.SaveFarmland(ctx, &tiles[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range removed {
		f.visuals.RemoveCrop(id)
	}
	f.visuals.ClearWaterIcons()
	f.log.Info("farm reset", "crops_removed", len(removed))
	return nil
}

// Redraw replays every live tile and crop to the visuals, e.g. after a
// restore replaced the world.
func (f *Farm) Redraw(ctx context.Context) error {
	live := f.db.Live()
	tiles, err := live.Farmland(ctx)
	if err != nil {
		return err
	}
	pos := make(map[int64]world.Coord, len(tiles))
	for _, t := range tiles {
		pos[t.ID] = world.Coord{X: t.TileX, Y: t.TileY}
		f.visuals.ShowTile(t)
	}
	crops, err := live.Crops(ctx)
	if err != nil {
		return err
	}
	for _, c := range crops {
		p := pos[c.FarmlandID]
		f.visuals.ShowCrop(c.ID, c.GrowthStage, c.CropType, p.X, p.Y)
	}
	return nil
}

// noop logs a rejected tile action and returns err unchanged.
func (f *Farm) noop(action string, x, y int, err error) error {
	f.log.Debug("tile action skipped", "action", action, "x", x, "y", y, "code", gameerr.CodeOf(err), "error", err)
	return err
}
