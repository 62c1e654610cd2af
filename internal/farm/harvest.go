package farm

import (
	"context"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/entropy"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/inventory"
	"github.com/talgya/farmstead/internal/persistence"
)

// HarvestResult describes a committed harvest.
type HarvestResult struct {
	CropID    int64                   `json:"crop_id"`
	CropType  string                  `json:"crop_type"`
	Removed   bool                    `json:"removed"`
	Stage     persistence.GrowthStage `json:"stage"`
	Deposited []inventory.Stack       `json:"deposited"`
}

// Harvest collects a mature crop. Single and seed-drop crops are removed;
// cyclic crops move to the regrowing stage and stay planted.
func (f *Farm) Harvest(ctx context.Context, cropID int64) (*HarvestResult, error) {
	var res HarvestResult
	err := f.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		c, err := live.CropByID(ctx, cropID)
		if err != nil {
			return err
		}
		if c == nil {
			return gameerr.New(gameerr.NotFound, "no live crop %d", cropID)
		}
		if c.GrowthStage != persistence.StageMature {
			return gameerr.New(gameerr.Rejected, "crop %d is %s, not mature", cropID, c.GrowthStage)
		}

		def, ok := f.catalog.Crop(c.CropType)
		if !ok {
			def = CropDef{Type: c.CropType, Harvest: config.HarvestSingle}
		}

		res = HarvestResult{CropID: c.ID, CropType: c.CropType}
		res.Deposited = append(res.Deposited, inventory.Stack{Type: c.CropType, Count: 1})

		switch def.Harvest {
		case config.HarvestCyclic:
			c.GrowthStage = persistence.StageCyclicMature
			c.WateringCount = 0
			if err := live.UpdateCrop(ctx, c); err != nil {
				return err
			}
		case config.HarvestSeedDrop:
			if entropy.Chance(f.rand, def.SeedDropChance) {
				res.Deposited = append(res.Deposited, inventory.Stack{Type: def.Seed, Count: 1})
			}
			fallthrough
		default:
			if _, err := live.DeleteCrop(ctx, c.ID); err != nil {
				return err
			}
			res.Removed = true
		}
		res.Stage = c.GrowthStage
		return inventory.Deposit(ctx, live, res.Deposited)
	})
	if err != nil {
		f.log.Debug("harvest skipped", "crop_id", cropID, "code", gameerr.CodeOf(err), "error", err)
		return nil, err
	}

	if res.Removed {
		f.visuals.RemoveCrop(res.CropID)
	} else if err := f.showCrop(ctx, res.CropID); err != nil {
		f.log.Warn("redraw after harvest failed", "crop_id", res.CropID, "error", err)
	}
	f.log.Info("crop harvested", "crop_id", res.CropID, "crop_type", res.CropType, "removed", res.Removed, "items", len(res.Deposited))

	for _, fn := range f.harvestListeners {
		fn(ctx, res)
	}
	return &res, nil
}

func (f *Farm) showCrop(ctx context.Context, cropID int64) error {
	live := f.db.Live()
	c, err := live.CropByID(ctx, cropID)
	if err != nil || c == nil {
		return err
	}
	t, err := live.FarmlandByID(ctx, c.FarmlandID)
	if err != nil || t == nil {
		return err
	}
	f.visuals.ShowCrop(c.ID, c.GrowthStage, c.CropType, t.TileX, t.TileY)
	return nil
}
