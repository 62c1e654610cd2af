package farm

import (
	"context"

	"github.com/talgya/farmstead/internal/persistence"
	"github.com/talgya/farmstead/internal/world"
)

// StageFor derives the growth stage of a non-regrowing crop from its
// remaining days.
func StageFor(daysRemaining, total int) persistence.GrowthStage {
	switch {
	case daysRemaining <= 0:
		return persistence.StageMature
	case daysRemaining > total/2:
		return persistence.StageSeed
	default:
		return persistence.StageSeedling
	}
}

// Advance applies one watered day to a growing crop.
func Advance(daysRemaining, total int) (int, persistence.GrowthStage) {
	dr := max(0, daysRemaining-1)
	return dr, StageFor(dr, total)
}

// DayReport summarises one day-advance pass.
type DayReport struct {
	WateredTiles int `json:"watered_tiles"`
	Grown        int `json:"grown"`
	StageChanges int `json:"stage_changes"`
	Regrown      int `json:"regrown"`
	Unwatered    int `json:"unwatered"`
}

type cropView struct {
	id       int64
	stage    persistence.GrowthStage
	cropType string
	at       world.Coord
}

// AdvanceDay runs the day-boundary pass as one transaction: capture which
// tiles were watered, clear every watered flag, then grow each crop whose
// tile was watered. Mature crops do not grow; regrowing cyclic crops count
// the watering toward their quota instead. Visuals are updated after commit.
func (f *Farm) AdvanceDay(ctx context.Context) (DayReport, error) {
	var rep DayReport
	var changed []cropView

	err := f.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		tiles, err := live.Farmland(ctx)
		if err != nil {
			return err
		}
		watered := make(map[int64]bool, len(tiles))
		pos := make(map[int64]world.Coord, len(tiles))
		for _, t := range tiles {
			pos[t.ID] = world.Coord{X: t.TileX, Y: t.TileY}
			if t.IsWatered {
				watered[t.ID] = true
			}
		}
		rep.WateredTiles = len(watered)

		if _, err := live.ClearWatering(ctx); err != nil {
			return err
		}

		crops, err := live.Crops(ctx)
		if err != nil {
			return err
		}
		for i := range crops {
			c := &crops[i]
			if !watered[c.FarmlandID] {
				rep.Unwatered++
				continue
			}

			before := c.GrowthStage
			switch c.GrowthStage {
			case persistence.StageMature:
				continue
			case persistence.StageCyclicMature:
				def, ok := f.catalog.Crop(c.CropType)
				if !ok || def.RegrowWaterings <= 0 {
					continue
				}
				c.WateringCount++
				if c.WateringCount >= def.RegrowWaterings {
					c.GrowthStage = persistence.StageMature
					c.WateringCount = 0
					rep.Regrown++
				}
			default:
				c.DaysRemaining, c.GrowthStage = Advance(c.DaysRemaining, c.TotalGrowthDays)
				rep.Grown++
			}

			if err := live.UpdateCrop(ctx, c); err != nil {
				return err
			}
			if c.GrowthStage != before {
				rep.StageChanges++
				changed = append(changed, cropView{c.ID, c.GrowthStage, c.CropType, pos[c.FarmlandID]})
			}
		}
		return nil
	})
	if err != nil {
		f.log.Error("day advance failed", "error", err)
		return DayReport{}, err
	}

	f.visuals.ClearWaterIcons()
	for _, cv := range changed {
		f.visuals.ShowCrop(cv.id, cv.stage, cv.cropType, cv.at.X, cv.at.Y)
	}
	f.log.Info("day advanced",
		"watered_tiles", rep.WateredTiles,
		"grown", rep.Grown,
		"stage_changes", rep.StageChanges,
		"regrown", rep.Regrown,
	)
	return rep, nil
}
