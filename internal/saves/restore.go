package saves

import (
	"context"

	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
)

// RestoreReport counts what a restore rebuilt.
type RestoreReport struct {
	BackupID     int64  `json:"backup_id"`
	Season       string `json:"season"`
	Day          int    `json:"day"`
	Player       bool   `json:"player"`
	Tiles        int    `json:"tiles"`
	Crops        int    `json:"crops"`
	DroppedCrops int    `json:"dropped_crops"`
	Deduplicated int    `json:"deduplicated"`
	Items        int    `json:"items"`
	Tasks        int    `json:"tasks"`
	Vars         int    `json:"vars"`
}

type coord struct{ x, y int }

// LoadBackup replaces the live world with backup id's generation in one
// transaction: validate, delete live rows, re-insert the snapshot with fresh
// ids, remap each crop to its tile's new id by coordinate, then sweep
// duplicate crops. Crops whose tile cannot be resolved are dropped and
// logged as ReferentialGap. Any failure leaves the live world untouched.
func (o *Orchestrator) LoadBackup(ctx context.Context, id int64) (*RestoreReport, error) {
	release, err := o.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	rep := &RestoreReport{BackupID: id}
	err = o.db.InTx(ctx, func(tx *persistence.Tx) error {
		b, err := tx.Backup(ctx, id)
		if err != nil {
			return err
		}
		if b == nil || !b.IsValid {
			return gameerr.New(gameerr.BackupNotFound, "backup %d is missing or invalidated", id)
		}
		rep.Season, rep.Day = b.CurrentSeason, b.CurrentDay

		snap, err := o.readSnapshot(ctx, tx.Archive(id))
		if err != nil {
			return err
		}
		live := tx.Live()
		if err := o.clearLive(ctx, live); err != nil {
			return err
		}
		return o.rebuild(ctx, live, snap, rep)
	})
	if err != nil {
		o.log.Error("restore failed", "backup_id", id, "code", gameerr.CodeOf(err), "error", err)
		return nil, err
	}

	o.log.Info("backup restored",
		"backup_id", id,
		"tiles", rep.Tiles,
		"crops", rep.Crops,
		"dropped_crops", rep.DroppedCrops,
		"deduplicated", rep.Deduplicated,
	)
	return rep, nil
}

type snapshot struct {
	player *persistence.PlayerCore
	tiles  []persistence.FarmlandTile
	crops  []persistence.Crop
	items  []persistence.BackpackItem
	tasks  []persistence.PlayerTask
	vars   []persistence.DialogueVar
}

func (o *Orchestrator) readSnapshot(ctx context.Context, arch *persistence.Archive) (*snapshot, error) {
	var (
		s   snapshot
		err error
	)
	if s.player, err = arch.Player(ctx); err != nil {
		return nil, err
	}
	if s.tiles, err = arch.Farmland(ctx); err != nil {
		return nil, err
	}
	if s.crops, err = arch.Crops(ctx); err != nil {
		return nil, err
	}
	if o.opts.IncludeBackpack {
		if s.items, err = arch.Backpack(ctx); err != nil {
			return nil, err
		}
	}
	if o.opts.IncludeTasks {
		if s.tasks, err = arch.Tasks(ctx); err != nil {
			return nil, err
		}
	}
	if o.opts.IncludeDialogue {
		if s.vars, err = arch.Vars(ctx); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (o *Orchestrator) clearLive(ctx context.Context, live *persistence.Live) error {
	// Crops before tiles: crops reference farmland.
	if _, err := persistence.Purge[persistence.Crop](ctx, live); err != nil {
		return err
	}
	if _, err := persistence.Purge[persistence.FarmlandTile](ctx, live); err != nil {
		return err
	}
	if _, err := persistence.Purge[persistence.PlayerCore](ctx, live); err != nil {
		return err
	}
	if o.opts.IncludeBackpack {
		if _, err := persistence.Purge[persistence.BackpackItem](ctx, live); err != nil {
			return err
		}
	}
	if o.opts.IncludeTasks {
		if _, err := persistence.Purge[persistence.PlayerTask](ctx, live); err != nil {
			return err
		}
	}
	if o.opts.IncludeDialogue {
		if _, err := persistence.Purge[persistence.DialogueVar](ctx, live); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) rebuild(ctx context.Context, live *persistence.Live, s *snapshot, rep *RestoreReport) error {
	if s.player != nil {
		p := *s.player
		p.ID = 0
		if err := live.SavePlayer(ctx, &p); err != nil {
			return err
		}
		rep.Player = true
	} else {
		o.log.Warn("backup has no player row", "backup_id", rep.BackupID)
	}

	snapCoord := make(map[int64]coord, len(s.tiles))
	liveByCoord := make(map[coord]int64, len(s.tiles))
	for _, t := range s.tiles {
		at := coord{t.TileX, t.TileY}
		snapCoord[t.ID] = at
		if _, dup := liveByCoord[at]; dup {
			o.log.Warn("duplicate tile in backup skipped", "backup_id", rep.BackupID, "x", at.x, "y", at.y)
			continue
		}
		t.ID = 0
		if err := live.SaveFarmland(ctx, &t); err != nil {
			return err
		}
		liveByCoord[at] = t.ID
		rep.Tiles++
	}

	for _, c := range s.crops {
		at, ok := snapCoord[c.FarmlandID]
		liveTile := liveByCoord[at]
		if !ok || liveTile == 0 {
			rep.DroppedCrops++
			o.log.Warn("crop dropped in restore",
				"backup_id", rep.BackupID,
				"snapshot_crop_id", c.ID,
				"farmland_id", c.FarmlandID,
				"code", gameerr.ReferentialGap,
			)
			continue
		}

		c.ID = 0
		c.FarmlandID = liveTile
		if _, err := live.InsertCrop(ctx, &c); err != nil {
			if !gameerr.Is(err, gameerr.DuplicateLiveRow) {
				return err
			}
			// Snapshot crops arrive in id order, so the newer one wins.
			if err := o.replaceCrop(ctx, live, &c); err != nil {
				return err
			}
			rep.Deduplicated++
			continue
		}
		rep.Crops++
	}

	swept, err := live.DeduplicateLiveCrops(ctx)
	if err != nil {
		return err
	}
	rep.Deduplicated += int(swept)

	for _, it := range s.items {
		if _, err := live.AddItem(ctx, it.ItemType, it.ItemCount); err != nil {
			return err
		}
		rep.Items++
	}
	for _, t := range s.tasks {
		t.ID = 0
		if err := live.InsertTask(ctx, &t); err != nil {
			if gameerr.Is(err, gameerr.DuplicateLiveRow) {
				continue
			}
			return err
		}
		rep.Tasks++
	}
	for _, v := range s.vars {
		if err := live.SetVar(ctx, v.VarName, v.VarValue, v.RelatedSystem); err != nil {
			return err
		}
		rep.Vars++
	}
	return nil
}

func (o *Orchestrator) replaceCrop(ctx context.Context, live *persistence.Live, c *persistence.Crop) error {
	old, err := live.CropOn(ctx, c.FarmlandID)
	if err != nil {
		return err
	}
	if old != nil {
		if _, err := live.DeleteCrop(ctx, old.ID); err != nil {
			return err
		}
	}
	_, err = live.InsertCrop(ctx, c)
	return err
}

// Dedupe runs the duplicate-crop sweep on the live world.
func (o *Orchestrator) Dedupe(ctx context.Context) (int64, error) {
	n, err := o.db.Live().DeduplicateLiveCrops(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.log.Warn("duplicate live crops removed", "count", n)
	}
	return n, nil
}
