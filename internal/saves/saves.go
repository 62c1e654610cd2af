// Package saves snapshots the live world into backup generations and
// restores a generation back into the live world.
package saves

import (
	"context"
	"log/slog"
	"time"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/guard"
	"github.com/talgya/farmstead/internal/persistence"
)

// Options selects the tables beyond player, farmland and crops that a save
// copies and a restore replaces. The zero value copies only those three.
type Options struct {
	IncludeBackpack bool
	IncludeTasks    bool
	IncludeDialogue bool
	PlayerName      string // used when a save finds no live player
	Now             func() time.Time
}

// OptionsFrom maps the snapshot config section to Options.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		IncludeBackpack: cfg.Snapshot.IncludeBackpack,
		IncludeTasks:    cfg.Snapshot.IncludeTasks,
		IncludeDialogue: cfg.Snapshot.IncludeDialogue,
		PlayerName:      cfg.Player.Name,
	}
}

// Orchestrator runs SaveGame and LoadBackup. Only one of either runs at a
// time; an overlapping call is rejected with Busy.
type Orchestrator struct {
	db    *persistence.DB
	opts  Options
	log   *slog.Logger
	guard *guard.Guard
}

// New creates an Orchestrator.
func New(db *persistence.DB, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PlayerName == "" {
		opts.PlayerName = "Farmer"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		db:    db,
		opts:  opts,
		log:   logger.With("component", "saves"),
		guard: guard.New("save-restore"),
	}
}

// SaveGame stamps the live player with season, day and timestamp, then
// copies the live world into a new backup generation and returns its id.
// timestamp is also kept as the backup's note. The save is atomic.
func (o *Orchestrator) SaveGame(ctx context.Context, season string, day int, timestamp string) (int64, error) {
	release, err := o.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	now := o.opts.Now()
	backup := &persistence.SaveBackup{
		SaveDate:      now.Format("2006-01-02"),
		SaveTime:      now.Format("15:04:05"),
		CurrentSeason: season,
		CurrentDay:    day,
		Note:          timestamp,
	}
	var counts SaveReport

	err = o.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		player, err := live.Player(ctx)
		if err != nil {
			return err
		}
		if player == nil {
			player = &persistence.PlayerCore{Name: o.opts.PlayerName, DayCount: 1}
		}
		player.CurrentSeason = season
		player.CurrentDay = day
		player.LastSaveTime = timestamp
		if err := live.SavePlayer(ctx, player); err != nil {
			return err
		}

		w, err := tx.CreateBackup(ctx, backup)
		if err != nil {
			return err
		}
		counts, err = o.copyLive(ctx, live, w, player)
		return err
	})
	if err != nil {
		o.log.Error("save failed", "season", season, "day", day, "error", err)
		return 0, err
	}

	counts.BackupID = backup.ID
	o.log.Info("game saved",
		"backup_id", backup.ID,
		"season", season,
		"day", day,
		"tiles", counts.Tiles,
		"crops", counts.Crops,
		"items", counts.Items,
		"tasks", counts.Tasks,
	)
	return backup.ID, nil
}

// SaveReport counts the rows copied by a save.
type SaveReport struct {
	BackupID int64 `json:"backup_id"`
	Tiles    int   `json:"tiles"`
	Crops    int   `json:"crops"`
	Items    int   `json:"items"`
	Tasks    int   `json:"tasks"`
	Vars     int   `json:"vars"`
}

func (o *Orchestrator) copyLive(ctx context.Context, live *persistence.Live, w *persistence.SnapshotWriter, player *persistence.PlayerCore) (SaveReport, error) {
	var rep SaveReport

	snapPlayer := *player
	snapPlayer.ID = 0
	if err := w.PutPlayer(ctx, &snapPlayer); err != nil {
		return rep, err
	}

	tiles, err := live.Farmland(ctx)
	if err != nil {
		return rep, err
	}
	tileIDs := make(map[int64]int64, len(tiles))
	for _, t := range tiles {
		liveID := t.ID
		t.ID = 0
		if err := w.PutFarmland(ctx, &t); err != nil {
			return rep, err
		}
		tileIDs[liveID] = t.ID
		rep.Tiles++
	}

	crops, err := live.Crops(ctx)
	if err != nil {
		return rep, err
	}
	for _, c := range crops {
		snapTile, ok := tileIDs[c.FarmlandID]
		if !ok {
			o.log.Warn("crop skipped in save", "crop_id", c.ID, "farmland_id", c.FarmlandID, "code", gameerr.ReferentialGap)
			continue
		}
		c.ID = 0
		c.FarmlandID = snapTile
		if err := w.PutCrop(ctx, &c); err != nil {
			return rep, err
		}
		rep.Crops++
	}

	if o.opts.IncludeBackpack {
		items, err := live.Backpack(ctx)
		if err != nil {
			return rep, err
		}
		for _, it := range items {
			it.ID = 0
			if err := w.PutItem(ctx, &it); err != nil {
				return rep, err
			}
			rep.Items++
		}
	}
	if o.opts.IncludeTasks {
		tasks, err := live.Tasks(ctx)
		if err != nil {
			return rep, err
		}
		for _, t := range tasks {
			t.ID = 0
			if err := w.PutTask(ctx, &t); err != nil {
				return rep, err
			}
			rep.Tasks++
		}
	}
	if o.opts.IncludeDialogue {
		vars, err := live.Vars(ctx)
		if err != nil {
			return rep, err
		}
		for _, v := range vars {
			v.ID = 0
			if err := w.PutVar(ctx, &v); err != nil {
				return rep, err
			}
			rep.Vars++
		}
	}
	return rep, nil
}

// Backups lists restorable backups, newest first.
func (o *Orchestrator) Backups(ctx context.Context) ([]persistence.SaveBackup, error) {
	return o.db.Backups(ctx, false)
}

// Invalidate soft-deletes a backup so it can no longer be restored.
func (o *Orchestrator) Invalidate(ctx context.Context, id int64) error {
	if err := o.db.SoftInvalidate(ctx, id); err != nil {
		return err
	}
	o.log.Info("backup invalidated", "backup_id", id)
	return nil
}
