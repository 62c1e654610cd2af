package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/dialogue"
	"github.com/talgya/farmstead/internal/entropy"
	"github.com/talgya/farmstead/internal/farm"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
)

var fixedNow = time.Date(2024, 3, 1, 21, 30, 0, 0, time.UTC)

type simFixture struct {
	ctx context.Context
	cfg config.Config
	db  *persistence.DB
	sim *Simulation
	rec *dialogue.Recorder
}

func newSimFixture(t *testing.T) *simFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "farm.db")
	db, err := persistence.Open(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &simFixture{ctx: context.Background(), cfg: cfg, db: db, rec: &dialogue.Recorder{}}
	f.sim = f.boot(t)

	// A plot the tests control regardless of the generated soil layout.
	require.NoError(t, db.Live().SaveFarmland(f.ctx, &persistence.FarmlandTile{TileX: 90, TileY: 90}))
	return f
}

func (f *simFixture) boot(t *testing.T) *Simulation {
	t.Helper()
	sim := NewSimulation(f.cfg, f.db, Options{
		Visuals:  farm.NopVisuals{},
		Notifier: f.rec,
		Rand:     entropy.Fixed(0.99),
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, sim.Boot(f.ctx))
	return sim
}

func (f *simFixture) plantWheat(t *testing.T) *persistence.Crop {
	t.Helper()
	require.NoError(t, f.sim.Apply(f.ctx, "Hoe", 90, 90))
	require.NoError(t, f.sim.Apply(f.ctx, "WateringCan", 90, 90))
	require.NoError(t, f.sim.Apply(f.ctx, "Wheat_Seed", 90, 90))
	c, err := f.sim.Farm.CropAt(f.ctx, 90, 90)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestBootNewGame(t *testing.T) {
	f := newSimFixture(t)

	p, err := f.db.Live().Player(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Spring", p.CurrentSeason)
	assert.Equal(t, 1, p.CurrentDay)
	assert.Equal(t, 1, p.DayCount)
	assert.Equal(t, "06:00", p.CurrentTime)

	n, err := f.sim.Backpack.Count(f.ctx, "Wheat_Seed")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	active, err := f.sim.Tasks.Active(f.ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "harvest_wheat", active[0].TaskName)

	seed, ok, err := f.db.GetMeta(f.ctx, persistence.MetaWorldSeed)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", seed)

	tiles, err := f.db.Live().Farmland(f.ctx)
	require.NoError(t, err)
	assert.Len(t, tiles, len(f.sim.Map.Farmable())+1)
}

func TestRebootKeepsState(t *testing.T) {
	f := newSimFixture(t)
	_, err := f.sim.Sleep(f.ctx)
	require.NoError(t, err)

	again := f.boot(t)
	assert.Equal(t, 2, again.Clock.Day)
	assert.Equal(t, 2, again.Clock.DayCount)

	n, err := again.Backpack.Count(f.ctx, "Wheat_Seed")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "starting items are not granted twice")

	all, err := again.Tasks.All(f.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSleepGrowsAndSaves(t *testing.T) {
	f := newSimFixture(t)
	crop := f.plantWheat(t)

	res, err := f.sim.Sleep(f.ctx)
	require.NoError(t, err)
	assert.Positive(t, res.BackupID)
	assert.Equal(t, Day{Season: "Spring", Day: 2, Count: 2}, res.Day)
	assert.Equal(t, 1, res.Report.Grown)

	got, err := f.db.Live().CropByID(f.ctx, crop.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DaysRemaining)

	b, err := f.db.Backup(f.ctx, res.BackupID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Format(time.DateTime), b.Note)
	assert.Equal(t, 2, b.CurrentDay)

	p, err := f.db.Archive(res.BackupID).Player(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 2, p.DayCount)
}

func TestHarvestCompletesTask(t *testing.T) {
	f := newSimFixture(t)
	crop := f.plantWheat(t)
	for i := 0; i < 3; i++ {
		if i > 0 {
			require.NoError(t, f.sim.Apply(f.ctx, "WateringCan", 90, 90))
		}
		_, err := f.sim.Sleep(f.ctx)
		require.NoError(t, err)
	}

	res, err := f.sim.Harvest(f.ctx, crop.ID)
	require.NoError(t, err)
	assert.True(t, res.Removed)

	all, err := f.sim.Tasks.All(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, persistence.TaskCompleted, all[0].Status)

	n, err := f.sim.Backpack.Count(f.ctx, "Wheat_Seed")
	require.NoError(t, err)
	assert.Equal(t, 9, n, "5 starting - 1 planted + 5 reward")
	assert.Contains(t, f.rec.Nodes(), "Task_Wheat_Complete")
}

func TestRestoreResyncsClock(t *testing.T) {
	f := newSimFixture(t)
	first, err := f.sim.Save(f.ctx, "morning")
	require.NoError(t, err)

	f.plantWheat(t)
	require.NoError(t, f.sim.Backpack.Select(f.ctx, "Wheat_Seed"))
	for i := 0; i < 2; i++ {
		_, err := f.sim.Sleep(f.ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.sim.Clock.Day)

	rep, err := f.sim.Restore(f.ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Day)
	assert.Equal(t, 1, f.sim.Clock.Day)
	assert.Equal(t, 1, f.sim.Clock.DayCount)

	c, err := f.sim.Farm.CropAt(f.ctx, 90, 90)
	require.NoError(t, err)
	assert.Nil(t, c, "the crop was planted after the save")

	_, err = f.sim.Restore(f.ctx, 9999)
	assert.True(t, gameerr.Is(err, gameerr.BackupNotFound))
}

func TestOverdueTaskEndsGame(t *testing.T) {
	f := newSimFixture(t)
	for i := 0; i < 7; i++ {
		_, err := f.sim.Sleep(f.ctx)
		require.NoError(t, err)
	}
	assert.Empty(t, f.sim.GameOver())

	_, err := f.sim.Sleep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "harvest_wheat", f.sim.GameOver())
	assert.True(t, f.sim.Engine.Paused())

	over, err := f.db.MetaBool(f.ctx, persistence.MetaGameOver)
	require.NoError(t, err)
	assert.True(t, over)

	_, err = f.sim.Sleep(f.ctx)
	assert.True(t, gameerr.Is(err, gameerr.Rejected))
	assert.True(t, gameerr.Is(f.sim.Apply(f.ctx, "Hoe", 90, 90), gameerr.Rejected))

	rebooted := f.boot(t)
	assert.Equal(t, "harvest_wheat", rebooted.GameOver())
	assert.True(t, rebooted.Engine.Paused())

	require.NoError(t, rebooted.Restart(f.ctx))
	assert.Empty(t, rebooted.GameOver())
	assert.False(t, rebooted.Engine.Paused())
	over, err = f.db.MetaBool(f.ctx, persistence.MetaGameOver)
	require.NoError(t, err)
	assert.False(t, over)
}

func TestNewDayObserversRunInOrder(t *testing.T) {
	f := newSimFixture(t)
	var seen []int
	unsubscribe := f.sim.OnNewDay(func(_ context.Context, d Day) error {
		seen = append(seen, d.Count)
		return nil
	})

	_, err := f.sim.Sleep(f.ctx)
	require.NoError(t, err)
	unsubscribe()
	_, err = f.sim.Sleep(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, seen)
}

func TestTickPersistsHour(t *testing.T) {
	f := newSimFixture(t)
	for i := 0; i < 20; i++ {
		f.sim.tick(f.ctx)
	}
	p, err := f.db.Live().Player(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "07:00", p.CurrentTime)
}

func TestResetKeepsBackups(t *testing.T) {
	f := newSimFixture(t)
	f.plantWheat(t)
	id, err := f.sim.Save(f.ctx, "before reset")
	require.NoError(t, err)

	require.NoError(t, f.sim.Reset(f.ctx))

	p, err := f.db.Live().Player(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
	crops, err := f.db.Live().Crops(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, crops)

	archived, err := f.db.Archive(id).Crops(f.ctx)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestStatusThroughEngine(t *testing.T) {
	f := newSimFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() { done <- f.sim.Engine.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	var st Status
	require.NoError(t, f.sim.Engine.Do(f.ctx, func(context.Context) error {
		st = f.sim.Status()
		return nil
	}))
	assert.Equal(t, "Spring", st.Season)
	assert.Equal(t, "day", st.Period)
}

func TestBootIsNotReentrant(t *testing.T) {
	f := newSimFixture(t)

	release, err := f.sim.loading.Enter()
	require.NoError(t, err)
	err = f.sim.Boot(f.ctx)
	assert.True(t, gameerr.Is(err, gameerr.Busy))
	release()

	require.NoError(t, f.sim.Boot(f.ctx))
}
