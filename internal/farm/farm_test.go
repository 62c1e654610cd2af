package farm

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/entropy"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
	"github.com/talgya/farmstead/internal/world"
)

type recorder struct {
	mu      sync.Mutex
	shown   map[int64]persistence.GrowthStage
	removed []int64
	tiles   int
	clears  int
}

func newRecorder() *recorder {
	return &recorder{shown: make(map[int64]persistence.GrowthStage)}
}

func (r *recorder) ShowCrop(id int64, stage persistence.GrowthStage, _ string, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown[id] = stage
}

func (r *recorder) RemoveCrop(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recorder) ShowTile(persistence.FarmlandTile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiles++
}

func (r *recorder) ClearWaterIcons() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

type fixture struct {
	ctx  context.Context
	db   *persistence.DB
	farm *Farm
	vis  *recorder
}

func newFixture(t *testing.T, src entropy.Source) *fixture {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "farm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	vis := newRecorder()
	f := New(db, NewCatalog(config.Default().Crops), Options{Visuals: vis, Rand: src})

	m := world.NewMap(8, 8)
	for _, c := range []world.Coord{{7, 7}, {1, 1}, {2, 1}} {
		m.Get(c).Terrain = world.TerrainSoil
	}
	ctx := context.Background()
	n, err := f.InitFarmland(ctx, m)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = db.Live().AddItem(ctx, "Wheat_Seed", 5)
	require.NoError(t, err)
	return &fixture{ctx: ctx, db: db, farm: f, vis: vis}
}

func (fx *fixture) planted(t *testing.T, x, y int, seed string) *persistence.Crop {
	t.Helper()
	require.NoError(t, fx.farm.Cultivate(fx.ctx, x, y))
	c, err := fx.farm.Plant(fx.ctx, x, y, seed)
	require.NoError(t, err)
	return c
}

func (fx *fixture) itemCount(t *testing.T, item string) int {
	t.Helper()
	it, err := fx.db.Live().Item(fx.ctx, item)
	require.NoError(t, err)
	if it == nil {
		return 0
	}
	return it.ItemCount
}

func (fx *fixture) crop(t *testing.T, id int64) *persistence.Crop {
	t.Helper()
	c, err := fx.db.Live().CropByID(fx.ctx, id)
	require.NoError(t, err)
	return c
}

func TestInitFarmlandIsIdempotent(t *testing.T) {
	fx := newFixture(t, nil)
	m := world.NewMap(8, 8)
	m.Get(world.Coord{X: 7, Y: 7}).Terrain = world.TerrainSoil
	n, err := fx.farm.InitFarmland(fx.ctx, m)
	require.NoError(t, err)
	assert.Zero(t, n)

	atlas, err := fx.db.CropAtlas(fx.ctx)
	require.NoError(t, err)
	assert.Len(t, atlas, 3)
}

func TestPlantOnPreparedTile(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.farm.Cultivate(fx.ctx, 7, 7))
	require.NoError(t, fx.farm.Water(fx.ctx, 7, 7))

	c, err := fx.farm.Plant(fx.ctx, 7, 7, "Wheat_Seed")
	require.NoError(t, err)
	assert.Equal(t, persistence.StageSeed, c.GrowthStage)
	assert.Equal(t, 3, c.DaysRemaining)
	assert.Equal(t, c.TotalGrowthDays, c.DaysRemaining)
	assert.Equal(t, 4, fx.itemCount(t, "Wheat_Seed"))
	assert.Contains(t, fx.vis.shown, c.ID)
}

func TestPlantRejections(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.farm.Plant(fx.ctx, 1, 1, "Wheat_Seed")
	assert.True(t, gameerr.Is(err, gameerr.Rejected), "uncultivated: %v", err)

	_, err = fx.farm.Plant(fx.ctx, 5, 5, "Wheat_Seed")
	assert.True(t, gameerr.Is(err, gameerr.NotFound), "no tile: %v", err)

	_, err = fx.farm.Plant(fx.ctx, 1, 1, "Hoe")
	assert.True(t, gameerr.Is(err, gameerr.Invalid))

	fx.planted(t, 1, 1, "Wheat_Seed")
	_, err = fx.farm.Plant(fx.ctx, 1, 1, "Wheat_Seed")
	assert.True(t, gameerr.Is(err, gameerr.Rejected), "occupied: %v", err)
	assert.Equal(t, 4, fx.itemCount(t, "Wheat_Seed"), "rejected plant keeps the seed")
}

func TestPlantWithoutSeedChangesNothing(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.farm.Cultivate(fx.ctx, 2, 1))

	_, err := fx.farm.Plant(fx.ctx, 2, 1, "Tomato_Seed")
	assert.True(t, gameerr.Is(err, gameerr.InsufficientInventory))

	c, err := fx.farm.CropAt(fx.ctx, 2, 1)
	require.NoError(t, err)
	assert.Nil(t, c, "crop insert rolled back with the failed consume")
}

func TestPlantIsNotReentrant(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.farm.Cultivate(fx.ctx, 1, 1))

	release, err := fx.farm.planting.Enter()
	require.NoError(t, err)
	_, err = fx.farm.Plant(fx.ctx, 1, 1, "Wheat_Seed")
	assert.True(t, gameerr.Is(err, gameerr.Busy))
	release()

	_, err = fx.farm.Plant(fx.ctx, 1, 1, "Wheat_Seed")
	assert.NoError(t, err)
}

func TestWaterRules(t *testing.T) {
	fx := newFixture(t, nil)

	err := fx.farm.Water(fx.ctx, 1, 1)
	assert.True(t, gameerr.Is(err, gameerr.Rejected))

	require.NoError(t, fx.farm.Cultivate(fx.ctx, 1, 1))
	err = fx.farm.Cultivate(fx.ctx, 1, 1)
	assert.True(t, gameerr.Is(err, gameerr.Rejected))

	require.NoError(t, fx.farm.Water(fx.ctx, 1, 1))
	err = fx.farm.Water(fx.ctx, 1, 1)
	assert.True(t, gameerr.Is(err, gameerr.Rejected))
}

func TestUnwateredDayDoesNothing(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.planted(t, 7, 7, "Wheat_Seed")

	rep, err := fx.farm.AdvanceDay(fx.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Unwatered)

	got := fx.crop(t, c.ID)
	assert.Equal(t, c.DaysRemaining, got.DaysRemaining)
	assert.Equal(t, c.GrowthStage, got.GrowthStage)
}

func TestWateredDayGrowsAndResetsWatering(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.planted(t, 7, 7, "Wheat_Seed")

	require.NoError(t, fx.farm.Water(fx.ctx, 7, 7))
	_, err := fx.farm.AdvanceDay(fx.ctx)
	require.NoError(t, err)
	got := fx.crop(t, c.ID)
	assert.Equal(t, 2, got.DaysRemaining)
	assert.Equal(t, persistence.StageSeed, got.GrowthStage, "2 > 3/2")

	tile, err := fx.farm.Tile(fx.ctx, 7, 7)
	require.NoError(t, err)
	assert.False(t, tile.IsWatered, "watering is cleared for the new day")

	require.NoError(t, fx.farm.Water(fx.ctx, 7, 7))
	_, err = fx.farm.AdvanceDay(fx.ctx)
	require.NoError(t, err)
	got = fx.crop(t, c.ID)
	assert.Equal(t, 1, got.DaysRemaining)
	assert.Equal(t, persistence.StageSeedling, got.GrowthStage)
	assert.Equal(t, persistence.StageSeedling, fx.vis.shown[c.ID], "stage change reaches the visuals")
}

func TestGrowthMonotonic(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.planted(t, 7, 7, "Wheat_Seed")
	pattern := []bool{true, false, false, true, false, true, true, true}

	prev := fx.crop(t, c.ID)
	for _, water := range pattern {
		if water {
			require.NoError(t, fx.farm.Water(fx.ctx, 7, 7))
		}
		_, err := fx.farm.AdvanceDay(fx.ctx)
		require.NoError(t, err)

		cur := fx.crop(t, c.ID)
		assert.GreaterOrEqual(t, cur.GrowthStage, prev.GrowthStage)
		assert.LessOrEqual(t, cur.DaysRemaining, prev.DaysRemaining)
		if !water {
			assert.Equal(t, prev.DaysRemaining, cur.DaysRemaining)
			assert.Equal(t, prev.GrowthStage, cur.GrowthStage)
		}
		prev = cur
	}
	assert.Equal(t, persistence.StageMature, prev.GrowthStage)
	assert.Zero(t, prev.DaysRemaining)
}

func TestStageFor(t *testing.T) {
	tests := []struct {
		dr, total int
		want      persistence.GrowthStage
	}{
		{3, 3, persistence.StageSeed},
		{2, 3, persistence.StageSeed},
		{1, 3, persistence.StageSeedling},
		{0, 3, persistence.StageMature},
		{7, 7, persistence.StageSeed},
		{4, 7, persistence.StageSeed},
		{3, 7, persistence.StageSeedling},
		{6, 12, persistence.StageSeedling},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageFor(tt.dr, tt.total), "dr=%d total=%d", tt.dr, tt.total)
	}
	dr, stage := Advance(0, 3)
	assert.Zero(t, dr)
	assert.Equal(t, persistence.StageMature, stage)
}

func mature(t *testing.T, fx *fixture, c *persistence.Crop) {
	t.Helper()
	c.DaysRemaining = 0
	c.GrowthStage = persistence.StageMature
	require.NoError(t, fx.db.Live().UpdateCrop(fx.ctx, c))
}

func TestHarvestSingleCrop(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.planted(t, 7, 7, "Wheat_Seed")

	_, err := fx.farm.Harvest(fx.ctx, c.ID)
	assert.True(t, gameerr.Is(err, gameerr.Rejected), "immature crop")

	mature(t, fx, c)
	var heard []HarvestResult
	fx.farm.OnHarvest(func(_ context.Context, res HarvestResult) { heard = append(heard, res) })

	res, err := fx.farm.Harvest(fx.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 1, fx.itemCount(t, "Wheat"))
	assert.Nil(t, fx.crop(t, c.ID))

	onTile, err := fx.farm.CropAt(fx.ctx, 7, 7)
	require.NoError(t, err)
	assert.Nil(t, onTile)
	assert.Contains(t, fx.vis.removed, c.ID)
	require.Len(t, heard, 1)
	assert.Equal(t, "Wheat", heard[0].CropType)

	_, err = fx.farm.Harvest(fx.ctx, c.ID)
	assert.True(t, gameerr.Is(err, gameerr.NotFound))
}

func TestHarvestSeedDrop(t *testing.T) {
	for _, tt := range []struct {
		name  string
		draw  entropy.Fixed
		seeds int
	}{
		{"drop", 0.1, 1},
		{"no drop", 0.9, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.draw)
			_, err := fx.db.Live().AddItem(fx.ctx, "Tomato_Seed", 1)
			require.NoError(t, err)
			c := fx.planted(t, 1, 1, "Tomato_Seed")
			mature(t, fx, c)

			res, err := fx.farm.Harvest(fx.ctx, c.ID)
			require.NoError(t, err)
			assert.True(t, res.Removed)
			assert.Equal(t, 1, fx.itemCount(t, "Tomato"))
			assert.Equal(t, tt.seeds, fx.itemCount(t, "Tomato_Seed"))
		})
	}
}

func TestCyclicCropRegrows(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.db.Live().AddItem(fx.ctx, "Carrot_Seed", 1)
	require.NoError(t, err)
	c := fx.planted(t, 2, 1, "Carrot_Seed")
	mature(t, fx, c)

	res, err := fx.farm.Harvest(fx.ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, persistence.StageCyclicMature, fx.crop(t, c.ID).GrowthStage)
	assert.Equal(t, 1, fx.itemCount(t, "Carrot"))

	_, err = fx.farm.Harvest(fx.ctx, c.ID)
	assert.True(t, gameerr.Is(err, gameerr.Rejected), "regrowing crop is not harvestable")

	_, err = fx.farm.AdvanceDay(fx.ctx)
	require.NoError(t, err)
	assert.Zero(t, fx.crop(t, c.ID).WateringCount, "unwatered day does not count")

	require.NoError(t, fx.farm.Water(fx.ctx, 2, 1))
	_, err = fx.farm.AdvanceDay(fx.ctx)
	require.NoError(t, err)
	got := fx.crop(t, c.ID)
	assert.Equal(t, 1, got.WateringCount)
	assert.Equal(t, persistence.StageCyclicMature, got.GrowthStage)

	require.NoError(t, fx.farm.Water(fx.ctx, 2, 1))
	rep, err := fx.farm.AdvanceDay(fx.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Regrown)
	got = fx.crop(t, c.ID)
	assert.Equal(t, persistence.StageMature, got.GrowthStage)
	assert.Zero(t, got.WateringCount)

	_, err = fx.farm.Harvest(fx.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.itemCount(t, "Carrot"))
	assert.NotNil(t, fx.crop(t, c.ID), "cyclic crop is never deleted")
}

func TestApplyByToolMode(t *testing.T) {
	fx := newFixture(t, nil)

	require.NoError(t, fx.farm.Apply(fx.ctx, "Hoe", 1, 1))
	require.NoError(t, fx.farm.Apply(fx.ctx, "WateringCan", 1, 1))
	require.NoError(t, fx.farm.Apply(fx.ctx, "Wheat_Seed", 1, 1))

	err := fx.farm.Apply(fx.ctx, "Wheat", 2, 1)
	assert.True(t, gameerr.Is(err, gameerr.Rejected))

	c, err := fx.farm.CropAt(fx.ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Wheat", c.CropType)
}

func TestModeForItem(t *testing.T) {
	assert.Equal(t, ModePlant, ModeForItem("Carrot_Seed"))
	assert.Equal(t, ModeCultivate, ModeForItem("Hoe"))
	assert.Equal(t, ModeWater, ModeForItem("WateringCan"))
	assert.Equal(t, ModeNone, ModeForItem("Tomato"))
	assert.Equal(t, "plant", ModePlant.String())
}

func TestReset(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.planted(t, 7, 7, "Wheat_Seed")
	require.NoError(t, fx.farm.Water(fx.ctx, 7, 7))

	require.NoError(t, fx.farm.Reset(fx.ctx))
	assert.Nil(t, fx.crop(t, c.ID))
	tile, err := fx.farm.Tile(fx.ctx, 7, 7)
	require.NoError(t, err)
	assert.False(t, tile.IsCultivated)
	assert.False(t, tile.IsWatered)
	assert.Contains(t, fx.vis.removed, c.ID)
}

func TestRedraw(t *testing.T) {
	fx := newFixture(t, nil)
	c := fx.planted(t, 7, 7, "Wheat_Seed")
	fx.vis.shown = make(map[int64]persistence.GrowthStage)
	fx.vis.tiles = 0

	require.NoError(t, fx.farm.Redraw(fx.ctx))
	assert.Equal(t, 3, fx.vis.tiles)
	assert.Contains(t, fx.vis.shown, c.ID)
}
