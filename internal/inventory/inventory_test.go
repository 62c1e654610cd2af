package inventory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
)

func newBackpack(t *testing.T) *Backpack {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "farm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func TestParseStacks(t *testing.T) {
	tests := []struct {
		in   string
		want []Stack
		bad  bool
	}{
		{in: "Wheat_Seed:5", want: []Stack{{"Wheat_Seed", 5}}},
		{in: "Wheat_Seed:5, Hoe", want: []Stack{{"Wheat_Seed", 5}, {"Hoe", 1}}},
		{in: "", want: nil},
		{in: "Wheat_Seed:zero", bad: true},
		{in: "Wheat_Seed:-2", bad: true},
		{in: ":3", bad: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStacks(tt.in)
			if tt.bad {
				assert.True(t, gameerr.Is(err, gameerr.Invalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "Wheat_Seed:5,Hoe:1", FormatStacks([]Stack{{"Wheat_Seed", 5}, {"Hoe", 1}}))
}

func TestConsumeClearsSelection(t *testing.T) {
	ctx := context.Background()
	bp := newBackpack(t)

	_, err := bp.Add(ctx, "Wheat_Seed", 1)
	require.NoError(t, err)
	require.NoError(t, bp.Select(ctx, "Wheat_Seed"))
	assert.Equal(t, "Wheat_Seed", bp.Selected())

	left, err := bp.Consume(ctx, "Wheat_Seed", 1)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.Empty(t, bp.Selected())
}

func TestSelectRequiresItem(t *testing.T) {
	ctx := context.Background()
	bp := newBackpack(t)

	err := bp.Select(ctx, "Hoe")
	assert.True(t, gameerr.Is(err, gameerr.InsufficientInventory))
	assert.Empty(t, bp.Selected())
	require.NoError(t, bp.Select(ctx, ""))
}

func TestEnsureStartingItemsOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	bp := newBackpack(t)
	start := config.Default().Backpack.StartingItems

	added, err := bp.EnsureStartingItems(ctx, start)
	require.NoError(t, err)
	assert.True(t, added)

	items, err := bp.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, len(start))

	added, err = bp.EnsureStartingItems(ctx, start)
	require.NoError(t, err)
	assert.False(t, added)

	n, err := bp.Count(ctx, "Wheat_Seed")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "second call does not double up")
}

func TestRefreshDropsStaleSelection(t *testing.T) {
	ctx := context.Background()
	bp := newBackpack(t)

	_, err := bp.Add(ctx, "Hoe", 1)
	require.NoError(t, err)
	require.NoError(t, bp.Select(ctx, "Hoe"))

	_, err = persistence.Purge[persistence.BackpackItem](ctx, bp.db.Live())
	require.NoError(t, err)
	require.NoError(t, bp.Refresh(ctx))
	assert.Empty(t, bp.Selected())
}
