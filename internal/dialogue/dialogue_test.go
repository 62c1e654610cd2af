package dialogue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/farmstead/internal/persistence"
)

func TestVarsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "farm.db"))
	require.NoError(t, err)
	defer db.Close()

	vars := NewVars(db, "tasks")
	_, ok, err := vars.Get(ctx, "wheat_done")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, vars.Set(ctx, "wheat_done", "true"))
	v, ok, err := vars.Get(ctx, "wheat_done")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	all, err := vars.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wheat_done": "true"}, all)

	row, err := db.Live().Var(ctx, "wheat_done")
	require.NoError(t, err)
	assert.Equal(t, "tasks", row.RelatedSystem)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Start("a")
	r.Start("b")
	assert.Equal(t, []string{"a", "b"}, r.Nodes())
}
