package guard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/farmstead/internal/gameerr"
)

func TestReentryIsRejected(t *testing.T) {
	g := New("plant-crop")

	var inner error
	err := g.Run(func() error {
		inner = g.Run(func() error { return nil })
		return nil
	})
	require.NoError(t, err)
	assert.True(t, gameerr.Is(inner, gameerr.Busy))
}

func TestReleaseAllowsNextHolder(t *testing.T) {
	g := New("save")

	release, err := g.Enter()
	require.NoError(t, err)
	release()
	release() // second call is a no-op

	release2, err := g.Enter()
	require.NoError(t, err)
	release2()
}

func TestRunReleasesOnError(t *testing.T) {
	g := New("restore")
	boom := errors.New("boom")

	assert.ErrorIs(t, g.Run(func() error { return boom }), boom)
	assert.NoError(t, g.Run(func() error { return nil }))
}
