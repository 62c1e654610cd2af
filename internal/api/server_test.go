package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/engine"
	"github.com/talgya/farmstead/internal/entropy"
	"github.com/talgya/farmstead/internal/farm"
	"github.com/talgya/farmstead/internal/persistence"
)

const testKey = "secret"

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *persistence.DB) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "farm.db")
	cfg.API.AdminKey = testKey
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := persistence.Open(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sim := engine.NewSimulation(cfg, db, engine.Options{Visuals: farm.NopVisuals{}, Rand: entropy.Fixed(0.5)})
	require.NoError(t, sim.Boot(context.Background()))
	sim.Engine.Pause()
	require.NoError(t, db.Live().SaveFarmland(context.Background(), &persistence.FarmlandTile{TileX: 90, TileY: 90}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ts := httptest.NewServer(New(sim, db, cfg.API).Handler())
	t.Cleanup(ts.Close)
	return ts, db
}

func call(t *testing.T, ts *httptest.Server, method, path, key string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestStatus(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, out := call(t, ts, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	status := out["status"].(map[string]any)
	assert.Equal(t, "Spring", status["season"])
	assert.EqualValues(t, 1, status["day_count"])
}

func TestAdminRequiresToken(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, _ := call(t, ts, http.MethodPost, "/api/v1/sleep", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = call(t, ts, http.MethodPost, "/api/v1/sleep", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) { c.API.AdminKey = "" })
	resp, _ := call(t, ts, http.MethodPost, "/api/v1/sleep", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestActionsMapDomainErrors(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, out := call(t, ts, http.MethodPost, "/api/v1/actions", testKey, map[string]any{"item": "Hoe", "x": 90, "y": 90})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tile := out["tile"].(map[string]any)
	assert.Equal(t, true, tile["is_cultivated"])

	resp, out = call(t, ts, http.MethodPost, "/api/v1/actions", testKey, map[string]any{"item": "Hoe", "x": 90, "y": 90})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "REJECTED", out["code"])

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/actions", testKey, map[string]any{"item": "Hoe", "x": 500, "y": 500})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/crops/999/harvest", testKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBackupLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, out := call(t, ts, http.MethodPost, "/api/v1/backups", testKey, map[string]string{"note": "checkpoint"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "checkpoint", out["note"])
	id := int64(out["id"].(float64))

	resp, out = call(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/backups/%d", id), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["is_valid"])

	resp, out = call(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/backups/%d/restore", id), testKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, id, out["backup_id"])

	resp, _ = call(t, ts, http.MethodDelete, fmt.Sprintf("/api/v1/backups/%d", id), testKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err := http.Get(ts.URL + "/api/v1/backups")
	require.NoError(t, err)
	var list []persistence.SaveBackup
	require.NoError(t, json.NewDecoder(req.Body).Decode(&list))
	req.Body.Close()
	assert.Empty(t, list)

	resp, out = call(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/backups/%d/restore", id), testKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "BACKUP_NOT_FOUND", out["code"])
}

func TestSleepAndSpeed(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, out := call(t, ts, http.MethodPost, "/api/v1/sleep", testKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	day := out["day"].(map[string]any)
	assert.EqualValues(t, 2, day["day_count"])

	resp, out = call(t, ts, http.MethodPost, "/api/v1/speed", testKey, map[string]float64{"speed": 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, out["speed"])

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/speed", testKey, map[string]float64{"speed": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) {
		c.API.AdminPerSec = 0.001
		c.API.AdminBurst = 1
	})
	resp, _ := call(t, ts, http.MethodPost, "/api/v1/speed", testKey, map[string]float64{"speed": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/speed", testKey, map[string]float64{"speed": 0})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	unlimited := NewRateLimiter(0, 1)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Allow("10.0.0.1"))
	}
}
