// Command farmstead runs the farm simulation with its local HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/farmstead/internal/api"
	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/engine"
	"github.com/talgya/farmstead/internal/logging"
	"github.com/talgya/farmstead/internal/persistence"
	"github.com/talgya/farmstead/internal/world"
)

func main() {
	configPath := flag.String("config", os.Getenv("FARMSTEAD_CONFIG"), "YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.Setup(os.Stderr, cfg.Log)

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", db.Path())

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg, db, engine.Options{Logger: logger})
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	err = sim.Boot(bootCtx)
	cancelBoot()
	if err != nil {
		slog.Error("failed to boot world", "error", err)
		db.Close()
		os.Exit(1)
	}
	for t, c := range world.TerrainCounts(sim.Map) {
		slog.Debug("terrain", "type", world.TerrainName(t), "count", c)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.API.Enabled {
		if cfg.API.AdminKey == "" {
			slog.Warn("FARMSTEAD_ADMIN_KEY not set; admin endpoints will be disabled")
		}
		apiServer = api.New(sim, db, cfg.API)
		apiServer.Start()
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nFarmstead is running: %s, %d soil tiles.\n", sim.Clock.String(), len(sim.Map.Farmable()))
	if apiServer != nil {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	if err := sim.Engine.Run(ctx); err != nil {
		slog.Error("engine failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API shutdown", "error", err)
		}
	}
	if err := sim.Flush(shutdownCtx); err != nil {
		slog.Error("final clock write failed", "error", err)
	}
	fmt.Println("Simulation stopped.")
}
