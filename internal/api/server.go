// Package api provides the local HTTP API for inspecting and driving the farm.
// GET endpoints are open (read-only observation).
// POST and DELETE endpoints require a bearer token and are rate limited.
// Every handler runs its work on the engine goroutine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/engine"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
)

// Server serves the farm over HTTP.
type Server struct {
	Sim      *engine.Simulation
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST/DELETE endpoints. Empty = disabled.

	limiter *RateLimiter
	srv     *http.Server
}

// New creates a Server for sim.
func New(sim *engine.Simulation, db *persistence.DB, cfg config.API) *Server {
	return &Server{
		Sim:      sim,
		DB:       db,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
		limiter:  NewRateLimiter(cfg.AdminPerSec, cfg.AdminBurst),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Public endpoints (GET, read-only).
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/farmland", s.handleFarmland).Methods(http.MethodGet)
	v1.HandleFunc("/crops", s.handleCrops).Methods(http.MethodGet)
	v1.HandleFunc("/backpack", s.handleBackpack).Methods(http.MethodGet)
	v1.HandleFunc("/tasks", s.handleTasks).Methods(http.MethodGet)
	v1.HandleFunc("/backups", s.handleBackups).Methods(http.MethodGet)
	v1.HandleFunc("/backups/{id:[0-9]+}", s.handleBackup).Methods(http.MethodGet)

	// Admin endpoints (POST/DELETE, require bearer token).
	v1.Handle("/actions", s.admin(s.handleAction)).Methods(http.MethodPost)
	v1.Handle("/select", s.admin(s.handleSelect)).Methods(http.MethodPost)
	v1.Handle("/crops/{id:[0-9]+}/harvest", s.admin(s.handleHarvest)).Methods(http.MethodPost)
	v1.Handle("/sleep", s.admin(s.handleSleep)).Methods(http.MethodPost)
	v1.Handle("/backups", s.admin(s.handleSave)).Methods(http.MethodPost)
	v1.Handle("/backups/{id:[0-9]+}/restore", s.admin(s.handleRestore)).Methods(http.MethodPost)
	v1.Handle("/backups/{id:[0-9]+}", s.admin(s.handleInvalidate)).Methods(http.MethodDelete)
	v1.Handle("/speed", s.admin(s.handleSpeed)).Methods(http.MethodPost)
	v1.Handle("/restart", s.admin(s.handleRestart)).Methods(http.MethodPost)
	v1.Handle("/reset", s.admin(s.handleReset)).Methods(http.MethodPost)

	return r
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		for range time.Tick(time.Hour) {
			s.limiter.Cleanup(2 * time.Hour)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// admin wraps an admin handler with auth and rate limiting.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.adminOnly(RateLimitMiddleware(s.limiter)(h))
}

// adminOnly requires the bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no FARMSTEAD_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// do runs fn on the engine goroutine and writes its result, or the error.
func (s *Server) do(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context) (any, error)) {
	var out any
	err := s.Sim.Engine.Do(r.Context(), func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSONStatus(w, status, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return map[string]any{
			"name":        "farmstead",
			"status":      s.Sim.Status(),
			"last_report": s.Sim.LastReport(),
		}, nil
	})
}

func (s *Server) handleFarmland(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.DB.Live().Farmland(ctx)
	})
}

func (s *Server) handleCrops(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.DB.Live().Crops(ctx)
	})
}

func (s *Server) handleBackpack(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		items, err := s.Sim.Backpack.Items(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items, "selected": s.Sim.Backpack.Selected()}, nil
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.Sim.Tasks.All(ctx)
	})
}

func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.DB.Backups(ctx, all)
	})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		b, err := s.DB.Backup(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, gameerr.New(gameerr.BackupNotFound, "backup %d not found", id)
		}
		return b, nil
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item string `json:"item"` // empty uses the selected item
		X    int    `json:"x"`
		Y    int    `json:"y"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.Sim.Apply(ctx, req.Item, req.X, req.Y); err != nil {
			return nil, err
		}
		tile, err := s.Sim.Farm.Tile(ctx, req.X, req.Y)
		if err != nil {
			return nil, err
		}
		crop, err := s.DB.Live().CropOn(ctx, tile.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tile": tile, "crop": crop}, nil
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item string `json:"item"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.Sim.Backpack.Select(ctx, req.Item); err != nil {
			return nil, err
		}
		return map[string]string{"selected": s.Sim.Backpack.Selected()}, nil
	})
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.Sim.Harvest(ctx, id)
	})
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.Sim.Sleep(ctx)
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	s.do(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		note := req.Note
		if note == "" {
			note = time.Now().Format(time.DateTime)
		}
		id, err := s.Sim.Save(ctx, note)
		if err != nil {
			return nil, err
		}
		return s.DB.Backup(ctx, id)
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.Sim.Restore(ctx, id)
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.do(w, r, http.StatusNoContent, func(ctx context.Context) (any, error) {
		return nil, s.Sim.Saves.Invalidate(ctx, id)
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		if s.Sim.GameOver() != "" && req.Speed > 0 {
			return nil, gameerr.New(gameerr.Rejected, "game over: restart first")
		}
		s.Sim.Engine.SetSpeed(req.Speed)
		return map[string]float64{"speed": s.Sim.Engine.Speed()}, nil
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.Sim.Restart(ctx); err != nil {
			return nil, err
		}
		return s.Sim.Status(), nil
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.do(w, r, http.StatusNoContent, func(ctx context.Context) (any, error) {
		return nil, s.Sim.Reset(ctx)
	})
}

func pathID(r *http.Request) int64 {
	// The route pattern guarantees digits.
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, engine.ErrStopped) {
		return http.StatusServiceUnavailable
	}
	switch gameerr.CodeOf(err) {
	case gameerr.NotFound, gameerr.BackupNotFound:
		return http.StatusNotFound
	case gameerr.Invalid:
		return http.StatusBadRequest
	case gameerr.Rejected, gameerr.InsufficientInventory, gameerr.DuplicateLiveRow, gameerr.ReferentialGap:
		return http.StatusConflict
	case gameerr.Busy:
		return http.StatusLocked
	case gameerr.StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("api request failed", "error", err)
	}
	writeJSONStatus(w, status, map[string]string{"error": err.Error(), "code": string(gameerr.CodeOf(err))})
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
