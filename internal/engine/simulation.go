// Simulation ties together the farm systems and runs them on the engine.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/dialogue"
	"github.com/talgya/farmstead/internal/entropy"
	"github.com/talgya/farmstead/internal/farm"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/guard"
	"github.com/talgya/farmstead/internal/inventory"
	"github.com/talgya/farmstead/internal/persistence"
	"github.com/talgya/farmstead/internal/saves"
	"github.com/talgya/farmstead/internal/tasks"
	"github.com/talgya/farmstead/internal/world"
)

// Options carries the collaborators a Simulation does not build itself.
// Zero values select log-only visuals and dialogue, and the configured
// random source.
type Options struct {
	Visuals  farm.Visuals
	Notifier dialogue.Notifier
	Rand     entropy.Source
	Logger   *slog.Logger
	Now      func() time.Time
}

// Day identifies an in-game day for new-day observers.
type Day struct {
	Season string `json:"season"`
	Day    int    `json:"day"`
	Count  int    `json:"day_count"`
}

// DayObserver runs when a new day begins, after the player row is updated.
type DayObserver func(ctx context.Context, d Day) error

type dayObserver struct {
	id int
	fn DayObserver
}

// Simulation holds the live game systems and wires them together. Once the
// engine is running, call its methods only through Engine.Do.
type Simulation struct {
	cfg config.Config
	db  *persistence.DB
	log *slog.Logger
	now func() time.Time

	Engine   *Engine
	Clock    *Clock
	Map      *world.Map
	Farm     *farm.Farm
	Backpack *inventory.Backpack
	Tasks    *tasks.Manager
	Saves    *saves.Orchestrator

	loading *guard.Guard

	mu         sync.Mutex
	observers  []dayObserver
	nextObs    int
	lastReport farm.DayReport
	gameOver   string
}

// NewSimulation builds every system over db. Call Boot before running.
func NewSimulation(cfg config.Config, db *persistence.DB, opts Options) *Simulation {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Visuals == nil {
		opts.Visuals = farm.LogVisuals{Logger: opts.Logger}
	}
	if opts.Notifier == nil {
		opts.Notifier = dialogue.LogNotifier{Logger: opts.Logger}
	}
	if opts.Rand == nil {
		opts.Rand = entropy.FromKey(cfg.Entropy.RandomOrgKey)
	}

	saveOpts := saves.OptionsFrom(cfg)
	saveOpts.Now = opts.Now

	s := &Simulation{
		cfg:    cfg,
		db:     db,
		log:    opts.Logger.With("component", "simulation"),
		now:    opts.Now,
		Engine: NewEngine(cfg.Clock.TickInterval),
		Clock:  NewClock(cfg.Clock),
		Farm: farm.New(db, farm.NewCatalog(cfg.Crops), farm.Options{
			Visuals: opts.Visuals,
			Rand:    opts.Rand,
			Logger:  opts.Logger,
		}),
		Backpack: inventory.New(db, opts.Logger),
		Tasks:    tasks.New(db, cfg.Tasks, opts.Notifier, opts.Logger),
		Saves:    saves.New(db, saveOpts, opts.Logger),
		loading:  guard.New("initial-load"),
	}
	s.Engine.OnTick = s.tick

	// Growth first, then tasks.
	s.OnNewDay(func(ctx context.Context, _ Day) error {
		rep, err := s.Farm.AdvanceDay(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.lastReport = rep
		s.mu.Unlock()
		return nil
	})
	s.OnNewDay(func(ctx context.Context, d Day) error {
		return s.Tasks.OnDayChanged(ctx, d.Count)
	})
	s.Farm.OnHarvest(func(ctx context.Context, res farm.HarvestResult) {
		s.Tasks.RecordHarvest(ctx, res.CropType)
	})
	s.Tasks.OnFailure(s.endGame)
	return s
}

// OnNewDay registers fn to run on every new day, in registration order. The
// returned func removes it.
func (s *Simulation) OnNewDay(fn DayObserver) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, dayObserver{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Boot prepares the live world: the player and clock, the starting
// backpack, the farmland grid, and the day's tasks. A world already over
// stays paused until Restart.
func (s *Simulation) Boot(ctx context.Context) error {
	release, err := s.loading.Enter()
	if err != nil {
		return err
	}
	defer release()

	live := s.db.Live()
	player, err := live.Player(ctx)
	if err != nil {
		return err
	}
	if player != nil {
		s.Clock.Sync(*player)
	} else if err := s.persistPlayer(ctx); err != nil {
		return err
	}

	if _, err := s.Backpack.EnsureStartingItems(ctx, s.cfg.Backpack.StartingItems); err != nil {
		return err
	}

	m, err := s.generateMap(ctx)
	if err != nil {
		return err
	}
	s.Map = m
	if _, err := s.Farm.InitFarmland(ctx, m); err != nil {
		return err
	}
	if err := s.Farm.Redraw(ctx); err != nil {
		return err
	}

	if err := s.db.SaveMeta(ctx, persistence.MetaLastBoot, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	over, err := s.db.MetaBool(ctx, persistence.MetaGameOver)
	if err != nil {
		return err
	}
	if over {
		why, _, err := s.db.GetMeta(ctx, persistence.MetaGameOverWhy)
		if err != nil {
			return err
		}
		s.setGameOver(why)
		s.Engine.Pause()
		s.log.Warn("world is over; restart to continue", "task", why)
		return nil
	}

	s.log.Info("world booted", "clock", s.Clock.String(), "soil_tiles", len(m.Farmable()))
	return s.Tasks.OnDayChanged(ctx, s.Clock.DayCount)
}

// generateMap builds the tilemap from the seed recorded on first boot, so
// the soil layout is stable across config edits.
func (s *Simulation) generateMap(ctx context.Context) (*world.Map, error) {
	wc := s.cfg.World
	stored, ok, err := s.db.GetMeta(ctx, persistence.MetaWorldSeed)
	if err != nil {
		return nil, err
	}
	if seed, perr := strconv.ParseInt(stored, 10, 64); ok && perr == nil {
		wc.Seed = seed
	} else if err := s.db.SaveMeta(ctx, persistence.MetaWorldSeed, strconv.FormatInt(wc.Seed, 10)); err != nil {
		return nil, err
	}
	return world.Generate(wc), nil
}

// tick is the engine's per-tick callback.
func (s *Simulation) tick(ctx context.Context) {
	if s.GameOver() != "" {
		return
	}
	hourChanged, newDay := s.Clock.Step()
	var err error
	switch {
	case newDay:
		err = s.dayChanged(ctx)
	case hourChanged:
		err = s.persistPlayer(ctx)
	}
	if err != nil {
		s.log.Error("tick failed", "clock", s.Clock.String(), "error", err)
	}
}

// dayChanged records the new day on the player, then runs the observers.
// Observer failures are logged and do not stop later observers.
func (s *Simulation) dayChanged(ctx context.Context) error {
	if err := s.persistPlayer(ctx); err != nil {
		return err
	}
	d := Day{Season: s.Clock.Season, Day: s.Clock.Day, Count: s.Clock.DayCount}
	s.log.Info("new day", "season", d.Season, "day", d.Day, "day_count", d.Count)

	s.mu.Lock()
	obs := append([]dayObserver(nil), s.observers...)
	s.mu.Unlock()

	var errs []error
	for _, o := range obs {
		if err := o.fn(ctx, d); err != nil {
			s.log.Error("new day observer failed", "day_count", d.Count, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush writes the clock to the live player.
func (s *Simulation) Flush(ctx context.Context) error {
	return s.persistPlayer(ctx)
}

func (s *Simulation) persistPlayer(ctx context.Context) error {
	live := s.db.Live()
	p, err := live.Player(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		p = &persistence.PlayerCore{Name: s.cfg.Player.Name}
	}
	s.Clock.Stamp(p)
	return live.SavePlayer(ctx, p)
}

// SleepResult is what a night's sleep produced.
type SleepResult struct {
	BackupID int64          `json:"backup_id"`
	Day      Day            `json:"day"`
	Report   farm.DayReport `json:"report"`
}

// Sleep skips to the next morning and saves the game.
func (s *Simulation) Sleep(ctx context.Context) (*SleepResult, error) {
	if why := s.GameOver(); why != "" {
		return nil, gameerr.New(gameerr.Rejected, "game over: task %s failed", why)
	}
	s.Clock.NextDay()
	if err := s.dayChanged(ctx); err != nil {
		return nil, err
	}
	id, err := s.Save(ctx, s.now().Format(time.DateTime))
	if err != nil {
		return nil, err
	}
	return &SleepResult{
		BackupID: id,
		Day:      Day{Season: s.Clock.Season, Day: s.Clock.Day, Count: s.Clock.DayCount},
		Report:   s.LastReport(),
	}, nil
}

// Save writes the current clock to the player and snapshots the world.
func (s *Simulation) Save(ctx context.Context, note string) (int64, error) {
	if err := s.persistPlayer(ctx); err != nil {
		return 0, err
	}
	return s.Saves.SaveGame(ctx, s.Clock.Season, s.Clock.Day, note)
}

// Restore loads backup id into the live world and resynchronizes the clock,
// the backpack selection and the visuals with it.
func (s *Simulation) Restore(ctx context.Context, id int64) (*saves.RestoreReport, error) {
	rep, err := s.Saves.LoadBackup(ctx, id)
	if err != nil {
		return nil, err
	}
	player, err := s.db.Live().Player(ctx)
	if err != nil {
		return nil, err
	}
	if player != nil {
		s.Clock.Sync(*player)
	}
	if err := s.Backpack.Refresh(ctx); err != nil {
		return nil, err
	}
	if err := s.Farm.Redraw(ctx); err != nil {
		return nil, err
	}
	return rep, nil
}

// Apply uses item on (x, y). An empty item means the selected one.
func (s *Simulation) Apply(ctx context.Context, item string, x, y int) error {
	if why := s.GameOver(); why != "" {
		return gameerr.New(gameerr.Rejected, "game over: task %s failed", why)
	}
	if item == "" {
		item = s.Backpack.Selected()
	}
	return s.Farm.Apply(ctx, item, x, y)
}

// Harvest harvests the live crop id.
func (s *Simulation) Harvest(ctx context.Context, id int64) (*farm.HarvestResult, error) {
	if why := s.GameOver(); why != "" {
		return nil, gameerr.New(gameerr.Rejected, "game over: task %s failed", why)
	}
	return s.Farm.Harvest(ctx, id)
}

// Reset clears live crops, returns tiles to bare soil and deletes the live
// player. Backups are untouched. The clock restarts from the configured
// start and is written back on the next hour.
func (s *Simulation) Reset(ctx context.Context) error {
	if err := s.Farm.Reset(ctx); err != nil {
		return err
	}
	if _, err := persistence.Purge[persistence.PlayerCore](ctx, s.db.Live()); err != nil {
		return err
	}
	s.Clock = NewClock(s.cfg.Clock)
	s.log.Info("live world reset")
	return nil
}

// endGame records a failed task and halts the clock.
func (s *Simulation) endGame(ctx context.Context, t persistence.PlayerTask) {
	if s.GameOver() != "" {
		return
	}
	err := s.db.InTx(ctx, func(tx *persistence.Tx) error {
		if err := tx.SaveMeta(ctx, persistence.MetaGameOver, "true"); err != nil {
			return err
		}
		return tx.SaveMeta(ctx, persistence.MetaGameOverWhy, t.TaskName)
	})
	if err != nil {
		s.log.Error("game over not recorded", "task", t.TaskName, "error", err)
	}
	s.setGameOver(t.TaskName)
	s.Engine.Pause()
	s.log.Warn("game over", "task", t.TaskName, "day_assigned", t.DayAssigned, "day_limit", t.DayLimit)
}

// Restart clears a game over and resumes the clock at normal speed.
func (s *Simulation) Restart(ctx context.Context) error {
	if err := s.db.DeleteMeta(ctx, persistence.MetaGameOver); err != nil {
		return err
	}
	if err := s.db.DeleteMeta(ctx, persistence.MetaGameOverWhy); err != nil {
		return err
	}
	s.setGameOver("")
	s.Engine.SetSpeed(1)
	s.log.Info("game restarted")
	return nil
}

func (s *Simulation) setGameOver(task string) {
	s.mu.Lock()
	s.gameOver = task
	s.mu.Unlock()
}

// GameOver returns the task that ended the game, or "".
func (s *Simulation) GameOver() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameOver
}

// LastReport returns the most recent day-advance report.
func (s *Simulation) LastReport() farm.DayReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// Status is a point-in-time summary of the simulation.
type Status struct {
	Season   string  `json:"season"`
	Day      int     `json:"day"`
	DayCount int     `json:"day_count"`
	Time     string  `json:"time"`
	Period   string  `json:"period"`
	Tick     uint64  `json:"tick"`
	Speed    float64 `json:"speed"`
	Selected string  `json:"selected_item,omitempty"`
	GameOver string  `json:"game_over,omitempty"`
}

// Status summarizes the clock and engine. Run it through Engine.Do when the
// engine is running.
func (s *Simulation) Status() Status {
	return Status{
		Season:   s.Clock.Season,
		Day:      s.Clock.Day,
		DayCount: s.Clock.DayCount,
		Time:     s.Clock.TimeString(),
		Period:   s.Clock.Period().String(),
		Tick:     s.Engine.Tick(),
		Speed:    s.Engine.Speed(),
		Selected: s.Backpack.Selected(),
		GameOver: s.GameOver(),
	}
}
