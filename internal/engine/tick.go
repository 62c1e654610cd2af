// Package engine runs the farm simulation on one goroutine. The in-game
// clock ticks there, and every mutation requested from outside arrives as a
// job through Do, so game state is never touched concurrently.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Do once the engine loop has exited.
var ErrStopped = errors.New("engine stopped")

// pausedPoll is how often a paused engine wakes to check its speed.
const pausedPoll = 100 * time.Millisecond

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // base tick interval at speed 1

	// OnTick runs on the engine goroutine once per tick while not paused.
	OnTick func(ctx context.Context)

	mu      sync.Mutex
	speed   float64 // 1.0 = real time, 0 = paused
	tick    uint64
	running bool

	jobs chan job
	done chan struct{}
}

type job struct {
	fn     func(ctx context.Context) error
	result chan error
}

// NewEngine creates an engine ticking every interval at speed 1.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		Interval: interval,
		speed:    1.0,
		jobs:     make(chan job),
		done:     make(chan struct{}),
	}
}

// Run starts the simulation loop. Blocks until ctx is cancelled. Run may be
// called once.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	e.mu.Unlock()
	defer close(e.done)

	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())
	timer := time.NewTimer(e.wait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return nil
		case j := <-e.jobs:
			j.result <- j.fn(ctx)
		case <-timer.C:
			if e.Speed() > 0 {
				e.step(ctx)
			}
			timer.Reset(e.wait())
		}
	}
}

// Do runs fn on the engine goroutine and returns its error. It must not be
// called from inside another job or from OnTick.
func (e *Engine) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{fn: fn, result: make(chan error, 1)}
	select {
	case e.jobs <- j:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Speed returns the current multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the multiplier. Zero or negative pauses.
func (e *Engine) SetSpeed(s float64) {
	e.mu.Lock()
	e.speed = max(s, 0)
	e.mu.Unlock()
	slog.Info("simulation speed changed", "speed", max(s, 0))
}

// Pause stops ticking without stopping the loop; jobs still run.
func (e *Engine) Pause() {
	e.SetSpeed(0)
}

// Paused reports whether the clock is halted.
func (e *Engine) Paused() bool {
	return e.Speed() <= 0
}

// Tick returns the number of ticks processed.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

func (e *Engine) wait() time.Duration {
	s := e.Speed()
	if s <= 0 {
		return pausedPoll
	}
	return time.Duration(float64(e.Interval) / s)
}

// step advances the simulation by one tick.
func (e *Engine) step(ctx context.Context) {
	e.mu.Lock()
	e.tick++
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(ctx)
	}
}
