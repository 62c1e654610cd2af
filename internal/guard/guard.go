// Package guard provides a non-reentrant single-flight token for multi-step
// operations (planting, initial load, save, restore). A second attempt while
// the first is still running is rejected, never queued.
package guard

import (
	"sync"

	"github.com/talgya/farmstead/internal/gameerr"
)

// Guard admits one holder at a time.
type Guard struct {
	name string
	mu   sync.Mutex
}

// New creates a guard named after the operation it protects.
func New(name string) *Guard {
	return &Guard{name: name}
}

// Enter acquires the guard or fails with gameerr.Busy. The returned func
// releases it and must be called exactly once.
func (g *Guard) Enter() (release func(), err error) {
	if !g.mu.TryLock() {
		return nil, gameerr.New(gameerr.Busy, "%s already in progress", g.name)
	}
	var once sync.Once
	return func() { once.Do(g.mu.Unlock) }, nil
}

// Run executes fn under the guard.
func (g *Guard) Run(fn func() error) error {
	release, err := g.Enter()
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
