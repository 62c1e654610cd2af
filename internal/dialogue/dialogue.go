// Package dialogue is the boundary to the dialogue runner: fire-and-forget
// node notifications plus the variables dialogue scripts read and write.
package dialogue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/talgya/farmstead/internal/persistence"
)

// Notifier starts a named dialogue node. Implementations must not block.
type Notifier interface {
	Start(node string)
}

// LogNotifier records node starts in the log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Start implements Notifier.
func (n LogNotifier) Start(node string) {
	l := n.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("dialogue started", "node", node)
}

// Recorder keeps every started node in order. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	nodes []string
}

// Start implements Notifier.
func (r *Recorder) Start(node string) {
	r.mu.Lock()
	r.nodes = append(r.nodes, node)
	r.mu.Unlock()
}

// Nodes returns a copy of the started nodes.
func (r *Recorder) Nodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.nodes...)
}

// Vars reads and writes live dialogue variables.
type Vars struct {
	db     *persistence.DB
	system string
}

// NewVars returns a Vars tagging writes with the owning system name.
func NewVars(db *persistence.DB, system string) *Vars {
	return &Vars{db: db, system: system}
}

// Get returns the value of name and whether it is set.
func (v *Vars) Get(ctx context.Context, name string) (string, bool, error) {
	dv, err := v.db.Live().Var(ctx, name)
	if err != nil || dv == nil {
		return "", false, err
	}
	return dv.VarValue, true, nil
}

// Set stores name=value.
func (v *Vars) Set(ctx context.Context, name, value string) error {
	return v.db.Live().SetVar(ctx, name, value, v.system)
}

// All returns every live variable as a map.
func (v *Vars) All(ctx context.Context) (map[string]string, error) {
	rows, err := v.db.Live().Vars(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.VarName] = r.VarValue
	}
	return out, nil
}
