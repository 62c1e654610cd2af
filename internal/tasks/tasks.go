// Package tasks assigns day-scheduled tasks, tracks their progress, pays
// rewards on completion and detects overdue tasks.
package tasks

import (
	"context"
	"log/slog"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/dialogue"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/inventory"
	"github.com/talgya/farmstead/internal/persistence"
)

// TypeHarvest tasks advance when a crop of the rule's target is harvested.
const TypeHarvest = "harvest"

// Manager owns the live player_tasks rows.
type Manager struct {
	db       *persistence.DB
	rules    map[string]config.TaskRule
	order    []string
	notifier dialogue.Notifier
	vars     *dialogue.Vars
	log      *slog.Logger

	failed []func(ctx context.Context, task persistence.PlayerTask)
}

// New creates a Manager for the configured rules.
func New(db *persistence.DB, rules []config.TaskRule, notifier dialogue.Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = dialogue.LogNotifier{Logger: logger}
	}
	m := &Manager{
		db:       db,
		rules:    make(map[string]config.TaskRule, len(rules)),
		notifier: notifier,
		vars:     dialogue.NewVars(db, "tasks"),
		log:      logger.With("component", "tasks"),
	}
	for _, r := range rules {
		m.rules[r.Name] = r
		m.order = append(m.order, r.Name)
	}
	return m
}

// OnFailure registers a callback for the first overdue task found by a
// failure sweep.
func (m *Manager) OnFailure(fn func(ctx context.Context, task persistence.PlayerTask)) {
	m.failed = append(m.failed, fn)
}

// OnDayChanged assigns the day's tasks, then sweeps for failures.
func (m *Manager) OnDayChanged(ctx context.Context, day int) error {
	if _, err := m.Assign(ctx, day); err != nil {
		return err
	}
	_, err := m.CheckFailure(ctx, day)
	return err
}

// Assign creates the live tasks scheduled for day. A rule already assigned
// on that day is skipped, so repeated calls are harmless.
func (m *Manager) Assign(ctx context.Context, day int) ([]persistence.PlayerTask, error) {
	var created []persistence.PlayerTask
	err := m.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		for _, name := range m.order {
			r := m.rules[name]
			if r.AssignOnDay != day {
				continue
			}
			existing, err := live.TaskAssignment(ctx, r.Name, day)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			t := persistence.PlayerTask{
				TaskName:     r.Name,
				TaskType:     r.Type,
				Status:       persistence.TaskInProgress,
				Description:  r.Description,
				TargetCount:  r.TargetCount,
				RewardItems:  r.Rewards,
				DayAssigned:  day,
				DayLimit:     r.DayLimit,
				DialogueNode: r.CompleteNode,
			}
			if err := live.InsertTask(ctx, &t); err != nil {
				return err
			}
			created = append(created, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range created {
		m.log.Info("task assigned", "task", t.TaskName, "day", day, "deadline", t.DayAssigned+t.DayLimit)
		if node := m.rules[t.TaskName].StartNode; node != "" {
			m.notifier.Start(node)
		}
	}
	return created, nil
}

// UpdateProgress advances the in-progress task name by delta, capped at its
// target. Reaching the target completes the task and deposits its rewards in
// the same transaction.
func (m *Manager) UpdateProgress(ctx context.Context, name string, delta int) (*persistence.PlayerTask, error) {
	if delta <= 0 {
		return nil, gameerr.New(gameerr.Invalid, "progress delta %d", delta)
	}
	var task *persistence.PlayerTask
	var completed bool
	err := m.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		t, err := persistence.First[persistence.PlayerTask](ctx, live,
			"task_name = ? AND status = ?", name, persistence.TaskInProgress)
		if err != nil {
			return err
		}
		if t == nil {
			return gameerr.New(gameerr.NotFound, "no task %q in progress", name)
		}

		t.CurrentProgress = min(t.CurrentProgress+delta, t.TargetCount)
		if t.CurrentProgress >= t.TargetCount {
			t.Status = persistence.TaskCompleted
			completed = true
			rewards, err := inventory.ParseStacks(t.RewardItems)
			if err != nil {
				return err
			}
			if err := inventory.Deposit(ctx, live, rewards); err != nil {
				return err
			}
		}
		if err := live.UpdateTask(ctx, t); err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		m.log.Info("task completed", "task", task.TaskName, "rewards", task.RewardItems)
		if err := m.vars.Set(ctx, task.TaskName+"_completed", "true"); err != nil {
			m.log.Warn("task completion flag not saved", "task", task.TaskName, "error", err)
		}
		if task.DialogueNode != "" {
			m.notifier.Start(task.DialogueNode)
		}
	}
	return task, nil
}

// RecordHarvest advances every in-progress harvest task targeting cropType.
func (m *Manager) RecordHarvest(ctx context.Context, cropType string) {
	for _, name := range m.order {
		r := m.rules[name]
		if r.Type != TypeHarvest || r.Target != cropType {
			continue
		}
		if _, err := m.UpdateProgress(ctx, name, 1); err != nil && !gameerr.Is(err, gameerr.NotFound) {
			m.log.Warn("task progress failed", "task", name, "error", err)
		}
	}
}

// CheckFailure returns the first live task that is overdue on day, or nil.
// Registered failure callbacks are told about it.
func (m *Manager) CheckFailure(ctx context.Context, day int) (*persistence.PlayerTask, error) {
	tasks, err := m.db.Live().Tasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if !t.Overdue(day) {
			continue
		}
		m.log.Warn("task failed", "task", t.TaskName, "day", day, "deadline", t.DayAssigned+t.DayLimit)
		for _, fn := range m.failed {
			fn(ctx, t)
		}
		return &t, nil
	}
	return nil, nil
}

// Active returns the live tasks still in progress.
func (m *Manager) Active(ctx context.Context) ([]persistence.PlayerTask, error) {
	return m.db.Live().TasksWithStatus(ctx, persistence.TaskInProgress)
}

// All returns every live task.
func (m *Manager) All(ctx context.Context) ([]persistence.PlayerTask, error) {
	return m.db.Live().Tasks(ctx)
}
