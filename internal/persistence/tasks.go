package persistence

import (
	"context"

	"github.com/talgya/farmstead/internal/gameerr"
)

// Tasks returns every task in the view's generation.
func (r *reader) Tasks(ctx context.Context) ([]PlayerTask, error) {
	return Select[PlayerTask](ctx, r, "")
}

// TasksWithStatus returns the generation's tasks in the given state.
func (r *reader) TasksWithStatus(ctx context.Context, status TaskStatus) ([]PlayerTask, error) {
	return Select[PlayerTask](ctx, r, "status = ?", status)
}

// TaskAssignment returns the task assigned as name on day, or nil.
func (r *reader) TaskAssignment(ctx context.Context, name string, day int) (*PlayerTask, error) {
	return First[PlayerTask](ctx, r, "task_name = ? AND day_assigned = ?", name, day)
}

func (r *reader) insertTask(ctx context.Context, t *PlayerTask) error {
	id, err := r.insert(ctx, "insert task",
		`INSERT INTO player_tasks (task_name, task_type, status, description, target_count, current_progress,
		 reward_items, day_assigned, day_limit, dialogue_node, generation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskName, t.TaskType, t.Status, t.Description, t.TargetCount, t.CurrentProgress,
		t.RewardItems, t.DayAssigned, t.DayLimit, t.DialogueNode, r.gen)
	if err != nil {
		return err
	}
	t.ID = id
	t.Generation = r.gen
	return nil
}

// InsertTask assigns t. Assigning the same name twice on one day is
// DuplicateLiveRow.
func (l *Live) InsertTask(ctx context.Context, t *PlayerTask) error {
	return l.insertTask(ctx, t)
}

// UpdateTask writes a live task's status and progress.
func (l *Live) UpdateTask(ctx context.Context, t *PlayerTask) error {
	res, err := l.exec(ctx, "update task",
		"UPDATE player_tasks SET status = ?, current_progress = ? WHERE id = ? AND generation = ?",
		t.Status, t.CurrentProgress, t.ID, LiveGeneration)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gameerr.New(gameerr.NotFound, "no live task %d", t.ID)
	}
	return nil
}
