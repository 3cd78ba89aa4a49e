package repo

import (
	"context"
	"database/sql"

	"kaizen/internal/domain"
)

const taskColumns = `id,goal_id,pdca_phase,title,status,assignee_id,created_by,created_at,updated_at,completed_at`

func scanTask(scan func(...any) error) (domain.GoalTask, error) {
	var t domain.GoalTask
	var assignee, completed sql.NullString
	err := scan(&t.ID, &t.GoalID, &t.Phase, &t.Title, &t.Status, &assignee, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if completed.Valid {
		t.CompletedAt = &completed.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.GoalTask) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO goal_tasks(id,goal_id,pdca_phase,title,status,assignee_id,created_by,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.GoalID, string(t.Phase), t.Title, string(t.Status), nullableStringPtr(t.AssigneeID),
		t.CreatedBy, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.GoalTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM goal_tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) UpdateTaskStatus(ctx context.Context, t domain.GoalTask) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE goal_tasks SET status=?, updated_at=?, completed_at=? WHERE id=?`,
		string(t.Status), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns a goal's tasks, optionally restricted to one phase.
func (r Repo) ListTasks(ctx context.Context, goalID string, phase domain.Phase) ([]domain.GoalTask, error) {
	query := `SELECT ` + taskColumns + ` FROM goal_tasks WHERE goal_id=?`
	args := []any{goalID}
	if phase != "" {
		query += ` AND pdca_phase=?`
		args = append(args, string(phase))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GoalTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// BlockingTask is an incomplete phase task with its assignee's display name,
// as surfaced in phase-gate failures.
type BlockingTask struct {
	TaskID       string `json:"task_id"`
	Title        string `json:"title"`
	AssigneeName string `json:"assignee_name,omitempty"`
}

// IncompleteTasksForPhase returns the goal's tasks in the given phase that
// are neither completed nor cancelled, in insertion order. Cancelled tasks
// are excluded rather than counted as blocking.
func (r Repo) IncompleteTasksForPhase(ctx context.Context, goalID string, phase domain.Phase) ([]BlockingTask, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT t.id, t.title, COALESCE(u.name, COALESCE(t.assignee_id, ''))
FROM goal_tasks t
LEFT JOIN users u ON u.id = t.assignee_id
WHERE t.goal_id=? AND t.pdca_phase=? AND t.status NOT IN ('completed','cancelled')
ORDER BY t.created_at ASC, t.id ASC`, goalID, string(phase))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []BlockingTask
	for rows.Next() {
		var b BlockingTask
		if err := rows.Scan(&b.TaskID, &b.Title, &b.AssigneeName); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
