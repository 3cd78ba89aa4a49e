package repo

import (
	"context"
	"database/sql"

	"kaizen/internal/domain"
)

const assigneeColumns = `goal_id,user_id,assigned_by,assigned_at,task_status,completed_at,COALESCE(completion_notes,'')`

func scanAssignee(scan func(...any) error) (domain.GoalAssignee, error) {
	var a domain.GoalAssignee
	var completed sql.NullString
	err := scan(&a.GoalID, &a.UserID, &a.AssignedBy, &a.AssignedAt, &a.TaskStatus, &completed, &a.CompletionNotes)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if completed.Valid {
		a.CompletedAt = &completed.String
	}
	return a, nil
}

// InsertAssignee adds an assignee row if none exists for (goal, user).
// Existing rows are left untouched so a reassignment never resets an earlier
// completion.
func (r Repo) InsertAssignee(ctx context.Context, tx *sql.Tx, a domain.GoalAssignee) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO goal_assignees(goal_id,user_id,assigned_by,assigned_at,task_status,completed_at,completion_notes)
VALUES (?,?,?,?,?,?,?)`,
		a.GoalID, a.UserID, a.AssignedBy, a.AssignedAt, string(a.TaskStatus),
		nullableStringPtr(a.CompletedAt), nullable(a.CompletionNotes))
	return err
}

func (r Repo) GetAssignee(ctx context.Context, goalID, userID string) (domain.GoalAssignee, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assigneeColumns+` FROM goal_assignees WHERE goal_id=? AND user_id=?`, goalID, userID)
	return scanAssignee(row.Scan)
}

func (r Repo) ListAssignees(ctx context.Context, goalID string) ([]domain.GoalAssignee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assigneeColumns+` FROM goal_assignees WHERE goal_id=? ORDER BY assigned_at ASC, user_id ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GoalAssignee
	for rows.Next() {
		a, err := scanAssignee(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CompleteAssignee flips the assignment to completed. The WHERE clause only
// matches pending rows; zero rows affected tells the engine the assignment
// was already completed (idempotent no-op) rather than an error.
func (r Repo) CompleteAssignee(ctx context.Context, tx *sql.Tx, goalID, userID, completedAt, notes string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE goal_assignees SET task_status='completed', completed_at=?, completion_notes=? WHERE goal_id=? AND user_id=? AND task_status='pending'`,
		completedAt, nullable(notes), goalID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AssignmentHistory returns every user id that has ever appeared as an
// assignee on the goal. Rows are never deleted, so this is simply the
// assignee table's user set.
func (r Repo) AssignmentHistory(ctx context.Context, goalID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM goal_assignees WHERE goal_id=? ORDER BY assigned_at ASC, user_id ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
