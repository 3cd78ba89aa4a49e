package repo

import (
	"context"
	"database/sql"

	"kaizen/internal/domain"
)

// ListHistory returns a goal's workflow history in insertion order.
func (r Repo) ListHistory(ctx context.Context, goalID string) ([]domain.WorkflowHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,goal_id,ts,user_id,user_name,action,payload_json FROM workflow_history WHERE goal_id=? ORDER BY id ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkflowHistoryEntry
	for rows.Next() {
		var (
			e       domain.WorkflowHistoryEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.GoalID, &e.TS, &e.UserID, &e.UserName, &e.Action, &payload); err != nil {
			return nil, err
		}
		action, err := domain.DecodeAction(e.Action, []byte(payload))
		if err != nil {
			return nil, err
		}
		e.Payload = action
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestHistoryEntry returns the most recently appended entry for a goal.
func (r Repo) LatestHistoryEntry(ctx context.Context, goalID string) (domain.WorkflowHistoryEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,goal_id,ts,user_id,user_name,action,payload_json FROM workflow_history WHERE goal_id=? ORDER BY id DESC LIMIT 1`, goalID)
	var (
		e       domain.WorkflowHistoryEntry
		payload string
	)
	err := row.Scan(&e.ID, &e.GoalID, &e.TS, &e.UserID, &e.UserName, &e.Action, &payload)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	action, err := domain.DecodeAction(e.Action, []byte(payload))
	if err != nil {
		return e, err
	}
	e.Payload = action
	return e, nil
}
