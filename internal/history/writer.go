// Package history appends workflow history entries. The table is append-only:
// the sole write operation is an insert inside the caller's transaction, so
// entry order always matches commit order.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kaizen/internal/domain"
)

type Writer struct {
	DB *sql.DB
}

// Append records one entry inside tx. The timestamp comes from the caller so
// the entry carries the same clock as the mutation it describes. The payload
// is the action's typed variant serialized to JSON.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, goalID, ts, userID, userName string, action domain.Action) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal history payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO workflow_history(goal_id,ts,user_id,user_name,action,payload_json) VALUES (?,?,?,?,?,?)`,
		goalID, ts, userID, userName, string(action.Kind()), string(data))
	return err
}
