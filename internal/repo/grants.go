package repo

import (
	"context"
	"time"
)

// GrantDepartment gives a user transition rights over a department's goals.
func (r Repo) GrantDepartment(ctx context.Context, userID, department, grantedBy string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO department_grants(user_id, department, granted_by, created_at) VALUES (?,?,?,?)`,
		userID, department, grantedBy, now)
	return err
}

func (r Repo) RevokeDepartment(ctx context.Context, userID, department string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM department_grants WHERE user_id=? AND department=?`, userID, department)
	return err
}

// DepartmentGrantsOf returns the set of departments the user holds grants for.
func (r Repo) DepartmentGrantsOf(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT department FROM department_grants WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grants := map[string]bool{}
	for rows.Next() {
		var dept string
		if err := rows.Scan(&dept); err != nil {
			return nil, err
		}
		grants[dept] = true
	}
	return grants, rows.Err()
}
