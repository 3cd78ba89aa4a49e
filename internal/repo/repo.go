package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"kaizen/internal/domain"
)

// Repo is the SQL data-access layer. Mutations that belong to a workflow
// commit take a *sql.Tx so the engine can keep "state change + history
// append" in a single transaction.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals an optimistic-concurrency collision: the goal's
	// version moved between snapshot and commit.
	ErrConflict = errors.New("goal modified concurrently")
)

// GoalSnapshot is the engine's read model for one transition request: the
// goal row plus its assignee rows, all as of one point in time.
type GoalSnapshot struct {
	Goal      domain.Goal
	Assignees []domain.GoalAssignee
}

func (s GoalSnapshot) AssigneeIDs() []string {
	ids := make([]string, 0, len(s.Assignees))
	for _, a := range s.Assignees {
		ids = append(ids, a.UserID)
	}
	return ids
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertGoal(ctx context.Context, tx *sql.Tx, g domain.Goal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO goals(id,title,description,status,previous_status,owner_id,department,current_assignee_id,start_date,target_date,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		g.ID, g.Title, nullable(g.Description), string(g.Status), statusPtr(g.PreviousStatus), g.OwnerID, g.Department,
		nullableStringPtr(g.CurrentAssigneeID), nullableStringPtr(g.StartDate), nullableStringPtr(g.TargetDate),
		g.Version, g.CreatedAt, g.UpdatedAt)
	return err
}

func statusPtr(s *domain.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

const goalColumns = `id,title,COALESCE(description,''),status,previous_status,owner_id,department,current_assignee_id,start_date,target_date,version,created_at,updated_at`

func scanGoal(scan func(...any) error) (domain.Goal, error) {
	var g domain.Goal
	var prev, assignee, start, target sql.NullString
	err := scan(&g.ID, &g.Title, &g.Description, &g.Status, &prev, &g.OwnerID, &g.Department, &assignee, &start, &target, &g.Version, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if prev.Valid {
		s := domain.Status(prev.String)
		g.PreviousStatus = &s
	}
	if assignee.Valid {
		g.CurrentAssigneeID = &assignee.String
	}
	if start.Valid {
		g.StartDate = &start.String
	}
	if target.Valid {
		g.TargetDate = &target.String
	}
	return g, nil
}

func (r Repo) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id=?`, id)
	return scanGoal(row.Scan)
}

// GetGoalSnapshot loads the goal and its assignee rows for a workflow request.
func (r Repo) GetGoalSnapshot(ctx context.Context, id string) (GoalSnapshot, error) {
	g, err := r.GetGoal(ctx, id)
	if err != nil {
		return GoalSnapshot{}, err
	}
	assignees, err := r.ListAssignees(ctx, id)
	if err != nil {
		return GoalSnapshot{}, err
	}
	return GoalSnapshot{Goal: g, Assignees: assignees}, nil
}

type GoalFilters struct {
	Status     domain.Status
	Department string
	OwnerID    string
	Limit      int
	CursorID   string
}

func (r Repo) ListGoals(ctx context.Context, f GoalFilters) ([]domain.Goal, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Department != "" {
		clauses = append(clauses, "department=?")
		args = append(args, f.Department)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.CursorID != "" {
		clauses = append(clauses, "id>?")
		args = append(args, f.CursorID)
	}
	query := `SELECT ` + goalColumns + ` FROM goals WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// CommitGoal writes the goal's mutable workflow state, guarded by the
// optimistic lock: the UPDATE only matches when the stored version still
// equals expectedVersion. Zero rows affected means another writer got there
// first and the caller receives ErrConflict.
func (r Repo) CommitGoal(ctx context.Context, tx *sql.Tx, g domain.Goal, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE goals SET status=?, previous_status=?, current_assignee_id=?, start_date=?, target_date=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		string(g.Status), statusPtr(g.PreviousStatus), nullableStringPtr(g.CurrentAssigneeID),
		nullableStringPtr(g.StartDate), nullableStringPtr(g.TargetDate), g.UpdatedAt, g.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,role,department,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role, department=excluded.department`,
		u.ID, u.Name, string(u.Role), u.Department, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,role,department,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.Department, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,role,department,created_at FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Department, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
