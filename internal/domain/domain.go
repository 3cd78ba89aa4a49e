package domain

// Status is a goal's PDCA lifecycle state.
type Status string

const (
	StatusPlan      Status = "plan"
	StatusDo        Status = "do"
	StatusCheck     Status = "check"
	StatusAct       Status = "act"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are legal from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Phase is one of the four working phases a task belongs to.
type Phase string

const (
	PhasePlan  Phase = "plan"
	PhaseDo    Phase = "do"
	PhaseCheck Phase = "check"
	PhaseAct   Phase = "act"
)

// ValidPhase reports whether p names a working phase.
func ValidPhase(p Phase) bool {
	switch p {
	case PhasePlan, PhaseDo, PhaseCheck, PhaseAct:
		return true
	}
	return false
}

// Role is an actor's system-wide role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHead     Role = "head"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
)

type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       Role   `json:"role" enum:"admin,head,manager,employee"`
	Department string `json:"department"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Goal is the aggregate root of the workflow engine. Version implements the
// optimistic lock: every committed change increments it, and a commit against
// a stale version fails with a conflict.
type Goal struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status" enum:"plan,do,check,act,on_hold,completed,cancelled"`
	// PreviousStatus is set while Status is on_hold and records where to resume.
	PreviousStatus *Status `json:"previous_status,omitempty"`
	OwnerID        string  `json:"owner_id"`
	Department     string  `json:"department"`
	// CurrentAssigneeID is the legacy single-assignee field, read as a fallback
	// only when the goal has no GoalAssignee rows.
	//
	// Deprecated: the assignee table is the source of truth; this is kept in
	// sync as a migration compatibility shim.
	CurrentAssigneeID *string `json:"current_assignee_id,omitempty"`
	StartDate         *string `json:"start_date,omitempty" format:"date-time"`
	TargetDate        *string `json:"target_date,omitempty" format:"date-time"`
	Version           int64   `json:"version"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

// GoalAssignee attaches a user to a goal. Rows are append-only while the goal
// exists: reassignment adds rows, it never deletes earlier ones.
type GoalAssignee struct {
	GoalID          string           `json:"goal_id"`
	UserID          string           `json:"user_id"`
	AssignedBy      string           `json:"assigned_by"`
	AssignedAt      string           `json:"assigned_at" format:"date-time"`
	TaskStatus      AssignmentStatus `json:"task_status" enum:"pending,completed"`
	CompletedAt     *string          `json:"completed_at,omitempty" format:"date-time"`
	CompletionNotes string           `json:"completion_notes,omitempty"`
}

// GoalTask is a unit of work scoped to a goal and a PDCA phase.
type GoalTask struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goal_id"`
	Phase       Phase      `json:"pdca_phase" enum:"plan,do,check,act"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status" enum:"pending,in_progress,completed,cancelled"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
}
