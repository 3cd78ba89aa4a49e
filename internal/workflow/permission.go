package workflow

import (
	"kaizen/internal/domain"
)

// PermissionFacts is a snapshot of everything the permission evaluator needs.
// The caller assembles it from stored state; the evaluator itself never reads
// storage, which keeps it unit-testable without I/O.
type PermissionFacts struct {
	ActorID         string
	ActorRole       domain.Role
	ActorDepartment string
	// DepartmentGrants are the departments the actor holds an explicit
	// transition grant for.
	DepartmentGrants map[string]bool

	OwnerID        string
	GoalDepartment string
	// AssigneeIDs are the goal's current GoalAssignee rows.
	AssigneeIDs []string
	// LegacyAssigneeID is the goal's single-assignee field, consulted only
	// when AssigneeIDs is empty (migration compatibility shim).
	LegacyAssigneeID string
}

// assignees resolves the effective assignee set, applying the legacy
// single-assignee fallback when the assignee table is empty.
func (f PermissionFacts) assignees() []string {
	if len(f.AssigneeIDs) > 0 {
		return f.AssigneeIDs
	}
	if f.LegacyAssigneeID != "" {
		return []string{f.LegacyAssigneeID}
	}
	return nil
}

func (f PermissionFacts) isAssignee(userID string) bool {
	for _, id := range f.assignees() {
		if id == userID {
			return true
		}
	}
	return false
}

// CanTransition decides whether the actor may change the goal's status.
// First match wins: admin, department grant, owner, assignee. The decision is
// transition-agnostic: it does not vary by target status.
func (f PermissionFacts) CanTransition() bool {
	switch {
	case f.ActorRole == domain.RoleAdmin:
		return true
	case f.DepartmentGrants[f.GoalDepartment]:
		return true
	case f.ActorID != "" && f.ActorID == f.OwnerID:
		return true
	case f.isAssignee(f.ActorID):
		return true
	}
	return false
}

// CanCompleteAssignment decides the narrower right to mark an assignee's own
// slice of the goal complete: the assignee themself, an admin, or a head with
// department oversight of the goal.
func (f PermissionFacts) CanCompleteAssignment(assigneeUserID string) bool {
	switch {
	case f.ActorID != "" && f.ActorID == assigneeUserID:
		return true
	case f.ActorRole == domain.RoleAdmin:
		return true
	case f.ActorRole == domain.RoleHead &&
		(f.DepartmentGrants[f.GoalDepartment] || f.ActorDepartment == f.GoalDepartment):
		return true
	}
	return false
}

// ForbiddenError indicates a failed permission check. The message stays
// generic on purpose: it must not leak department or role internals.
type ForbiddenError struct{}

func (ForbiddenError) Error() string {
	return "no permission to perform this action"
}
