package domain

import (
	"encoding/json"
	"fmt"
)

// ActionKind tags the variant of a workflow history entry.
type ActionKind string

const (
	ActionStatusChange      ActionKind = "status_change"
	ActionComment           ActionKind = "comment"
	ActionAssignment        ActionKind = "assignment"
	ActionTaskCompleted     ActionKind = "task_completed"
	ActionStartDateSet      ActionKind = "start_date_set"
	ActionTargetDateSet     ActionKind = "target_date_set"
	ActionTargetDateUpdated ActionKind = "target_date_updated"
)

// Action is the payload of one history entry. Each variant carries only the
// fields valid for its kind; there is no catch-all entry with optional fields.
type Action interface {
	Kind() ActionKind
}

type StatusChange struct {
	From    Status `json:"from_status"`
	To      Status `json:"to_status"`
	Comment string `json:"comment,omitempty"`
	// PreviousStatus records the suspended state when To is on_hold.
	PreviousStatus *Status `json:"previous_status,omitempty"`
}

func (StatusChange) Kind() ActionKind { return ActionStatusChange }

type Comment struct {
	Text string `json:"comment"`
}

func (Comment) Kind() ActionKind { return ActionComment }

type Assignment struct {
	UserIDs []string `json:"user_ids"`
}

func (Assignment) Kind() ActionKind { return ActionAssignment }

type TaskCompletedAction struct {
	Notes string `json:"notes,omitempty"`
}

func (TaskCompletedAction) Kind() ActionKind { return ActionTaskCompleted }

type StartDateSet struct {
	Date string `json:"date"`
}

func (StartDateSet) Kind() ActionKind { return ActionStartDateSet }

type TargetDateSet struct {
	Date string `json:"date"`
}

func (TargetDateSet) Kind() ActionKind { return ActionTargetDateSet }

type TargetDateUpdated struct {
	Previous string `json:"previous_date"`
	Date     string `json:"date"`
}

func (TargetDateUpdated) Kind() ActionKind { return ActionTargetDateUpdated }

// WorkflowHistoryEntry is one immutable, appended record of a state-changing
// event on a goal. Entries are never mutated or reordered after append;
// insertion order is chronological order.
type WorkflowHistoryEntry struct {
	ID       int64      `json:"id"`
	GoalID   string     `json:"goal_id"`
	TS       string     `json:"ts" format:"date-time"`
	UserID   string     `json:"user_id"`
	UserName string     `json:"user_name"`
	Action   ActionKind `json:"action" enum:"status_change,comment,assignment,task_completed,start_date_set,target_date_set,target_date_updated"`
	Payload  Action     `json:"payload"`
}

// DecodeAction reconstructs the typed payload from its stored JSON form.
func DecodeAction(kind ActionKind, payload []byte) (Action, error) {
	var (
		a   Action
		err error
	)
	switch kind {
	case ActionStatusChange:
		var v StatusChange
		err = json.Unmarshal(payload, &v)
		a = v
	case ActionComment:
		var v Comment
		err = json.Unmarshal(payload, &v)
		a = v
	case ActionAssignment:
		var v Assignment
		err = json.Unmarshal(payload, &v)
		a = v
	case ActionTaskCompleted:
		var v TaskCompletedAction
		err = json.Unmarshal(payload, &v)
		a = v
	case ActionStartDateSet:
		var v StartDateSet
		err = json.Unmarshal(payload, &v)
		a = v
	case ActionTargetDateSet:
		var v TargetDateSet
		err = json.Unmarshal(payload, &v)
		a = v
	case ActionTargetDateUpdated:
		var v TargetDateUpdated
		err = json.Unmarshal(payload, &v)
		a = v
	default:
		return nil, fmt.Errorf("unknown history action %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return a, nil
}
