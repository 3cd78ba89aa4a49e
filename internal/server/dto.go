package server

import (
	"kaizen/internal/domain"
)

// Request payloads

type CreateGoalRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Department  *string `json:"department,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date-time"`
	TargetDate  *string `json:"target_date,omitempty" format:"date-time"`
}

type TransitionRequest struct {
	Status        string  `json:"status" enum:"plan,do,check,act,on_hold,completed,cancelled"`
	Comment       *string `json:"comment,omitempty"`
	NewAssigneeID *string `json:"new_assignee_id,omitempty"`
}

type AssignRequest struct {
	UserIDs []string `json:"user_ids"`
}

type CompleteAssignmentRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

type SetDatesRequest struct {
	StartDate  *string `json:"start_date,omitempty" format:"date-time"`
	TargetDate *string `json:"target_date,omitempty" format:"date-time"`
}

type CreateGoalTaskRequest struct {
	ID         *string `json:"id,omitempty"`
	Phase      string  `json:"pdca_phase" enum:"plan,do,check,act"`
	Title      string  `json:"title"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type UpdateGoalTaskRequest struct {
	Status string `json:"status" enum:"pending,in_progress,completed,cancelled"`
}

type UpsertUserRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role" enum:"admin,head,manager,employee"`
	Department string `json:"department,omitempty"`
}

type GrantRequest struct {
	UserID     string `json:"user_id"`
	Department string `json:"department"`
}

// Response payloads

type GoalResponse struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Status            domain.Status   `json:"status" enum:"plan,do,check,act,on_hold,completed,cancelled"`
	PreviousStatus    *domain.Status  `json:"previous_status,omitempty"`
	OwnerID           string          `json:"owner_id"`
	Department        string          `json:"department,omitempty"`
	CurrentAssigneeID *string         `json:"current_assignee_id,omitempty"`
	StartDate         *string         `json:"start_date,omitempty" format:"date-time"`
	TargetDate        *string         `json:"target_date,omitempty" format:"date-time"`
	Version           int64           `json:"version"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
	UpdatedAt         string          `json:"updated_at" format:"date-time"`
	Assignees         []domain.GoalAssignee `json:"assignees,omitempty"`
}

type HistoryEntryResponse struct {
	ID       int64             `json:"id"`
	GoalID   string            `json:"goal_id"`
	TS       string            `json:"ts" format:"date-time"`
	UserID   string            `json:"user_id"`
	UserName string            `json:"user_name"`
	Action   domain.ActionKind `json:"action"`
	Payload  any               `json:"payload"`
}

func goalResponse(g domain.Goal) GoalResponse {
	return GoalResponse{
		ID:                g.ID,
		Title:             g.Title,
		Description:       g.Description,
		Status:            g.Status,
		PreviousStatus:    g.PreviousStatus,
		OwnerID:           g.OwnerID,
		Department:        g.Department,
		CurrentAssigneeID: g.CurrentAssigneeID,
		StartDate:         g.StartDate,
		TargetDate:        g.TargetDate,
		Version:           g.Version,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
	}
}

func mapGoals(items []domain.Goal) []GoalResponse {
	out := make([]GoalResponse, 0, len(items))
	for _, g := range items {
		out = append(out, goalResponse(g))
	}
	return out
}

func historyResponse(items []domain.WorkflowHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, HistoryEntryResponse{
			ID:       e.ID,
			GoalID:   e.GoalID,
			TS:       e.TS,
			UserID:   e.UserID,
			UserName: e.UserName,
			Action:   e.Action,
			Payload:  e.Payload,
		})
	}
	return out
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
