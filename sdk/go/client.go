package kaizensdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Kaizen HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Goal represents the API goal model.
type Goal struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Status            string  `json:"status"`
	PreviousStatus    *string `json:"previous_status,omitempty"`
	OwnerID           string  `json:"owner_id"`
	Department        string  `json:"department,omitempty"`
	CurrentAssigneeID *string `json:"current_assignee_id,omitempty"`
	StartDate         *string `json:"start_date,omitempty"`
	TargetDate        *string `json:"target_date,omitempty"`
	Version           int64   `json:"version"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// Assignee represents one user working a goal.
type Assignee struct {
	GoalID          string  `json:"goal_id"`
	UserID          string  `json:"user_id"`
	AssignedBy      string  `json:"assigned_by"`
	AssignedAt      string  `json:"assigned_at"`
	TaskStatus      string  `json:"task_status"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	CompletionNotes string  `json:"completion_notes,omitempty"`
}

// Task represents a PDCA phase task.
type Task struct {
	ID          string  `json:"id"`
	GoalID      string  `json:"goal_id"`
	Phase       string  `json:"pdca_phase"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// HistoryEntry represents one workflow history record.
type HistoryEntry struct {
	ID       int64          `json:"id"`
	GoalID   string         `json:"goal_id"`
	TS       string         `json:"ts"`
	UserID   string         `json:"user_id"`
	UserName string         `json:"user_name"`
	Action   string         `json:"action"`
	Payload  map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateGoal creates a goal in the plan status.
func (c *Client) CreateGoal(ctx context.Context, title, department string) (Goal, error) {
	body := map[string]any{
		"title":      title,
		"department": department,
	}
	var resp Goal
	err := c.do(ctx, http.MethodPost, "v0/goals", body, &resp)
	return resp, err
}

// GetGoal fetches a goal by id.
func (c *Client) GetGoal(ctx context.Context, id string) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodGet, goalPath(id, ""), nil, &resp)
	return resp, err
}

// ListGoals lists goals, optionally filtered by status.
func (c *Client) ListGoals(ctx context.Context, status string) ([]Goal, error) {
	endpoint := "v0/goals"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Goal
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Transition requests a status transition.
func (c *Client) Transition(ctx context.Context, goalID, status, comment string) (Goal, error) {
	body := map[string]any{"status": status}
	if comment != "" {
		body["comment"] = comment
	}
	var resp Goal
	err := c.do(ctx, http.MethodPost, goalPath(goalID, "transition"), body, &resp)
	return resp, err
}

// Assign adds assignees to a goal.
func (c *Client) Assign(ctx context.Context, goalID string, userIDs []string) (Goal, error) {
	body := map[string]any{"user_ids": userIDs}
	var resp Goal
	err := c.do(ctx, http.MethodPost, goalPath(goalID, "assignees"), body, &resp)
	return resp, err
}

// CompleteAssignment marks an assignee's work on a goal complete.
func (c *Client) CompleteAssignment(ctx context.Context, goalID, userID, notes string) (Assignee, error) {
	body := map[string]any{}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Assignee
	endpoint := goalPath(goalID, fmt.Sprintf("assignees/%s/complete", url.PathEscape(userID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AddComment appends a comment to the goal's history.
func (c *Client) AddComment(ctx context.Context, goalID, text string) error {
	body := map[string]any{"comment": text}
	return c.do(ctx, http.MethodPost, goalPath(goalID, "comments"), body, nil)
}

// CreateTask adds a phase task to a goal.
func (c *Client) CreateTask(ctx context.Context, goalID, phase, title string) (Task, error) {
	body := map[string]any{
		"pdca_phase": phase,
		"title":      title,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, goalPath(goalID, "tasks"), body, &resp)
	return resp, err
}

// UpdateTask updates a phase task's status.
func (c *Client) UpdateTask(ctx context.Context, taskID, status string) (Task, error) {
	body := map[string]any{"status": status}
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// History returns a goal's workflow history in chronological order.
func (c *Client) History(ctx context.Context, goalID string) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	err := c.do(ctx, http.MethodGet, goalPath(goalID, "history"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func goalPath(goalID, p string) string {
	base := fmt.Sprintf("v0/goals/%s", url.PathEscape(goalID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
