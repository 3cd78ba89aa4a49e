// Package engine orchestrates the goal workflow: transition legality,
// permission evaluation, phase-completion gating, assignee completion, and
// the append-only workflow history, all committed under an optimistic lock.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kaizen/internal/domain"
	"kaizen/internal/history"
	"kaizen/internal/metrics"
	"kaizen/internal/notify"
	"kaizen/internal/repo"
	"kaizen/internal/workflow"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Sink    notify.Sink
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time

	// beforeCommit, when set, runs after validation and before the goal
	// commit.
	beforeCommit func()
}

func New(db *sql.DB, logger zerolog.Logger) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{DB: db},
		Sink:    notify.LogSink{Logger: logger},
		Metrics: metrics.New(),
		Logger:  logger,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// actor resolves the acting user. Unknown actors degrade to an employee with
// the id as display name so history stays writable for externally
// authenticated principals.
func (e Engine) actor(ctx context.Context, actorID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{ID: actorID, Name: actorID, Role: domain.RoleEmployee}, nil
	}
	if err != nil {
		return domain.User{}, storeErr(err)
	}
	return u, nil
}

// facts assembles the permission snapshot for one goal and actor.
func (e Engine) facts(ctx context.Context, snap repo.GoalSnapshot, actor domain.User) (workflow.PermissionFacts, error) {
	grants, err := e.Repo.DepartmentGrantsOf(ctx, actor.ID)
	if err != nil {
		return workflow.PermissionFacts{}, storeErr(err)
	}
	legacy := ""
	if snap.Goal.CurrentAssigneeID != nil {
		legacy = *snap.Goal.CurrentAssigneeID
	}
	return workflow.PermissionFacts{
		ActorID:          actor.ID,
		ActorRole:        actor.Role,
		ActorDepartment:  actor.Department,
		DepartmentGrants: grants,
		OwnerID:          snap.Goal.OwnerID,
		GoalDepartment:   snap.Goal.Department,
		AssigneeIDs:      snap.AssigneeIDs(),
		LegacyAssigneeID: legacy,
	}, nil
}

func (e Engine) fail(err error) error {
	if e.Metrics != nil {
		e.Metrics.TransitionFailures.WithLabelValues(errKind(err)).Inc()
	}
	return err
}

// notifyCommitted delivers a committed event to the sink. Failures are logged
// and swallowed: the transition is the source of truth, notification is
// best-effort.
func (e Engine) notifyCommitted(ctx context.Context, goal domain.Goal, entry domain.WorkflowHistoryEntry, actorID string) {
	if e.Sink == nil {
		return
	}
	if err := e.Sink.Notify(ctx, goal, entry, actorID); err != nil {
		if e.Metrics != nil {
			e.Metrics.NotifyFailures.Inc()
		}
		e.Logger.Warn().Err(err).Str("goal_id", goal.ID).Msg("notification delivery failed")
	}
}

// GoalCreateOptions are parameters for creating a goal.
type GoalCreateOptions struct {
	ID          string
	Title       string
	Description string
	Department  string
	OwnerID     string
	StartDate   string
	TargetDate  string
}

// CreateGoal creates a goal in the plan status with the owner auto-assigned.
func (e Engine) CreateGoal(ctx context.Context, opts GoalCreateOptions) (domain.Goal, error) {
	if opts.Title == "" {
		return domain.Goal{}, errors.New("title is required")
	}
	if opts.OwnerID == "" {
		return domain.Goal{}, errors.New("owner is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	owner := opts.OwnerID
	g := domain.Goal{
		ID:                id,
		Title:             opts.Title,
		Description:       opts.Description,
		Status:            domain.StatusPlan,
		OwnerID:           owner,
		Department:        opts.Department,
		CurrentAssigneeID: &owner,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if opts.StartDate != "" {
		g.StartDate = &opts.StartDate
	}
	if opts.TargetDate != "" {
		g.TargetDate = &opts.TargetDate
	}
	actor, err := e.actor(ctx, owner)
	if err != nil {
		return domain.Goal{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, storeErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertGoal(ctx, tx, g); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	if err := e.Repo.InsertAssignee(ctx, tx, domain.GoalAssignee{
		GoalID:     g.ID,
		UserID:     owner,
		AssignedBy: owner,
		AssignedAt: now,
		TaskStatus: domain.AssignmentPending,
	}); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	if err := e.History.Append(ctx, tx, g.ID, now, actor.ID, actor.Name, domain.Assignment{UserIDs: []string{owner}}); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	return g, nil
}

// TransitionRequest asks to move a goal to a target status, optionally
// reassigning the current assignee in the same commit.
type TransitionRequest struct {
	GoalID        string
	Target        domain.Status
	ActorID       string
	Comment       string
	NewAssigneeID string
}

// RequestTransition validates, authorizes, gates, and commits one status
// change. The three validation steps run in order on a point-in-time
// snapshot; the commit re-checks the goal's version and fails with
// repo.ErrConflict when another writer got there first.
func (e Engine) RequestTransition(ctx context.Context, req TransitionRequest) (domain.Goal, error) {
	snap, err := e.Repo.GetGoalSnapshot(ctx, req.GoalID)
	if err != nil {
		return domain.Goal{}, e.fail(storeErr(err))
	}
	from := snap.Goal.Status

	if !workflow.Legal(from, req.Target) {
		return domain.Goal{}, e.fail(workflow.IllegalTransitionError{From: from, To: req.Target})
	}

	actor, err := e.actor(ctx, req.ActorID)
	if err != nil {
		return domain.Goal{}, e.fail(err)
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return domain.Goal{}, e.fail(err)
	}
	if !facts.CanTransition() {
		return domain.Goal{}, e.fail(workflow.ForbiddenError{})
	}

	// The phase gate applies to forward progressions only. Pauses, resumes
	// and backward moves must never be blocked by open work, otherwise a
	// stuck goal could not be recovered.
	if workflow.ForwardProgression(from, req.Target) {
		blocking, err := e.Repo.IncompleteTasksForPhase(ctx, req.GoalID, workflow.GatePhase(from))
		if err != nil {
			return domain.Goal{}, e.fail(storeErr(err))
		}
		if len(blocking) > 0 {
			return domain.Goal{}, e.fail(PhaseIncompleteError{Phase: workflow.GatePhase(from), Tasks: blocking})
		}
	}

	g := snap.Goal
	g.Status = req.Target
	if req.Target == domain.StatusOnHold {
		prev := from
		g.PreviousStatus = &prev
	} else {
		g.PreviousStatus = nil
	}
	now := e.nowString()
	g.UpdatedAt = now
	if req.NewAssigneeID != "" {
		assignee := req.NewAssigneeID
		g.CurrentAssigneeID = &assignee
	}

	if e.beforeCommit != nil {
		e.beforeCommit()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, e.fail(storeErr(err))
	}
	defer tx.Rollback()

	if err := e.Repo.CommitGoal(ctx, tx, g, snap.Goal.Version); err != nil {
		return domain.Goal{}, e.fail(storeErr(err))
	}
	change := domain.StatusChange{
		From:           from,
		To:             req.Target,
		Comment:        req.Comment,
		PreviousStatus: g.PreviousStatus,
	}
	if err := e.History.Append(ctx, tx, g.ID, now, actor.ID, actor.Name, change); err != nil {
		return domain.Goal{}, e.fail(storeErr(err))
	}
	if req.NewAssigneeID != "" {
		if err := e.Repo.InsertAssignee(ctx, tx, domain.GoalAssignee{
			GoalID:     g.ID,
			UserID:     req.NewAssigneeID,
			AssignedBy: actor.ID,
			AssignedAt: now,
			TaskStatus: domain.AssignmentPending,
		}); err != nil {
			return domain.Goal{}, e.fail(storeErr(err))
		}
		if err := e.History.Append(ctx, tx, g.ID, now, actor.ID, actor.Name, domain.Assignment{UserIDs: []string{req.NewAssigneeID}}); err != nil {
			return domain.Goal{}, e.fail(storeErr(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, e.fail(storeErr(err))
	}
	g.Version = snap.Goal.Version + 1

	if e.Metrics != nil {
		e.Metrics.TransitionsTotal.WithLabelValues(string(from), string(req.Target)).Inc()
	}
	entry := domain.WorkflowHistoryEntry{
		GoalID:   g.ID,
		TS:       now,
		UserID:   actor.ID,
		UserName: actor.Name,
		Action:   change.Kind(),
		Payload:  change,
	}
	e.notifyCommitted(ctx, g, entry, actor.ID)
	return g, nil
}

// CompleteAssignment marks one assignee's slice of the goal complete. It is
// idempotent: completing an already-completed assignment is a no-op success
// and appends no duplicate history. Completion never advances the goal's
// phase; progression stays a deliberate human action.
func (e Engine) CompleteAssignment(ctx context.Context, goalID, assigneeUserID, actorID, notes string) (domain.GoalAssignee, error) {
	snap, err := e.Repo.GetGoalSnapshot(ctx, goalID)
	if err != nil {
		return domain.GoalAssignee{}, storeErr(err)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.GoalAssignee{}, err
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return domain.GoalAssignee{}, err
	}
	if !facts.CanCompleteAssignment(assigneeUserID) {
		return domain.GoalAssignee{}, workflow.ForbiddenError{}
	}

	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GoalAssignee{}, storeErr(err)
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssignee(ctx, goalID, assigneeUserID)
	if errors.Is(err, repo.ErrNotFound) {
		// Legacy single-assignee fallback: goals migrated without assignee
		// rows still carry current_assignee_id. Materialize the row before
		// completing it.
		if len(snap.Assignees) != 0 || snap.Goal.CurrentAssigneeID == nil || *snap.Goal.CurrentAssigneeID != assigneeUserID {
			return domain.GoalAssignee{}, repo.ErrNotFound
		}
		a = domain.GoalAssignee{
			GoalID:     goalID,
			UserID:     assigneeUserID,
			AssignedBy: snap.Goal.OwnerID,
			AssignedAt: now,
			TaskStatus: domain.AssignmentPending,
		}
		if err := e.Repo.InsertAssignee(ctx, tx, a); err != nil {
			return domain.GoalAssignee{}, storeErr(err)
		}
	} else if err != nil {
		return domain.GoalAssignee{}, storeErr(err)
	}

	changed, err := e.Repo.CompleteAssignee(ctx, tx, goalID, assigneeUserID, now, notes)
	if err != nil {
		return domain.GoalAssignee{}, storeErr(err)
	}
	if !changed {
		// Already completed; keep the original completion untouched.
		return a, tx.Commit()
	}
	completed := domain.TaskCompletedAction{Notes: notes}
	if err := e.History.Append(ctx, tx, goalID, now, actor.ID, actor.Name, completed); err != nil {
		return domain.GoalAssignee{}, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.GoalAssignee{}, storeErr(err)
	}

	a.TaskStatus = domain.AssignmentCompleted
	a.CompletedAt = &now
	a.CompletionNotes = notes
	if e.Metrics != nil {
		e.Metrics.AssignmentCompletions.Inc()
	}
	e.notifyCommitted(ctx, snap.Goal, domain.WorkflowHistoryEntry{
		GoalID:   goalID,
		TS:       now,
		UserID:   actor.ID,
		UserName: actor.Name,
		Action:   completed.Kind(),
		Payload:  completed,
	}, actor.ID)
	return a, nil
}

// Assign adds assignees to a goal. Rows accumulate: earlier assignees stay
// recorded even after reassignment.
func (e Engine) Assign(ctx context.Context, goalID string, userIDs []string, actorID string) (domain.Goal, error) {
	if len(userIDs) == 0 {
		return domain.Goal{}, errors.New("at least one user is required")
	}
	snap, err := e.Repo.GetGoalSnapshot(ctx, goalID)
	if err != nil {
		return domain.Goal{}, storeErr(err)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Goal{}, err
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return domain.Goal{}, err
	}
	if !facts.CanTransition() {
		return domain.Goal{}, workflow.ForbiddenError{}
	}

	now := e.nowString()
	g := snap.Goal
	assignee := userIDs[0]
	g.CurrentAssigneeID = &assignee
	g.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, storeErr(err)
	}
	defer tx.Rollback()
	for _, userID := range userIDs {
		if err := e.Repo.InsertAssignee(ctx, tx, domain.GoalAssignee{
			GoalID:     goalID,
			UserID:     userID,
			AssignedBy: actor.ID,
			AssignedAt: now,
			TaskStatus: domain.AssignmentPending,
		}); err != nil {
			return domain.Goal{}, storeErr(err)
		}
	}
	if err := e.Repo.CommitGoal(ctx, tx, g, snap.Goal.Version); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	assigned := domain.Assignment{UserIDs: userIDs}
	if err := e.History.Append(ctx, tx, goalID, now, actor.ID, actor.Name, assigned); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	g.Version = snap.Goal.Version + 1
	e.notifyCommitted(ctx, g, domain.WorkflowHistoryEntry{
		GoalID:   goalID,
		TS:       now,
		UserID:   actor.ID,
		UserName: actor.Name,
		Action:   assigned.Kind(),
		Payload:  assigned,
	}, actor.ID)
	return g, nil
}

// AddComment appends a comment entry to the goal's history.
func (e Engine) AddComment(ctx context.Context, goalID, actorID, text string) error {
	if text == "" {
		return errors.New("comment text is required")
	}
	snap, err := e.Repo.GetGoalSnapshot(ctx, goalID)
	if err != nil {
		return storeErr(err)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return err
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return err
	}
	if !facts.CanTransition() {
		return workflow.ForbiddenError{}
	}
	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()
	comment := domain.Comment{Text: text}
	if err := e.History.Append(ctx, tx, goalID, now, actor.ID, actor.Name, comment); err != nil {
		return storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	e.notifyCommitted(ctx, snap.Goal, domain.WorkflowHistoryEntry{
		GoalID:   goalID,
		TS:       now,
		UserID:   actor.ID,
		UserName: actor.Name,
		Action:   comment.Kind(),
		Payload:  comment,
	}, actor.ID)
	return nil
}

// SetDates sets the goal's start and/or target date, recording the matching
// history entries. Changing an existing target date is recorded as an update
// rather than an initial set.
func (e Engine) SetDates(ctx context.Context, goalID, actorID string, startDate, targetDate *string) (domain.Goal, error) {
	if startDate == nil && targetDate == nil {
		return domain.Goal{}, errors.New("no dates provided")
	}
	snap, err := e.Repo.GetGoalSnapshot(ctx, goalID)
	if err != nil {
		return domain.Goal{}, storeErr(err)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Goal{}, err
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return domain.Goal{}, err
	}
	if !facts.CanTransition() {
		return domain.Goal{}, workflow.ForbiddenError{}
	}

	g := snap.Goal
	now := e.nowString()
	g.UpdatedAt = now
	var actions []domain.Action
	if startDate != nil {
		g.StartDate = startDate
		actions = append(actions, domain.StartDateSet{Date: *startDate})
	}
	if targetDate != nil {
		if snap.Goal.TargetDate == nil {
			actions = append(actions, domain.TargetDateSet{Date: *targetDate})
		} else {
			actions = append(actions, domain.TargetDateUpdated{Previous: *snap.Goal.TargetDate, Date: *targetDate})
		}
		g.TargetDate = targetDate
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, storeErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.CommitGoal(ctx, tx, g, snap.Goal.Version); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	for _, a := range actions {
		if err := e.History.Append(ctx, tx, goalID, now, actor.ID, actor.Name, a); err != nil {
			return domain.Goal{}, storeErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, storeErr(err)
	}
	g.Version = snap.Goal.Version + 1
	for _, a := range actions {
		e.notifyCommitted(ctx, g, domain.WorkflowHistoryEntry{
			GoalID:   goalID,
			TS:       now,
			UserID:   actor.ID,
			UserName: actor.Name,
			Action:   a.Kind(),
			Payload:  a,
		}, actor.ID)
	}
	return g, nil
}

// TaskCreateOptions are parameters for creating a phase task.
type TaskCreateOptions struct {
	ID         string
	GoalID     string
	Phase      domain.Phase
	Title      string
	AssigneeID string
	ActorID    string
}

// CreateTask adds a unit of work to a goal's PDCA phase.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.GoalTask, error) {
	if opts.Title == "" {
		return domain.GoalTask{}, errors.New("title is required")
	}
	if !domain.ValidPhase(opts.Phase) {
		return domain.GoalTask{}, fmt.Errorf("invalid pdca phase %q", opts.Phase)
	}
	snap, err := e.Repo.GetGoalSnapshot(ctx, opts.GoalID)
	if err != nil {
		return domain.GoalTask{}, storeErr(err)
	}
	actor, err := e.actor(ctx, opts.ActorID)
	if err != nil {
		return domain.GoalTask{}, err
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return domain.GoalTask{}, err
	}
	if !facts.CanTransition() {
		return domain.GoalTask{}, workflow.ForbiddenError{}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	t := domain.GoalTask{
		ID:        id,
		GoalID:    opts.GoalID,
		Phase:     opts.Phase,
		Title:     opts.Title,
		Status:    domain.TaskPending,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.AssigneeID != "" {
		t.AssigneeID = &opts.AssigneeID
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.GoalTask{}, storeErr(err)
	}
	return t, nil
}

// UpdateTaskStatus moves a phase task between its statuses. Cancelled is a
// terminal non-completion state; nothing moves out of it.
func (e Engine) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, actorID string) (domain.GoalTask, error) {
	switch status {
	case domain.TaskPending, domain.TaskInProgress, domain.TaskCompleted, domain.TaskCancelled:
	default:
		return domain.GoalTask{}, fmt.Errorf("invalid task status %q", status)
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.GoalTask{}, storeErr(err)
	}
	if t.Status == domain.TaskCancelled && status != domain.TaskCancelled {
		return domain.GoalTask{}, fmt.Errorf("invalid task status transition %s -> %s", t.Status, status)
	}
	snap, err := e.Repo.GetGoalSnapshot(ctx, t.GoalID)
	if err != nil {
		return domain.GoalTask{}, storeErr(err)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.GoalTask{}, err
	}
	facts, err := e.facts(ctx, snap, actor)
	if err != nil {
		return domain.GoalTask{}, err
	}
	taskAssignee := t.AssigneeID != nil && *t.AssigneeID == actor.ID
	if !taskAssignee && !facts.CanTransition() {
		return domain.GoalTask{}, workflow.ForbiddenError{}
	}
	now := e.nowString()
	t.Status = status
	t.UpdatedAt = now
	if status == domain.TaskCompleted {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
	if err := e.Repo.UpdateTaskStatus(ctx, t); err != nil {
		return domain.GoalTask{}, storeErr(err)
	}
	return t, nil
}
