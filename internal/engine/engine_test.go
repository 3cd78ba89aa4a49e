package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kaizen/internal/db"
	"kaizen/internal/domain"
	"kaizen/internal/engine"
	"kaizen/internal/migrate"
	"kaizen/internal/repo"
	"kaizen/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	users := []domain.User{
		{ID: "admin", Name: "Admin", Role: domain.RoleAdmin},
		{ID: "owner", Name: "Owner", Role: domain.RoleEmployee, Department: "sales"},
		{ID: "worker", Name: "Worker", Role: domain.RoleEmployee, Department: "sales"},
		{ID: "head", Name: "Head", Role: domain.RoleHead, Department: "sales"},
		{ID: "outsider", Name: "Outsider", Role: domain.RoleEmployee, Department: "legal"},
	}
	for _, u := range users {
		if err := eng.Repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createGoal(t *testing.T, id string) domain.Goal {
	t.Helper()
	g, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		ID:         id,
		Title:      "Reduce onboarding time",
		Department: "sales",
		OwnerID:    "owner",
	})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return g
}

func (env testEnv) transition(t *testing.T, goalID string, target domain.Status, actor string) (domain.Goal, error) {
	t.Helper()
	return env.Engine.RequestTransition(env.Ctx, engine.TransitionRequest{
		GoalID:  goalID,
		Target:  target,
		ActorID: actor,
	})
}

func TestFullForwardLifecycle(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGoal(t, "g-1")
	if g.Status != domain.StatusPlan || g.Version != 1 {
		t.Fatalf("unexpected initial goal: %+v", g)
	}
	path := []domain.Status{domain.StatusDo, domain.StatusCheck, domain.StatusAct, domain.StatusCompleted}
	for i, target := range path {
		g2, err := env.transition(t, "g-1", target, "owner")
		if err != nil {
			t.Fatalf("to %s: %v", target, err)
		}
		if g2.Status != target {
			t.Fatalf("expected %s, got %s", target, g2.Status)
		}
		if g2.Version != int64(i+2) {
			t.Fatalf("expected version %d after %s, got %d", i+2, target, g2.Version)
		}
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	_, err := env.transition(t, "g-1", domain.StatusAct, "owner")
	var ite workflow.IllegalTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
	if ite.From != domain.StatusPlan || ite.To != domain.StatusAct {
		t.Fatalf("unexpected error detail: %+v", ite)
	}
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	env := newTestEnv(t)
	// A cancelled goal can only come from storage, never from a transition.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	now := "2025-06-01T00:00:00Z"
	if err := env.Engine.Repo.InsertGoal(env.Ctx, tx, domain.Goal{
		ID: "g-1", Title: "abandoned initiative", Status: domain.StatusCancelled,
		OwnerID: "owner", Department: "sales",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("insert goal: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	for _, target := range []domain.Status{domain.StatusPlan, domain.StatusDo, domain.StatusOnHold, domain.StatusCompleted} {
		_, err := env.transition(t, "g-1", target, "admin")
		var ite workflow.IllegalTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("cancelled -> %s: expected IllegalTransitionError, got %v", target, err)
		}
	}

	env.createGoal(t, "g-2")
	for _, target := range []domain.Status{domain.StatusDo, domain.StatusCheck, domain.StatusAct, domain.StatusCompleted} {
		if _, err := env.transition(t, "g-2", target, "owner"); err != nil {
			t.Fatalf("to %s: %v", target, err)
		}
	}
	for _, target := range []domain.Status{domain.StatusAct, domain.StatusOnHold, domain.StatusPlan} {
		_, err := env.transition(t, "g-2", target, "admin")
		var ite workflow.IllegalTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("completed -> %s: expected IllegalTransitionError, got %v", target, err)
		}
	}
}

func TestHistoryTimestampsUseEngineClock(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.transition(t, "g-1", domain.StatusDo, "owner"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := env.Engine.AddComment(env.Ctx, "g-1", "owner", "kickoff"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	entries, err := env.Engine.Repo.ListHistory(env.Ctx, "g-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.TS != "2025-06-01T00:00:00Z" {
			t.Fatalf("entry %d (%s): ts %s not from the injected clock", entry.ID, entry.Action, entry.TS)
		}
	}
}

func TestStoreFailureSurfacesAsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if err := env.Engine.DB.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := env.transition(t, "g-1", domain.StatusDo, "owner")
	var ue engine.UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	// The true cause must not masquerade as a business outcome.
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrConflict) {
		t.Fatalf("store failure reported as business error: %v", err)
	}
}

func TestUnknownGoalNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.transition(t, "missing", domain.StatusDo, "owner")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForbiddenForUnrelatedActor(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	_, err := env.transition(t, "g-1", domain.StatusDo, "outsider")
	var fe workflow.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	// Department grant unlocks the same actor.
	if err := env.Engine.Repo.GrantDepartment(env.Ctx, "outsider", "sales", "admin"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := env.transition(t, "g-1", domain.StatusDo, "outsider"); err != nil {
		t.Fatalf("after grant: %v", err)
	}
}

func TestPhaseGateBlocksForwardProgression(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	t1, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		GoalID: "g-1", Phase: domain.PhasePlan, Title: "interview stakeholders", AssigneeID: "worker", ActorID: "owner",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	t2, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		GoalID: "g-1", Phase: domain.PhasePlan, Title: "draft baseline", ActorID: "owner",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	// A task in another phase must not block.
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		GoalID: "g-1", Phase: domain.PhaseDo, Title: "future work", ActorID: "owner",
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	_, err = env.transition(t, "g-1", domain.StatusDo, "owner")
	var pie engine.PhaseIncompleteError
	if !errors.As(err, &pie) {
		t.Fatalf("expected PhaseIncompleteError, got %v", err)
	}
	if pie.Phase != domain.PhasePlan || len(pie.Tasks) != 2 {
		t.Fatalf("unexpected blocking detail: %+v", pie)
	}
	found := map[string]string{}
	for _, task := range pie.Tasks {
		found[task.Title] = task.AssigneeName
	}
	if found["interview stakeholders"] != "Worker" {
		t.Fatalf("expected assignee name on blocking task, got %+v", found)
	}
	if _, ok := found["draft baseline"]; !ok {
		t.Fatalf("expected unassigned task in blocking list, got %+v", found)
	}

	// Completing one and cancelling the other clears the gate.
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, t1.ID, domain.TaskCompleted, "worker"); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, t2.ID, domain.TaskCancelled, "owner"); err != nil {
		t.Fatalf("cancel task: %v", err)
	}
	if _, err := env.transition(t, "g-1", domain.StatusDo, "owner"); err != nil {
		t.Fatalf("after clearing gate: %v", err)
	}
}

func TestOnHoldBypassesGateAndTracksPreviousStatus(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		GoalID: "g-1", Phase: domain.PhasePlan, Title: "open work", ActorID: "owner",
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	g, err := env.transition(t, "g-1", domain.StatusOnHold, "owner")
	if err != nil {
		t.Fatalf("hold with open tasks: %v", err)
	}
	if g.PreviousStatus == nil || *g.PreviousStatus != domain.StatusPlan {
		t.Fatalf("expected previous_status=plan, got %+v", g.PreviousStatus)
	}
	g, err = env.transition(t, "g-1", domain.StatusPlan, "owner")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if g.Status != domain.StatusPlan || g.PreviousStatus != nil {
		t.Fatalf("expected previous_status cleared on resume, got %+v", g)
	}
}

func TestBackwardMoveBypassesGate(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.transition(t, "g-1", domain.StatusDo, "owner"); err != nil {
		t.Fatalf("to do: %v", err)
	}
	if _, err := env.transition(t, "g-1", domain.StatusCheck, "owner"); err != nil {
		t.Fatalf("to check: %v", err)
	}
	// Open work in the check phase blocks check->act but not check->do.
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		GoalID: "g-1", Phase: domain.PhaseCheck, Title: "review metrics", ActorID: "owner",
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	_, err := env.transition(t, "g-1", domain.StatusAct, "owner")
	var pie engine.PhaseIncompleteError
	if !errors.As(err, &pie) {
		t.Fatalf("expected gate on check->act, got %v", err)
	}
	if _, err := env.transition(t, "g-1", domain.StatusDo, "owner"); err != nil {
		t.Fatalf("backward check->do should bypass gate: %v", err)
	}
}

func TestCompleteAssignmentIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.Engine.Assign(env.Ctx, "g-1", []string{"worker"}, "owner"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	a, err := env.Engine.CompleteAssignment(env.Ctx, "g-1", "worker", "worker", "done my part")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if a.TaskStatus != domain.AssignmentCompleted || a.CompletedAt == nil {
		t.Fatalf("unexpected assignee state: %+v", a)
	}
	first := *a.CompletedAt

	// Second completion is a no-op success and keeps the original timestamp.
	a2, err := env.Engine.CompleteAssignment(env.Ctx, "g-1", "worker", "worker", "again")
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if a2.CompletedAt == nil || *a2.CompletedAt != first {
		t.Fatalf("expected original completion preserved, got %+v", a2)
	}

	entries, err := env.Engine.Repo.ListHistory(env.Ctx, "g-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	completions := 0
	for _, e := range entries {
		if e.Action == domain.ActionTaskCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("expected exactly one task_completed entry, got %d", completions)
	}
}

func TestCompleteAssignmentPermissions(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.Engine.Assign(env.Ctx, "g-1", []string{"worker"}, "owner"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// The owner may not complete someone else's slice.
	_, err := env.Engine.CompleteAssignment(env.Ctx, "g-1", "worker", "owner", "")
	var fe workflow.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError for owner, got %v", err)
	}
	// A head of the goal's department may.
	if _, err := env.Engine.CompleteAssignment(env.Ctx, "g-1", "worker", "head", "verified"); err != nil {
		t.Fatalf("head complete: %v", err)
	}
}

func TestCompletionDoesNotAdvanceGoal(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.Engine.Assign(env.Ctx, "g-1", []string{"worker"}, "owner"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.CompleteAssignment(env.Ctx, "g-1", "worker", "worker", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	g, err := env.Engine.Repo.GetGoal(env.Ctx, "g-1")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if g.Status != domain.StatusPlan {
		t.Fatalf("completion must not move the goal, got %s", g.Status)
	}
}

func TestHistoryIsAppendOnlyAndOrdered(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	if _, err := env.transition(t, "g-1", domain.StatusDo, "owner"); err != nil {
		t.Fatalf("to do: %v", err)
	}
	if err := env.Engine.AddComment(env.Ctx, "g-1", "owner", "kicking off"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := env.transition(t, "g-1", domain.StatusOnHold, "owner"); err != nil {
		t.Fatalf("hold: %v", err)
	}
	entries, err := env.Engine.Repo.ListHistory(env.Ctx, "g-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []domain.ActionKind{
		domain.ActionAssignment, // owner auto-assignment at creation
		domain.ActionStatusChange,
		domain.ActionComment,
		domain.ActionStatusChange,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	var lastID int64
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], e.Action)
		}
		if e.ID <= lastID {
			t.Fatalf("ids must be strictly increasing")
		}
		lastID = e.ID
		if e.UserName != "Owner" {
			t.Fatalf("expected denormalized user name, got %q", e.UserName)
		}
	}
	hold, ok := entries[3].Payload.(domain.StatusChange)
	if !ok {
		t.Fatalf("expected StatusChange payload, got %T", entries[3].Payload)
	}
	if hold.To != domain.StatusOnHold || hold.PreviousStatus == nil || *hold.PreviousStatus != domain.StatusDo {
		t.Fatalf("unexpected hold payload: %+v", hold)
	}
}

func TestLegacyAssigneeFallback(t *testing.T) {
	env := newTestEnv(t)
	// Seed a goal the way the old schema stored it: current_assignee_id set
	// and no assignee rows.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	worker := "worker"
	now := "2025-06-01T00:00:00Z"
	if err := env.Engine.Repo.InsertGoal(env.Ctx, tx, domain.Goal{
		ID: "legacy", Title: "migrated goal", Status: domain.StatusDo,
		OwnerID: "owner", Department: "sales", CurrentAssigneeID: &worker,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("insert goal: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// The legacy assignee can transition.
	if _, err := env.transition(t, "legacy", domain.StatusOnHold, "worker"); err != nil {
		t.Fatalf("legacy assignee transition: %v", err)
	}
	// And complete their own assignment; the row gets materialized.
	a, err := env.Engine.CompleteAssignment(env.Ctx, "legacy", "worker", "worker", "")
	if err != nil {
		t.Fatalf("legacy complete: %v", err)
	}
	if a.TaskStatus != domain.AssignmentCompleted {
		t.Fatalf("unexpected state: %+v", a)
	}
	if _, err := env.Engine.Repo.GetAssignee(env.Ctx, "legacy", "worker"); err != nil {
		t.Fatalf("expected materialized assignee row: %v", err)
	}
}

func TestTransitionWithReassignment(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	g, err := env.Engine.RequestTransition(env.Ctx, engine.TransitionRequest{
		GoalID:        "g-1",
		Target:        domain.StatusDo,
		ActorID:       "owner",
		Comment:       "handing over",
		NewAssigneeID: "worker",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if g.CurrentAssigneeID == nil || *g.CurrentAssigneeID != "worker" {
		t.Fatalf("expected current assignee worker, got %+v", g.CurrentAssigneeID)
	}
	// Earlier assignee rows survive reassignment.
	assignees, err := env.Engine.Repo.ListAssignees(env.Ctx, "g-1")
	if err != nil {
		t.Fatalf("list assignees: %v", err)
	}
	if len(assignees) != 2 {
		t.Fatalf("expected owner and worker rows, got %d", len(assignees))
	}
}

func TestSetDatesHistory(t *testing.T) {
	env := newTestEnv(t)
	env.createGoal(t, "g-1")
	target1 := "2025-09-01T00:00:00Z"
	target2 := "2025-10-01T00:00:00Z"
	if _, err := env.Engine.SetDates(env.Ctx, "g-1", "owner", nil, &target1); err != nil {
		t.Fatalf("set target: %v", err)
	}
	if _, err := env.Engine.SetDates(env.Ctx, "g-1", "owner", nil, &target2); err != nil {
		t.Fatalf("update target: %v", err)
	}
	entries, err := env.Engine.Repo.ListHistory(env.Ctx, "g-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var kinds []domain.ActionKind
	for _, e := range entries {
		kinds = append(kinds, e.Action)
	}
	if kinds[len(kinds)-2] != domain.ActionTargetDateSet || kinds[len(kinds)-1] != domain.ActionTargetDateUpdated {
		t.Fatalf("expected set then updated, got %v", kinds)
	}
	upd, ok := entries[len(entries)-1].Payload.(domain.TargetDateUpdated)
	if !ok || upd.Previous != target1 || upd.Date != target2 {
		t.Fatalf("unexpected update payload: %+v", entries[len(entries)-1].Payload)
	}
}

func TestStaleVersionConflicts(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGoal(t, "g-1")
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	g.Status = domain.StatusDo
	if err := env.Engine.Repo.CommitGoal(env.Ctx, tx, g, g.Version+5); err != repo.ErrConflict {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}
}
