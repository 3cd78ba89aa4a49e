package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kaizen/internal/db"
	"kaizen/internal/domain"
	"kaizen/internal/migrate"
	"kaizen/internal/repo"
)

// Two actors race on the same goal snapshot: the loser of the commit must
// see ErrConflict and leave no partial state behind.
func TestConcurrentTransitionConflicts(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	eng := New(conn, zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	if err := eng.Repo.UpsertUser(ctx, domain.User{ID: "owner", Name: "Owner", Role: domain.RoleEmployee}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CreateGoal(ctx, GoalCreateOptions{ID: "g-1", Title: "racing goal", OwnerID: "owner"}); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	// After the loser validated its snapshot, a rival commit moves the goal.
	rival := New(conn, zerolog.Nop())
	rival.Now = eng.Now
	fired := false
	eng.beforeCommit = func() {
		if fired {
			return
		}
		fired = true
		if _, err := rival.RequestTransition(ctx, TransitionRequest{
			GoalID: "g-1", Target: domain.StatusOnHold, ActorID: "owner",
		}); err != nil {
			t.Fatalf("rival transition: %v", err)
		}
	}

	_, err = eng.RequestTransition(ctx, TransitionRequest{
		GoalID: "g-1", Target: domain.StatusDo, ActorID: "owner",
	})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The rival's write is the one that stuck, and no extra history leaked.
	g, err := eng.Repo.GetGoal(ctx, "g-1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Status != domain.StatusOnHold || g.Version != 2 {
		t.Fatalf("unexpected goal after race: %+v", g)
	}
	entries, err := eng.Repo.ListHistory(ctx, "g-1")
	if err != nil {
		t.Fatal(err)
	}
	changes := 0
	for _, e := range entries {
		if e.Action == domain.ActionStatusChange {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("expected a single status_change, got %d", changes)
	}
}
