// Package notify fans workflow history entries out to interested parties.
// Delivery is best-effort: the engine logs sink failures and never rolls a
// committed transition back because of one.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"kaizen/internal/domain"
)

// Sink receives one notification per committed workflow event.
type Sink interface {
	Notify(ctx context.Context, goal domain.Goal, entry domain.WorkflowHistoryEntry, actorID string) error
}

// LogSink writes notifications to the structured log. It is the default sink.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, goal domain.Goal, entry domain.WorkflowHistoryEntry, actorID string) error {
	s.Logger.Info().
		Str("goal_id", goal.ID).
		Str("status", string(goal.Status)).
		Str("action", string(entry.Action)).
		Str("actor_id", actorID).
		Msg("workflow event")
	return nil
}

// Event is the wire form published to NATS.
type Event struct {
	GoalID  string                      `json:"goal_id"`
	Title   string                      `json:"title"`
	Status  domain.Status               `json:"status"`
	ActorID string                      `json:"actor_id"`
	Entry   domain.WorkflowHistoryEntry `json:"entry"`
}

// NATSSink publishes notifications to a NATS subject.
type NATSSink struct {
	Conn    *nats.Conn
	Subject string
}

// NewNATSSink connects to NATS and returns a sink publishing to subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("kaizen-notify"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{Conn: nc, Subject: subject}, nil
}

func (s *NATSSink) Notify(_ context.Context, goal domain.Goal, entry domain.WorkflowHistoryEntry, actorID string) error {
	data, err := json.Marshal(Event{
		GoalID:  goal.ID,
		Title:   goal.Title,
		Status:  goal.Status,
		ActorID: actorID,
		Entry:   entry,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.Conn.Publish(s.Subject, data)
}

func (s *NATSSink) Close() {
	if s.Conn != nil {
		s.Conn.Close()
	}
}

// Multi delivers to every sink, returning the first error after trying all.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, goal domain.Goal, entry domain.WorkflowHistoryEntry, actorID string) error {
	var first error
	for _, s := range m {
		if err := s.Notify(ctx, goal, entry, actorID); err != nil && first == nil {
			first = err
		}
	}
	return first
}
