// Package workflow holds the pure decision logic of the goal workflow engine:
// the fixed PDCA transition table and the permission evaluator. Nothing in
// this package performs I/O.
package workflow

import (
	"fmt"

	"kaizen/internal/domain"
)

// transitions is the fixed default policy. Terminal states carry empty sets,
// so "no further transitions" falls out of the table itself rather than a
// special case in callers.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusPlan:      {domain.StatusDo, domain.StatusOnHold},
	domain.StatusDo:        {domain.StatusCheck, domain.StatusOnHold},
	domain.StatusCheck:     {domain.StatusAct, domain.StatusDo, domain.StatusOnHold},
	domain.StatusAct:       {domain.StatusCompleted, domain.StatusPlan, domain.StatusOnHold},
	domain.StatusOnHold:    {domain.StatusPlan, domain.StatusDo, domain.StatusCheck, domain.StatusAct},
	domain.StatusCompleted: {},
	domain.StatusCancelled: {},
}

// forward maps each working phase to its forward progression target. Only
// these four pairs are gated on phase-task completion.
var forward = map[domain.Status]domain.Status{
	domain.StatusPlan:  domain.StatusDo,
	domain.StatusDo:    domain.StatusCheck,
	domain.StatusCheck: domain.StatusAct,
	domain.StatusAct:   domain.StatusCompleted,
}

// Legal reports whether from->to appears in the transition table. Absence
// means illegal; there is no default-allow.
func Legal(from, to domain.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ForwardProgression reports whether from->to advances the goal to the next
// PDCA phase in sequence. Moves into or out of on_hold and backward moves are
// never forward progressions.
func ForwardProgression(from, to domain.Status) bool {
	return forward[from] == to
}

// GatePhase returns the phase whose tasks gate a forward progression out of
// from. Callers must only use it for statuses that have a forward target.
func GatePhase(from domain.Status) domain.Phase {
	return domain.Phase(from)
}

// ValidStatus reports whether s is a known PDCA status.
func ValidStatus(s domain.Status) bool {
	_, ok := transitions[s]
	return ok
}

// IllegalTransitionError indicates a status change the transition table does
// not allow.
type IllegalTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
