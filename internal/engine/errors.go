package engine

import (
	"errors"
	"fmt"
	"strings"

	"kaizen/internal/domain"
	"kaizen/internal/repo"
	"kaizen/internal/workflow"
)

// PhaseIncompleteError blocks a forward progression while the phase still has
// incomplete, non-cancelled tasks. It carries the blocking tasks so callers
// can render an actionable message instead of a bare "blocked".
type PhaseIncompleteError struct {
	Phase domain.Phase
	Tasks []repo.BlockingTask
}

func (e PhaseIncompleteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot advance: %d incomplete task(s) in the %s phase:", len(e.Tasks), e.Phase)
	for _, t := range e.Tasks {
		b.WriteString("\n- ")
		b.WriteString(t.Title)
		if t.AssigneeName != "" {
			fmt.Fprintf(&b, " (%s)", t.AssigneeName)
		}
	}
	return b.String()
}

// UnavailableError wraps an infrastructure failure (store error, timeout) so
// callers can distinguish "retry later" from business-rule rejections.
type UnavailableError struct {
	Err error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e UnavailableError) Unwrap() error {
	return e.Err
}

// storeErr converts unexpected store failures to UnavailableError while
// letting the typed outcomes (not found, conflict) pass through.
func storeErr(err error) error {
	if err == nil || errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrConflict) {
		return err
	}
	return UnavailableError{Err: err}
}

// errKind labels an error for the failure metrics.
func errKind(err error) string {
	var (
		illegal    workflow.IllegalTransitionError
		forbidden  workflow.ForbiddenError
		incomplete PhaseIncompleteError
		unavail    UnavailableError
	)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	case errors.Is(err, repo.ErrConflict):
		return "conflict"
	case errors.As(err, &illegal):
		return "illegal_transition"
	case errors.As(err, &forbidden):
		return "forbidden"
	case errors.As(err, &incomplete):
		return "phase_incomplete"
	case errors.As(err, &unavail):
		return "unavailable"
	}
	return "internal"
}
