package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaizen/internal/domain"
)

func TestLegalTransitions(t *testing.T) {
	legal := [][2]domain.Status{
		{domain.StatusPlan, domain.StatusDo},
		{domain.StatusPlan, domain.StatusOnHold},
		{domain.StatusDo, domain.StatusCheck},
		{domain.StatusDo, domain.StatusOnHold},
		{domain.StatusCheck, domain.StatusAct},
		{domain.StatusCheck, domain.StatusDo},
		{domain.StatusCheck, domain.StatusOnHold},
		{domain.StatusAct, domain.StatusCompleted},
		{domain.StatusAct, domain.StatusPlan},
		{domain.StatusAct, domain.StatusOnHold},
		{domain.StatusOnHold, domain.StatusPlan},
		{domain.StatusOnHold, domain.StatusDo},
		{domain.StatusOnHold, domain.StatusCheck},
		{domain.StatusOnHold, domain.StatusAct},
	}
	for _, pair := range legal {
		assert.True(t, Legal(pair[0], pair[1]), "%s -> %s should be legal", pair[0], pair[1])
	}
}

func TestIllegalTransitions(t *testing.T) {
	illegal := [][2]domain.Status{
		{domain.StatusPlan, domain.StatusCheck},
		{domain.StatusPlan, domain.StatusAct},
		{domain.StatusPlan, domain.StatusCompleted},
		{domain.StatusPlan, domain.StatusCancelled},
		{domain.StatusDo, domain.StatusPlan},
		{domain.StatusDo, domain.StatusAct},
		{domain.StatusDo, domain.StatusCompleted},
		{domain.StatusDo, domain.StatusCancelled},
		{domain.StatusCheck, domain.StatusPlan},
		{domain.StatusCheck, domain.StatusCompleted},
		{domain.StatusCheck, domain.StatusCancelled},
		{domain.StatusAct, domain.StatusDo},
		{domain.StatusAct, domain.StatusCheck},
		{domain.StatusAct, domain.StatusCancelled},
		{domain.StatusOnHold, domain.StatusCompleted},
		{domain.StatusOnHold, domain.StatusCancelled},
		{domain.StatusOnHold, domain.StatusOnHold},
		{domain.StatusPlan, domain.StatusPlan},
	}
	for _, pair := range illegal {
		assert.False(t, Legal(pair[0], pair[1]), "%s -> %s should be illegal", pair[0], pair[1])
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []domain.Status{
		domain.StatusPlan, domain.StatusDo, domain.StatusCheck, domain.StatusAct,
		domain.StatusOnHold, domain.StatusCompleted, domain.StatusCancelled,
	}
	for _, to := range all {
		assert.False(t, Legal(domain.StatusCompleted, to), "completed -> %s", to)
		assert.False(t, Legal(domain.StatusCancelled, to), "cancelled -> %s", to)
	}
}

func TestForwardProgression(t *testing.T) {
	assert.True(t, ForwardProgression(domain.StatusPlan, domain.StatusDo))
	assert.True(t, ForwardProgression(domain.StatusDo, domain.StatusCheck))
	assert.True(t, ForwardProgression(domain.StatusCheck, domain.StatusAct))
	assert.True(t, ForwardProgression(domain.StatusAct, domain.StatusCompleted))

	// Backward moves, pauses, and resumes are not gated.
	assert.False(t, ForwardProgression(domain.StatusCheck, domain.StatusDo))
	assert.False(t, ForwardProgression(domain.StatusAct, domain.StatusPlan))
	assert.False(t, ForwardProgression(domain.StatusPlan, domain.StatusOnHold))
	assert.False(t, ForwardProgression(domain.StatusOnHold, domain.StatusDo))
}

func TestGatePhaseMatchesCurrentStatus(t *testing.T) {
	assert.Equal(t, domain.PhasePlan, GatePhase(domain.StatusPlan))
	assert.Equal(t, domain.PhaseDo, GatePhase(domain.StatusDo))
	assert.Equal(t, domain.PhaseCheck, GatePhase(domain.StatusCheck))
	assert.Equal(t, domain.PhaseAct, GatePhase(domain.StatusAct))
}

func TestIllegalTransitionErrorMessage(t *testing.T) {
	err := IllegalTransitionError{From: domain.StatusPlan, To: domain.StatusAct}
	require.EqualError(t, err, "invalid status transition from plan to act")
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(domain.StatusOnHold))
	assert.False(t, ValidStatus(domain.Status("paused")))
	assert.False(t, ValidStatus(domain.Status("")))
}
