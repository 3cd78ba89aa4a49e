package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeActionRoundTrip(t *testing.T) {
	prev := StatusDo
	actions := []Action{
		StatusChange{From: StatusDo, To: StatusOnHold, Comment: "pausing", PreviousStatus: &prev},
		Comment{Text: "hello"},
		Assignment{UserIDs: []string{"u-1", "u-2"}},
		TaskCompletedAction{Notes: "done"},
		StartDateSet{Date: "2025-06-01T00:00:00Z"},
		TargetDateSet{Date: "2025-09-01T00:00:00Z"},
		TargetDateUpdated{Previous: "2025-09-01T00:00:00Z", Date: "2025-10-01T00:00:00Z"},
	}
	for _, a := range actions {
		raw, err := json.Marshal(a)
		require.NoError(t, err)
		decoded, err := DecodeAction(a.Kind(), raw)
		require.NoError(t, err, "kind %s", a.Kind())
		assert.Equal(t, a, decoded)
	}
}

func TestDecodeActionUnknownKind(t *testing.T) {
	_, err := DecodeAction(ActionKind("mystery"), []byte(`{}`))
	require.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	for _, s := range []Status{StatusPlan, StatusDo, StatusCheck, StatusAct, StatusOnHold} {
		assert.False(t, s.Terminal(), "%s", s)
	}
}
