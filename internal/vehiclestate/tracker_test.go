package vehiclestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerStartsUnknown(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateUnknown, tr.Current())
	assert.False(t, tr.AllowsOTA(), "unknown state must not allow OTA")
}

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker()

	require.NoError(t, tr.Set(StateDriving))
	assert.False(t, tr.AllowsOTA())

	require.NoError(t, tr.Set(StateParkedIgnitionOff))
	assert.True(t, tr.AllowsOTA())

	require.NoError(t, tr.Set(StateCharging))
	assert.True(t, tr.AllowsOTA())

	require.NoError(t, tr.Set(StateOTAActive))
	assert.False(t, tr.AllowsOTA(), "a running campaign blocks another")
}

func TestTrackerRejectsUnknownState(t *testing.T) {
	tr := NewTracker()
	assert.Error(t, tr.Set(State("towed")))
	assert.Equal(t, StateUnknown, tr.Current())
}

func TestAllowsOTAPerState(t *testing.T) {
	allowed := map[State]bool{
		StateUnknown:           false,
		StateDriving:           false,
		StateParkedIgnitionOn:  true,
		StateParkedIgnitionOff: true,
		StateCharging:          true,
		StateOTAActive:         false,
	}
	for state, want := range allowed {
		assert.Equal(t, want, state.AllowsOTA(), string(state))
	}
}
