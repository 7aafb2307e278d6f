// Package vehiclestate tracks the coarse operating state of the
// vehicle and gates OTA activity on it.
package vehiclestate

import (
	"fmt"
	"sync"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// State is the vehicle's coarse operating mode.
type State string

const (
	StateUnknown           State = "unknown"
	StateDriving           State = "driving"
	StateParkedIgnitionOn  State = "parked_ignition_on"
	StateParkedIgnitionOff State = "parked_ignition_off"
	StateCharging          State = "charging"
	StateOTAActive         State = "ota_active"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateDriving, StateParkedIgnitionOn,
		StateParkedIgnitionOff, StateCharging, StateOTAActive:
		return true
	}
	return false
}

// AllowsOTA reports whether an update campaign may start in this
// state. Only a stationary vehicle qualifies.
func (s State) AllowsOTA() bool {
	switch s {
	case StateParkedIgnitionOn, StateParkedIgnitionOff, StateCharging:
		return true
	}
	return false
}

// Tracker holds the current state. It starts in unknown, which does
// not allow OTA until a real state is observed.
type Tracker struct {
	mu      sync.Mutex
	current State
	logger  log.Logger
}

func NewTracker() *Tracker {
	return &Tracker{
		current: StateUnknown,
		logger:  log.WithName("vehiclestate"),
	}
}

// Current returns the tracked state.
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Set records a new state observation.
func (t *Tracker) Set(s State) error {
	if !s.Valid() {
		return fmt.Errorf("vehiclestate: unknown state %q", s)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s != t.current {
		t.logger.Info("Vehicle state changed", "from", string(t.current), "to", string(s))
	}
	t.current = s
	return nil
}

// AllowsOTA reports whether the tracked state permits starting a
// campaign.
func (t *Tracker) AllowsOTA() bool {
	return t.Current().AllowsOTA()
}
