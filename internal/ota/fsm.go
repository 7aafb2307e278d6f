package ota

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/metrics"
	fsmutil "github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/util/fsm"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// Orchestrator states. A vehicle campaign walks idle, checking,
// downloading, verifying, distributing, activating, completed; a
// self-update replaces distributing with installing.
const (
	StateIdle         = "idle"
	StateChecking     = "checking"
	StateDownloading  = "downloading"
	StateVerifying    = "verifying"
	StateDistributing = "distributing"
	StateInstalling   = "installing"
	StateActivating   = "activating"
	StateCompleted    = "completed"
	StateFailed       = "failed"
)

const (
	// EventCheck starts a new campaign from idle.
	EventCheck = "event_check"
	// EventDownload begins the package download.
	EventDownload = "event_download"
	// EventVerify begins hash and metadata verification.
	EventVerify = "event_verify"
	// EventDistribute begins zone-by-zone firmware transfer.
	EventDistribute = "event_distribute"
	// EventInstall begins writing the gateway's own inactive slot.
	EventInstall = "event_install"
	// EventActivate begins final activation.
	EventActivate = "event_activate"
	// EventComplete finishes a campaign successfully.
	EventComplete = "event_complete"
	// EventFail aborts a campaign from any active state.
	EventFail = "event_fail"
	// EventReset returns a finished or failed machine to idle.
	EventReset = "event_reset"
)

// StateCode maps a state name to the number exported as a metric.
func StateCode(state string) int {
	switch state {
	case StateIdle:
		return 0
	case StateChecking:
		return 1
	case StateDownloading:
		return 2
	case StateVerifying:
		return 3
	case StateDistributing:
		return 4
	case StateInstalling:
		return 5
	case StateActivating:
		return 6
	case StateCompleted:
		return 7
	case StateFailed:
		return 8
	}
	return -1
}

type FiniteStateMachine struct {
	*fsm.FSM

	logger log.Logger
}

func NewFiniteStateMachine(logger log.Logger) *FiniteStateMachine {
	f := &FiniteStateMachine{logger: logger}

	active := []string{
		StateChecking, StateDownloading, StateVerifying,
		StateDistributing, StateInstalling, StateActivating,
	}

	events := fsm.Events{
		{Name: EventCheck, Src: []string{StateIdle}, Dst: StateChecking},
		{Name: EventDownload, Src: []string{StateChecking}, Dst: StateDownloading},
		{Name: EventVerify, Src: []string{StateDownloading}, Dst: StateVerifying},
		{Name: EventDistribute, Src: []string{StateVerifying}, Dst: StateDistributing},
		{Name: EventInstall, Src: []string{StateVerifying}, Dst: StateInstalling},
		{Name: EventActivate, Src: []string{StateDistributing, StateInstalling}, Dst: StateActivating},
		{Name: EventComplete, Src: []string{StateActivating}, Dst: StateCompleted},
		{Name: EventFail, Src: active, Dst: StateFailed},
		{Name: EventReset, Src: []string{StateCompleted, StateFailed}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(f.ActionEnterState),
	}

	f.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	return f
}

// ActionEnterState mirrors every transition into the state gauge.
func (f *FiniteStateMachine) ActionEnterState(ctx context.Context, e *fsm.Event) error {
	metrics.OTAState.Set(float64(StateCode(e.Dst)))
	f.logger.Info("OTA state changed", "from", e.Src, "to", e.Dst)
	return nil
}
