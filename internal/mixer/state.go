package mixer

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

const (
	StateIdle      = "idle"
	StateConnected = "connected"
	StateDisabled  = "disabled"
	StatePoisoned  = "poisoned"
)

const (
	eventConnect         = "connect"
	eventDrop            = "drop"
	eventDisable         = "disable"
	eventResumeIdle      = "resume_idle"
	eventResumeConnected = "resume_connected"
	eventPoison          = "poison"
)

func newStateMachine(onEnter func(from, to string)) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateIdle}, Dst: StateConnected},
			{Name: eventDrop, Src: []string{StateConnected}, Dst: StateIdle},
			{Name: eventDisable, Src: []string{StateIdle, StateConnected}, Dst: StateDisabled},
			{Name: eventResumeIdle, Src: []string{StateDisabled}, Dst: StateIdle},
			{Name: eventResumeConnected, Src: []string{StateDisabled}, Dst: StateConnected},
			{Name: eventPoison, Src: []string{StateIdle, StateConnected, StateDisabled}, Dst: StatePoisoned},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(e.Src, e.Dst)
			},
		},
	)
}

// targetState derives the state from the mixer's flags. Poison wins over
// disabled, which wins over having a connection.
func (m *Mixer) targetState() string {
	switch {
	case m.poisoned:
		return StatePoisoned
	case m.disabled:
		return StateDisabled
	case m.conn != nil:
		return StateConnected
	default:
		return StateIdle
	}
}

func transitionTo(from, to string) string {
	switch to {
	case StatePoisoned:
		return eventPoison
	case StateDisabled:
		return eventDisable
	case StateConnected:
		if from == StateDisabled {
			return eventResumeConnected
		}
		return eventConnect
	default:
		if from == StateDisabled {
			return eventResumeIdle
		}
		return eventDrop
	}
}

func (m *Mixer) syncState() {
	from := m.state.Current()
	to := m.targetState()
	if from == to {
		return
	}
	err := m.state.Event(context.Background(), transitionTo(from, to))
	var noTransition fsm.NoTransitionError
	var invalid fsm.InvalidEventError
	if err != nil && !errors.As(err, &noTransition) && !errors.As(err, &invalid) {
		m.log.Warn("mixer state transition failed", "from", from, "to", to, "error", err)
	}
}

// State returns the current mixer state name.
func (m *Mixer) State() string {
	return m.state.Current()
}
