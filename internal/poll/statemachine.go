package poll

import (
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/pkg/errors"
)

const (
	// run states
	//
	// an orchestrator is in exactly one of these states
	StateIdle      sw.State = "idle"
	StateRunning   sw.State = "running"
	StateCompleted sw.State = "completed"
	StateCanceled  sw.State = "canceled"
	StateErrored   sw.State = "errored"

	TransitionStart    sw.TransitionType = "start"
	TransitionComplete sw.TransitionType = "complete"
	TransitionCancel   sw.TransitionType = "cancel"
	TransitionFail     sw.TransitionType = "fail"
	TransitionReset    sw.TransitionType = "reset"
)

var (
	ErrStateTransition = errors.New("error in run state transition")
)

// runState is the StateSwitch the run state machine operates on.
type runState struct {
	state      sw.State
	startedAt  time.Time
	finishedAt time.Time
	now        func() time.Time
}

func newRunState(now func() time.Time) *runState {
	return &runState{state: StateIdle, now: now}
}

func (r *runState) State() sw.State {
	return r.state
}

func (r *runState) SetState(state sw.State) error {
	r.state = state
	return nil
}

func asRunState(s sw.StateSwitch) (*runState, error) {
	r, ok := s.(*runState)
	if !ok {
		return nil, errors.Wrap(ErrStateTransition, "expected a *runState")
	}

	return r, nil
}

func markStarted(s sw.StateSwitch, _ sw.TransitionArgs) error {
	r, err := asRunState(s)
	if err != nil {
		return err
	}

	r.startedAt = r.now()
	r.finishedAt = time.Time{}

	return nil
}

func markFinished(s sw.StateSwitch, _ sw.TransitionArgs) error {
	r, err := asRunState(s)
	if err != nil {
		return err
	}

	r.finishedAt = r.now()

	return nil
}

func markIdle(s sw.StateSwitch, _ sw.TransitionArgs) error {
	_, err := asRunState(s)
	return err
}

// newRunStateMachine returns the state machine a run goes through,
// idle -> running -> completed | canceled | errored -> idle.
func newRunStateMachine() sw.StateMachine {
	m := sw.NewStateMachine()

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionStart,
		SourceStates:     sw.States{StateIdle},
		DestinationState: StateRunning,
		Transition:       markStarted,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Start run",
			Description: "A run starts only from idle, at most one run is active per orchestrator.",
		},
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionComplete,
		SourceStates:     sw.States{StateRunning},
		DestinationState: StateCompleted,
		Transition:       markFinished,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Run completed",
			Description: "Every device was probed and the reading batch was persisted.",
		},
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionCancel,
		SourceStates:     sw.States{StateRunning},
		DestinationState: StateCanceled,
		Transition:       markFinished,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Run canceled",
			Description: "The cancel flag was set, the partial batch is discarded.",
		},
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionFail,
		SourceStates:     sw.States{StateRunning},
		DestinationState: StateErrored,
		Transition:       markFinished,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Run failed",
			Description: "No active devices, or the device catalog or reading store returned an error.",
		},
	})

	m.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionReset,
		SourceStates:     sw.States{StateCompleted, StateCanceled, StateErrored},
		DestinationState: StateIdle,
		Transition:       markIdle,
		Documentation: sw.TransitionRuleDoc{
			Name:        "Reset",
			Description: "The orchestrator accepts a new run.",
		},
	})

	return m
}

// DescribeStateMachine returns a JSON description of the run state machine.
func DescribeStateMachine() ([]byte, error) {
	m := newRunStateMachine()

	for _, doc := range []sw.StateDoc{
		{Name: string(StateIdle), Description: "No run active."},
		{Name: string(StateRunning), Description: "Devices are being probed."},
		{Name: string(StateCompleted), Description: "The last run persisted its batch."},
		{Name: string(StateCanceled), Description: "The last run was canceled."},
		{Name: string(StateErrored), Description: "The last run failed."},
	} {
		m.DescribeState(sw.State(doc.Name), doc)
	}

	return m.AsJSON()
}
