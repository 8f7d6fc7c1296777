package narration

// State is a narration orchestrator state.
type State int

const (
	Idle State = iota
	Preparing
	Playing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Playing:
		return "playing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event int

const (
	EventRead Event = iota
	EventReady
	EventFinished
	EventError
	EventCancel
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventRead:
		return "read"
	case EventReady:
		return "ready"
	case EventFinished:
		return "finished"
	case EventError:
		return "error"
	case EventCancel:
		return "cancel"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// transition is one edge of the state machine. When teardown is set, the
// active session is released before the new state is entered.
type transition struct {
	to       State
	teardown bool
}

// transitions is the complete state machine. Events not listed for a state
// are ignored.
var transitions = map[State]map[Event]transition{
	Idle: {
		EventRead: {to: Preparing},
	},
	Preparing: {
		EventRead:   {to: Preparing, teardown: true},
		EventReady:  {to: Playing},
		EventError:  {to: Failed, teardown: true},
		EventCancel: {to: Idle, teardown: true},
	},
	Playing: {
		EventRead:     {to: Preparing, teardown: true},
		EventFinished: {to: Completed, teardown: true},
		EventError:    {to: Failed, teardown: true},
		EventCancel:   {to: Idle, teardown: true},
	},
	Completed: {
		EventReset: {to: Idle, teardown: true},
	},
	Failed: {
		EventReset: {to: Idle, teardown: true},
	},
}

// next looks up the transition for ev in state s.
func next(s State, ev Event) (transition, bool) {
	t, ok := transitions[s][ev]
	return t, ok
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
