package poller

// Mode identifies which loop is polling.
type Mode int

const (
	// ModeInProcess is the loop tied to an open view.
	ModeInProcess Mode = iota + 1

	// ModeBackground is the long-running loop that also drives notifications.
	ModeBackground
)

func (m Mode) String() string {
	switch m {
	case ModeInProcess:
		return "in_process"
	case ModeBackground:
		return "background"
	default:
		return "unknown"
	}
}

func (m Mode) runningState() State {
	if m == ModeBackground {
		return StateRunningBackground
	}
	return StateRunningInProcess
}

// State is the poller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunningInProcess
	StateRunningBackground
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunningInProcess:
		return "running_in_process"
	case StateRunningBackground:
		return "running_background"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear as a string in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
