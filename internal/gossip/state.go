package gossip

// State is the lifecycle state of a Node.
//
//	created -> starting -> running -> stopping -> stopped
//	starting, running -> failed
//	running -> starting (restart)
type State uint8

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

var stateNames = [...]string{"created", "starting", "running", "stopping", "stopped", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the node can no longer change state.
func (s State) Terminal() bool { return s == StateStopped || s == StateFailed }

// States lists every node state in lifecycle order.
func States() []State {
	return []State{StateCreated, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed}
}

// ListenerState is the state of a Listener's receive loop.
type ListenerState uint8

const (
	ListenerJoining ListenerState = iota
	ListenerListening
	ListenerStopped
	ListenerFailed
)

func (s ListenerState) String() string {
	switch s {
	case ListenerJoining:
		return "joining"
	case ListenerListening:
		return "listening"
	case ListenerStopped:
		return "stopped"
	case ListenerFailed:
		return "failed"
	}
	return "unknown"
}
