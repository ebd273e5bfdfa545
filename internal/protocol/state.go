package protocol

// State is the lifecycle position of a Session.
type State int

const (
	StatePending State = iota
	StateInitialized
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
