package domain

// State is the lifecycle of a transport endpoint.
// Connecting -> Open -> Closed; Closed is terminal.
type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
