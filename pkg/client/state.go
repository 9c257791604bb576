package client

// State is the lifecycle of a channel's transport.
//
// Disconnected → Connecting → Open → Closing → Disconnected, with Errored
// reachable from Connecting or Open. Errored is terminal until the next
// OpenChannel call.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Errored:
		return "errored"
	}
	return "unknown"
}
