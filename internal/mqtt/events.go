package mqtt

// EventKind distinguishes connection events.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	MessageReceived
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case MessageReceived:
		return "message"
	default:
		return "unknown"
	}
}

// Event is emitted by a Connection. Topic and Payload are set for
// MessageReceived, Err optionally for Disconnected.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}
