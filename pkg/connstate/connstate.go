package connstate

// State is the readiness of a pooled connection's transport.
type State int32

const (
	Connecting = State(iota)
	Connected
	Disconnecting
	Disconnected
	Errored
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnecting:
		return "DISCONNECTING"
	case Disconnected:
		return "DISCONNECTED"
	case Errored:
		return "ERRORED"
	}
	return "invalid"
}

// Acquirable reports whether a connection in this state may be handed out.
// Only a fully connected transport qualifies.
func (s State) Acquirable() bool {
	return s == Connected
}
