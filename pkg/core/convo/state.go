package convo

// TurnState is the controller's position in the current turn. Recording is
// not a turn state; it is owned by the capture adapter and varies
// independently.
type TurnState int

const (
	// StateIdle means no turn is in flight.
	StateIdle TurnState = iota
	// StateAwaitingReply means a remote chat request is outstanding.
	StateAwaitingReply
	// StateSpeaking means the reply is being synthesized aloud.
	StateSpeaking
)

// String returns a human-readable state name.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}
