package convo

// Event is the interface for all conversation events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted when the turn state changes.
type StateChangedEvent struct {
	From TurnState `json:"from"`
	To   TurnState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// MessageAppendedEvent is emitted for every message added to the transcript.
type MessageAppendedEvent struct {
	Message Message `json:"message"`
}

func (e *MessageAppendedEvent) EventType() string { return "message.appended" }

// SessionAdoptedEvent is emitted once, when the server-issued session
// identity is adopted from the first successful reply.
type SessionAdoptedEvent struct {
	SessionID string `json:"session_id"`
}

func (e *SessionAdoptedEvent) EventType() string { return "session.adopted" }

// SpeechStartedEvent is emitted when the reply starts being spoken.
type SpeechStartedEvent struct {
	Text string `json:"text"`
}

func (e *SpeechStartedEvent) EventType() string { return "speech.started" }

// SpeechEndedEvent is emitted when the spoken reply ends, is superseded, or
// fails. A synthesis failure ends speech the same way a normal finish does.
type SpeechEndedEvent struct{}

func (e *SpeechEndedEvent) EventType() string { return "speech.ended" }

// TurnFailedEvent is emitted when the remote chat call fails. The failure is
// terminal for the turn; the transcript carries a fixed apology instead of a
// reply and no error propagates to the submitter.
type TurnFailedEvent struct {
	Err string `json:"error"`
}

func (e *TurnFailedEvent) EventType() string { return "turn.failed" }
