package convo

import "sync"

// Transcript is an append-only ordered message history for one conversation
// view. Insertion order is conversation order; entries are never reordered
// or mutated after append. Each conversation owns exactly one Transcript —
// the global and per-document assistants never share one.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a message to the end of the transcript and returns the stored
// copy. Source slices are copied so later mutation by the caller cannot
// reach the stored entry.
func (t *Transcript) Append(msg Message) Message {
	msg.Sources = cloneSources(msg.Sources)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
	return msg
}

// Messages returns a copy of the transcript in conversation order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	for i := range out {
		out[i].Sources = cloneSources(out[i].Sources)
	}
	return out
}

// Len returns the number of messages in the transcript.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return Message{}, false
	}
	msg := t.messages[len(t.messages)-1]
	msg.Sources = cloneSources(msg.Sources)
	return msg, true
}
