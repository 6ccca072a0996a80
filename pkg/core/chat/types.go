package chat

import "time"

// Request is the body of a chat turn sent to the assistant API.
// SessionID is omitted on the first turn of a conversation; the server
// issues one in the reply and it is carried on every turn after that.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Response is the assistant API's reply to a chat turn.
type Response struct {
	Response              string   `json:"response"`
	SessionID             string   `json:"session_id"`
	ToolUsed              string   `json:"tool_used"`
	Sources               []string `json:"sources"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question"`
}

// HistoryMessage is one stored message in a server-side chat history.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// History is the server-side message history for one session.
type History struct {
	SessionID  string           `json:"session_id"`
	DocumentID string           `json:"document_id,omitempty"`
	Messages   []HistoryMessage `json:"messages"`
	Count      int              `json:"count"`
}
