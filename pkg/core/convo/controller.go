package convo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/invodesk/assist/pkg/core/chat"
)

// ErrorReplyText is appended in place of an assistant reply when the remote
// chat call fails. The failure never propagates past the controller.
const ErrorReplyText = "I'm sorry, I encountered an error processing your request. Please try again."

// DefaultVoiceSubmitDelay is how long a finalized voice transcript sits in
// the input before it is auto-submitted, so the view can show the captured
// text before it is sent.
const DefaultVoiceSubmitDelay = 500 * time.Millisecond

var (
	// ErrEmptyInput is returned when a submitted turn is empty after trimming.
	ErrEmptyInput = errors.New("convo: input must not be empty")
	// ErrBusy is returned when a turn is submitted while a remote request is
	// already outstanding. Re-entrant submissions are rejected, not queued.
	ErrBusy = errors.New("convo: a reply is already pending")
	// ErrClosed is returned when submitting to a closed controller.
	ErrClosed = errors.New("convo: controller is closed")
)

// Responder is the remote side of a conversation: it accepts one user
// message plus the current session identity and produces the reply.
type Responder interface {
	Respond(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Speaker is the speech output slot. Speak pre-empts whatever is currently
// being spoken anywhere in the process.
type Speaker interface {
	Speak(ctx context.Context, text string, onStart, onEnd func()) error
	Stop()
}

// Controller drives one conversation: it owns the transcript and session
// identity, serializes turns, and coordinates voice input hand-off and
// spoken replies. One controller per conversation view.
type Controller struct {
	responder Responder
	speaker   Speaker

	transcript *Transcript
	session    *SessionRef

	mu        sync.Mutex
	state     TurnState
	speechGen uint64

	events   chan Event
	evMu     sync.Mutex
	evClosed bool
	closed   atomic.Bool

	voiceTok   atomic.Uint64
	voiceDelay time.Duration

	logger *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSpeaker enables spoken replies through the given output slot.
func WithSpeaker(s Speaker) ControllerOption {
	return func(c *Controller) { c.speaker = s }
}

// WithVoiceSubmitDelay overrides the voice auto-submit delay.
func WithVoiceSubmitDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.voiceDelay = d }
}

// WithGreeting seeds the transcript with a system message shown before the
// first turn.
func WithGreeting(text string) ControllerOption {
	return func(c *Controller) {
		c.transcript.Append(NewMessage(RoleSystem, text))
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller for one conversation backed by the
// given responder.
func NewController(responder Responder, opts ...ControllerOption) *Controller {
	c := &Controller{
		responder:  responder,
		transcript: NewTranscript(),
		session:    NewSessionRef(),
		state:      StateIdle,
		events:     make(chan Event, 100),
		voiceDelay: DefaultVoiceSubmitDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcript returns the conversation's transcript.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// Session returns the conversation's session identity.
func (c *Controller) Session() *SessionRef {
	return c.session
}

// State returns the current turn state.
func (c *Controller) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a remote request is outstanding.
func (c *Controller) Busy() bool {
	return c.State() == StateAwaitingReply
}

// Speaking reports whether the last reply is currently being spoken.
func (c *Controller) Speaking() bool {
	return c.State() == StateSpeaking
}

// Events returns the channel of conversation events. The channel is closed
// by Close.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Submit starts one turn with typed text. It returns ErrBusy while a reply
// is outstanding and ErrEmptyInput for blank text; otherwise the turn runs
// asynchronously and its outcome is visible only through the transcript and
// events. A pending voice auto-submit is superseded by a typed submit.
func (c *Controller) Submit(ctx context.Context, text string) error {
	c.voiceTok.Add(1)
	return c.submit(ctx, text)
}

// SubmitFromVoice schedules a finalized voice transcript for submission
// after the configured delay, so the view can display the captured text
// first. A typed Submit (or a newer voice transcript) during the delay
// supersedes it; the superseded submission is dropped, not queued.
func (c *Controller) SubmitFromVoice(ctx context.Context, transcript string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if strings.TrimSpace(transcript) == "" {
		return ErrEmptyInput
	}

	token := c.voiceTok.Add(1)
	time.AfterFunc(c.voiceDelay, func() {
		if c.voiceTok.Load() != token || c.closed.Load() {
			return
		}
		if err := c.submit(ctx, transcript); err != nil {
			c.logger.Debug("voice auto-submit dropped", "error", err)
		}
	})
	return nil
}

func (c *Controller) submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	if c.state == StateAwaitingReply {
		c.mu.Unlock()
		return ErrBusy
	}
	c.setStateLocked(StateAwaitingReply)
	c.mu.Unlock()

	userMsg := c.transcript.Append(NewMessage(RoleUser, text))
	c.emit(&MessageAppendedEvent{Message: userMsg})

	req := chat.Request{Message: text}
	if id, ok := c.session.ID(); ok {
		req.SessionID = id
	}

	go c.runTurn(ctx, req)
	return nil
}

// runTurn completes one request/response cycle. A reply that arrives after
// Close is still applied to the transcript, but causes no further UI side
// effects: no events, no speech.
func (c *Controller) runTurn(ctx context.Context, req chat.Request) {
	resp, err := c.responder.Respond(ctx, req)
	if err != nil {
		c.logger.Warn("chat turn failed", "error", err)
		apology := c.transcript.Append(NewMessage(RoleAssistant, ErrorReplyText))
		c.emit(&MessageAppendedEvent{Message: apology})
		c.emit(&TurnFailedEvent{Err: err.Error()})
		c.setState(StateIdle)
		return
	}

	if c.session.Adopt(resp.SessionID) {
		c.emit(&SessionAdoptedEvent{SessionID: resp.SessionID})
	}

	reply := NewMessage(RoleAssistant, resp.Response)
	reply.Sources = resp.Sources
	reply.ToolUsed = resp.ToolUsed
	reply = c.transcript.Append(reply)
	c.emit(&MessageAppendedEvent{Message: reply})

	// The clarification question follows the primary reply, never precedes
	// it, and is not auto-spoken.
	if resp.NeedsClarification && resp.ClarificationQuestion != "" {
		clarification := c.transcript.Append(NewMessage(RoleAssistant, resp.ClarificationQuestion))
		c.emit(&MessageAppendedEvent{Message: clarification})
	}

	if c.speaker == nil || c.closed.Load() || resp.Response == "" {
		c.setState(StateIdle)
		return
	}

	c.mu.Lock()
	c.speechGen++
	gen := c.speechGen
	c.setStateLocked(StateSpeaking)
	c.mu.Unlock()

	err = c.speaker.Speak(ctx, resp.Response,
		func() { c.emit(&SpeechStartedEvent{Text: resp.Response}) },
		func() { c.onSpeechEnd(gen) },
	)
	if err != nil {
		c.logger.Warn("speech output failed", "error", err)
		c.onSpeechEnd(gen)
	}
}

// onSpeechEnd clears the speaking state. The generation check keeps a
// superseded utterance's end callback from clobbering a newer turn's state.
func (c *Controller) onSpeechEnd(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speechGen != gen || c.state != StateSpeaking {
		return
	}
	c.setStateLocked(StateIdle)
	c.emit(&SpeechEndedEvent{})
}

// Close tears the conversation view down: active speech stops and no
// further events or utterances are produced. An in-flight request is not
// cancelled; its reply still lands in the transcript.
func (c *Controller) Close() {
	if c.closed.Swap(true) {
		return
	}
	if c.speaker != nil {
		c.speaker.Stop()
	}

	c.evMu.Lock()
	c.evClosed = true
	close(c.events)
	c.evMu.Unlock()
}

func (c *Controller) setState(next TurnState) {
	c.mu.Lock()
	c.setStateLocked(next)
	c.mu.Unlock()
}

// setStateLocked transitions the turn state. Callers hold c.mu.
func (c *Controller) setStateLocked(next TurnState) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	c.emit(&StateChangedEvent{From: prev, To: next})
}

// emit delivers an event without blocking; events are dropped when the
// buffer is full or the controller is closed.
func (c *Controller) emit(ev Event) {
	if c.closed.Load() {
		return
	}
	c.evMu.Lock()
	defer c.evMu.Unlock()
	if c.evClosed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
