package convo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/invodesk/assist/pkg/core/chat"
)

type fakeResponder struct {
	mu       sync.Mutex
	requests []chat.Request
	resp     *chat.Response
	err      error
	gate     chan struct{} // when non-nil, Respond blocks until closed
}

func (f *fakeResponder) Respond(_ context.Context, req chat.Request) (*chat.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	return &resp, nil
}

func (f *fakeResponder) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeResponder) request(i int) chat.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	stops   int
	autoEnd bool
	endFns  []func()
	err     error
}

func (f *fakeSpeaker) Speak(_ context.Context, text string, onStart, onEnd func()) error {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.spoken = append(f.spoken, text)
	autoEnd := f.autoEnd
	if !autoEnd {
		f.endFns = append(f.endFns, onEnd)
	}
	f.mu.Unlock()

	onStart()
	if autoEnd {
		onEnd()
	}
	return nil
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSpeaker) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	copy(out, f.spoken)
	return out
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmit_FirstTurn_AppendsBothSidesAndAdoptsSession(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{
		Response:  "You have 12 invoices.",
		SessionID: "abc123",
		ToolUsed:  "list_invoices",
	}}
	c := NewController(responder)
	defer c.Close()

	if err := c.Submit(context.Background(), "List all my invoices"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitUntil(t, "turn to settle", func() bool { return c.State() == StateIdle && c.Transcript().Len() == 2 })

	if got := responder.request(0).SessionID; got != "" {
		t.Fatalf("first request carried session_id=%q, want empty", got)
	}

	msgs := c.Transcript().Messages()
	if msgs[0].Role != RoleUser || msgs[0].Content != "List all my invoices" {
		t.Fatalf("user message=%+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "You have 12 invoices." {
		t.Fatalf("assistant message=%+v", msgs[1])
	}
	if msgs[1].ToolUsed != "list_invoices" {
		t.Fatalf("tool_used=%q", msgs[1].ToolUsed)
	}

	id, ok := c.Session().ID()
	if !ok || id != "abc123" {
		t.Fatalf("session id=%q ok=%v", id, ok)
	}
}

func TestSubmit_LaterTurnsCarrySessionAndNeverChangeIt(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{Response: "ok", SessionID: "abc123"}}
	c := NewController(responder)
	defer c.Close()

	c.Submit(context.Background(), "first")
	waitUntil(t, "first turn", func() bool { return c.State() == StateIdle })

	// The server issuing a different id later must not change the adopted one.
	responder.mu.Lock()
	responder.resp = &chat.Response{Response: "ok again", SessionID: "zzz999"}
	responder.mu.Unlock()

	c.Submit(context.Background(), "second")
	waitUntil(t, "second turn", func() bool { return c.Transcript().Len() == 4 })

	if got := responder.request(1).SessionID; got != "abc123" {
		t.Fatalf("second request session_id=%q", got)
	}
	if id, _ := c.Session().ID(); id != "abc123" {
		t.Fatalf("session id changed to %q", id)
	}
}

func TestSubmit_WhileAwaitingReply_Rejected(t *testing.T) {
	gate := make(chan struct{})
	responder := &fakeResponder{resp: &chat.Response{Response: "ok", SessionID: "s"}, gate: gate}
	c := NewController(responder)
	defer c.Close()

	if err := c.Submit(context.Background(), "first"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitUntil(t, "awaiting reply", func() bool { return c.Busy() })

	if err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v, want ErrBusy", err)
	}

	close(gate)
	waitUntil(t, "turn to settle", func() bool { return c.State() == StateIdle })

	if c.Transcript().Len() != 2 {
		t.Fatalf("transcript len=%d, want 2 (rejected turn must not append)", c.Transcript().Len())
	}
	if responder.requestCount() != 1 {
		t.Fatalf("requests=%d, want 1", responder.requestCount())
	}
}

func TestSubmit_BlankInputRejected(t *testing.T) {
	c := NewController(&fakeResponder{resp: &chat.Response{}})
	defer c.Close()

	if err := c.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err=%v, want ErrEmptyInput", err)
	}
	if c.Transcript().Len() != 0 {
		t.Fatalf("transcript len=%d", c.Transcript().Len())
	}
}

func TestSubmit_TransportFailure_AppendsApologyAndSwallowsError(t *testing.T) {
	responder := &fakeResponder{err: errors.New("connection refused")}
	speaker := &fakeSpeaker{autoEnd: true}
	c := NewController(responder, WithSpeaker(speaker))
	defer c.Close()

	if err := c.Submit(context.Background(), "bad"); err != nil {
		t.Fatalf("Submit must not surface the transport failure, got %v", err)
	}
	waitUntil(t, "turn to settle", func() bool { return c.State() == StateIdle && c.Transcript().Len() == 2 })

	msgs := c.Transcript().Messages()
	if msgs[1].Role != RoleAssistant || msgs[1].Content != ErrorReplyText {
		t.Fatalf("apology message=%+v", msgs[1])
	}
	if _, ok := c.Session().ID(); ok {
		t.Fatal("failed turn must not adopt a session id")
	}
	if len(speaker.spokenTexts()) != 0 {
		t.Fatal("failed turn must not trigger speech")
	}
}

func TestSubmit_Clarification_AppendedAfterReplyAndNotSpoken(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{
		Response:              "I found 3 overdue invoices.",
		SessionID:             "s1",
		NeedsClarification:    true,
		ClarificationQuestion: "Which vendor did you mean?",
	}}
	speaker := &fakeSpeaker{autoEnd: true}
	c := NewController(responder, WithSpeaker(speaker))
	defer c.Close()

	c.Submit(context.Background(), "show overdue")
	waitUntil(t, "turn to settle", func() bool { return c.State() == StateIdle && c.Transcript().Len() == 3 })

	msgs := c.Transcript().Messages()
	if msgs[1].Content != "I found 3 overdue invoices." {
		t.Fatalf("primary reply=%q", msgs[1].Content)
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Content != "Which vendor did you mean?" {
		t.Fatalf("clarification=%+v", msgs[2])
	}

	spoken := speaker.spokenTexts()
	if len(spoken) != 1 || spoken[0] != "I found 3 overdue invoices." {
		t.Fatalf("spoken=%v, want primary reply only", spoken)
	}
}

func TestSubmit_SpeakingStateClearsOnUtteranceEnd(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{Response: "totals are ready", SessionID: "s1"}}
	speaker := &fakeSpeaker{}
	c := NewController(responder, WithSpeaker(speaker))
	defer c.Close()

	c.Submit(context.Background(), "totals?")
	waitUntil(t, "speaking", func() bool { return c.Speaking() })

	speaker.mu.Lock()
	end := speaker.endFns[0]
	speaker.mu.Unlock()
	end()

	waitUntil(t, "idle after speech", func() bool { return c.State() == StateIdle })
}

func TestSubmit_SpeakerErrorStillReturnsToIdle(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{Response: "hello", SessionID: "s1"}}
	speaker := &fakeSpeaker{err: errors.New("synthesis unavailable")}
	c := NewController(responder, WithSpeaker(speaker))
	defer c.Close()

	c.Submit(context.Background(), "hi")
	waitUntil(t, "idle after speaker failure", func() bool { return c.State() == StateIdle && c.Transcript().Len() == 2 })
}

func TestSubmitFromVoice_AutoSubmitsAfterDelay(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{Response: "ok", SessionID: "s1"}}
	c := NewController(responder, WithVoiceSubmitDelay(5*time.Millisecond))
	defer c.Close()

	if err := c.SubmitFromVoice(context.Background(), "read me invoice nine"); err != nil {
		t.Fatalf("SubmitFromVoice error: %v", err)
	}
	if c.Transcript().Len() != 0 {
		t.Fatal("voice transcript must not be submitted before the delay")
	}

	waitUntil(t, "voice turn", func() bool { return c.Transcript().Len() == 2 })
	if got := c.Transcript().Messages()[0].Content; got != "read me invoice nine" {
		t.Fatalf("user message=%q", got)
	}
}

func TestSubmitFromVoice_SupersededByTypedSubmit(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{Response: "ok", SessionID: "s1"}}
	c := NewController(responder, WithVoiceSubmitDelay(30*time.Millisecond))
	defer c.Close()

	c.SubmitFromVoice(context.Background(), "voice text")
	if err := c.Submit(context.Background(), "typed text"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	waitUntil(t, "typed turn", func() bool { return c.State() == StateIdle && c.Transcript().Len() >= 2 })
	time.Sleep(60 * time.Millisecond) // past the voice delay

	if c.Transcript().Len() != 2 {
		t.Fatalf("transcript len=%d, superseded voice submission must be dropped", c.Transcript().Len())
	}
	if got := c.Transcript().Messages()[0].Content; got != "typed text" {
		t.Fatalf("user message=%q", got)
	}
}

func TestClose_StopsSpeechAndLateReplyHasNoSideEffects(t *testing.T) {
	gate := make(chan struct{})
	responder := &fakeResponder{resp: &chat.Response{Response: "late reply", SessionID: "s1"}, gate: gate}
	speaker := &fakeSpeaker{autoEnd: true}
	c := NewController(responder, WithSpeaker(speaker))

	c.Submit(context.Background(), "question")
	waitUntil(t, "awaiting reply", func() bool { return c.Busy() })

	c.Close()
	if speaker.stops != 1 {
		t.Fatalf("stops=%d, want 1", speaker.stops)
	}

	close(gate)
	waitUntil(t, "late reply applied", func() bool { return c.Transcript().Len() == 2 })

	if len(speaker.spokenTexts()) != 0 {
		t.Fatal("no speech may start after teardown")
	}

	// The events channel is closed; draining it must terminate.
	for range c.Events() {
	}
}

func TestEvents_OneTurnEmitsInCausalOrder(t *testing.T) {
	responder := &fakeResponder{resp: &chat.Response{Response: "done", SessionID: "abc123"}}
	speaker := &fakeSpeaker{autoEnd: true}
	c := NewController(responder, WithSpeaker(speaker))

	c.Submit(context.Background(), "go")
	waitUntil(t, "turn to settle", func() bool { return c.State() == StateIdle && c.Transcript().Len() == 2 })
	c.Close()

	var types []string
	for ev := range c.Events() {
		types = append(types, ev.EventType())
	}

	want := []string{
		"state.changed",     // idle -> awaiting_reply
		"message.appended",  // user
		"session.adopted",   // abc123
		"message.appended",  // assistant
		"state.changed",     // awaiting_reply -> speaking
		"speech.started",
		"state.changed",     // speaking -> idle
		"speech.ended",
	}
	if len(types) != len(want) {
		t.Fatalf("events=%v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events[%d]=%q, want %q (all: %v)", i, types[i], want[i], types)
		}
	}
}

func TestWithGreeting_SeedsSystemMessage(t *testing.T) {
	c := NewController(&fakeResponder{resp: &chat.Response{}},
		WithGreeting("Hi! Ask me about your invoices."))
	defer c.Close()

	msgs := c.Transcript().Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleSystem {
		t.Fatalf("messages=%+v", msgs)
	}
}
