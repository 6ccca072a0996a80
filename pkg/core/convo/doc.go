// Package convo implements the conversational session core of the invoice
// console assistant: an ordered append-only transcript, a set-once session
// identity, and a turn controller that drives one request/response cycle
// per user-initiated turn.
//
// # Architecture
//
// The controller coordinates three independently timed actors around one
// transcript: text or voice input, the remote chat request, and speech
// output. Input and output are injected as narrow ports so the controller
// can be exercised with deterministic fakes.
//
//	typed text ──┐
//	             ├─> Controller ──append──> Transcript
//	voice text ──┘       │
//	                     ├──────> Responder (remote chat call)
//	                     └──────> Speaker   (speech output slot)
//
// # Turn state machine
//
// Each controller moves through:
//
//	IDLE → AWAITING_REPLY → SPEAKING → IDLE
//	                └───────(no speech)──> IDLE
//
// Submission is rejected while AWAITING_REPLY, which serializes turns: at
// most one remote request is ever outstanding per transcript. Recording
// state is orthogonal and lives in the capture adapter.
//
// # Usage
//
//	ctrl := convo.NewController(client.Global(),
//	    convo.WithSpeaker(speaker))
//	go func() {
//	    for event := range ctrl.Events() {
//	        switch e := event.(type) {
//	        case *convo.MessageAppendedEvent:
//	            render(e.Message)
//	        }
//	    }
//	}()
//	ctrl.Submit(ctx, "List all my invoices")
package convo
