package convo

import (
	"testing"
)

func TestTranscript_AppendPreservesOrder(t *testing.T) {
	tr := NewTranscript()
	tr.Append(NewMessage(RoleUser, "one"))
	tr.Append(NewMessage(RoleAssistant, "two"))
	tr.Append(NewMessage(RoleUser, "three"))

	msgs := tr.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len=%d", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Fatalf("msgs[%d]=%q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestTranscript_StoredMessageIsIsolatedFromCaller(t *testing.T) {
	tr := NewTranscript()
	msg := NewMessage(RoleAssistant, "reply")
	msg.Sources = []string{"invoice-1.pdf"}
	tr.Append(msg)

	// Mutating the caller's slice must not reach the stored entry.
	msg.Sources[0] = "mutated"

	got := tr.Messages()[0]
	if got.Sources[0] != "invoice-1.pdf" {
		t.Fatalf("stored sources mutated: %q", got.Sources[0])
	}

	// Mutating a read copy must not reach the stored entry either.
	got.Sources[0] = "mutated again"
	if tr.Messages()[0].Sources[0] != "invoice-1.pdf" {
		t.Fatal("read copy shares backing array with store")
	}
}

func TestTranscript_Last(t *testing.T) {
	tr := NewTranscript()
	if _, ok := tr.Last(); ok {
		t.Fatal("empty transcript should have no last message")
	}

	tr.Append(NewMessage(RoleUser, "hello"))
	tr.Append(NewMessage(RoleAssistant, "hi"))

	last, ok := tr.Last()
	if !ok || last.Content != "hi" || last.Role != RoleAssistant {
		t.Fatalf("last=%+v ok=%v", last, ok)
	}
	if tr.Len() != 2 {
		t.Fatalf("len=%d", tr.Len())
	}
}
