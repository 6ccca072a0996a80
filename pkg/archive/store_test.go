package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/invodesk/assist/pkg/core/convo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "assist.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user := convo.NewMessage(convo.RoleUser, "list overdue invoices")
	reply := convo.NewMessage(convo.RoleAssistant, "You have 3 overdue invoices.")
	reply.Sources = []string{"invoice-1042", "invoice-1043"}
	reply.ToolUsed = "invoice_search"
	reply.Timestamp = user.Timestamp.Add(time.Second)

	if err := store.Append(ctx, "sess-1", "", user); err != nil {
		t.Fatalf("Append(user) error = %v", err)
	}
	if err := store.Append(ctx, "sess-1", "", reply); err != nil {
		t.Fatalf("Append(reply) error = %v", err)
	}
	other := convo.NewMessage(convo.RoleUser, "unrelated")
	if err := store.Append(ctx, "sess-2", "doc-9", other); err != nil {
		t.Fatalf("Append(other) error = %v", err)
	}

	got, err := store.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Session() returned %d messages, want 2", len(got))
	}
	if got[0].Content != "list overdue invoices" || got[0].Role != convo.RoleUser {
		t.Errorf("first message = %+v", got[0])
	}
	if got[1].ToolUsed != "invoice_search" {
		t.Errorf("tool_used = %q, want invoice_search", got[1].ToolUsed)
	}
	if len(got[1].Sources) != 2 || got[1].Sources[0] != "invoice-1042" {
		t.Errorf("sources = %v", got[1].Sources)
	}
	if !got[1].Timestamp.After(got[0].Timestamp) {
		t.Error("messages not in chronological order")
	}
}

func TestSessionWithNoMessagesIsEmpty(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Session(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Session() returned %d messages, want 0", len(got))
	}
}

func TestRecentReturnsLatestOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, text := range []string{"one", "two", "three", "four"} {
		msg := convo.NewMessage(convo.RoleUser, text)
		msg.Timestamp = base.Add(time.Duration(i) * time.Second)
		if err := store.Append(ctx, "sess-1", "", msg); err != nil {
			t.Fatalf("Append(%q) error = %v", text, err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d messages, want 2", len(got))
	}
	if got[0].Content != "three" || got[1].Content != "four" {
		t.Errorf("Recent() = [%q, %q], want [three, four]", got[0].Content, got[1].Content)
	}
}

func TestArchiveSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assist.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	msg := convo.NewMessage(convo.RoleAssistant, "archived reply")
	if err := store.Append(context.Background(), "sess-1", "", msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Session(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "archived reply" {
		t.Errorf("reopened archive = %+v", got)
	}
}
