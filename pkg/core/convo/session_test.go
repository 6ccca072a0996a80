package convo

import "testing"

func TestSessionRef_AdoptSetsOnce(t *testing.T) {
	s := NewSessionRef()
	if _, ok := s.ID(); ok {
		t.Fatal("fresh ref should be unset")
	}

	if !s.Adopt("abc123") {
		t.Fatal("first adopt should succeed")
	}
	if s.Adopt("other") {
		t.Fatal("second adopt should be a no-op")
	}

	id, ok := s.ID()
	if !ok || id != "abc123" {
		t.Fatalf("id=%q ok=%v", id, ok)
	}
}

func TestSessionRef_EmptyIDIgnored(t *testing.T) {
	s := NewSessionRef()
	if s.Adopt("") {
		t.Fatal("empty id must not be adopted")
	}
	if _, ok := s.ID(); ok {
		t.Fatal("ref should still be unset")
	}
	if !s.Adopt("abc123") {
		t.Fatal("adopt after ignored empty id should succeed")
	}
}
