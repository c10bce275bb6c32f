package channels

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPendingStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending-messages.json")

	s := NewPendingStore(path)
	s.Put("m1", PendingMessage{ChannelID: "c1", UserID: "u1", IsDM: true})

	got, ok := s.Get("m1")
	if !ok || got.ChannelID != "c1" || !got.IsDM {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if got.Timestamp == 0 {
		t.Error("Put should stamp the entry")
	}

	// A fresh store over the same file sees the persisted entry.
	reloaded := NewPendingStore(path)
	if _, ok := reloaded.Get("m1"); !ok {
		t.Error("entry should survive reload")
	}

	reloaded.Delete("m1")
	if _, ok := reloaded.Get("m1"); ok {
		t.Error("entry should be gone after delete")
	}
}

func TestPendingStorePrune(t *testing.T) {
	s := NewPendingStore(filepath.Join(t.TempDir(), "pending.json"))

	s.Put("fresh", PendingMessage{ChannelID: "c1"})
	s.Put("old", PendingMessage{
		ChannelID: "c2",
		Timestamp: time.Now().Add(-4 * 24 * time.Hour).UnixMilli(),
	})

	if removed := s.Prune(); removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	if _, ok := s.Get("old"); ok {
		t.Error("old entry should be pruned")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("fresh entry should survive")
	}
}

func TestThreadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot-threads.json")

	r := NewThreadRegistry(path)
	if r.Owns("t1") {
		t.Error("empty registry owns nothing")
	}
	r.Register("t1", "coder")
	if !r.Owns("t1") {
		t.Error("registered thread should be owned")
	}
	if agent, ok := r.Agent("t1"); !ok || agent != "coder" {
		t.Errorf("Agent = %q, %v, want coder", agent, ok)
	}

	// Re-registering must not overwrite the originating agent.
	r.Register("t1", "other")
	if agent, _ := r.Agent("t1"); agent != "coder" {
		t.Errorf("Agent after re-register = %q, want coder", agent)
	}

	// An unrouted conversation is owned but carries no agent.
	r.Register("t2", "")
	if agent, ok := r.Agent("t2"); !ok || agent != "" {
		t.Errorf("unrouted Agent = %q, %v", agent, ok)
	}

	reloaded := NewThreadRegistry(path)
	if !reloaded.Owns("t1") {
		t.Error("ownership should survive reload")
	}
	if agent, _ := reloaded.Agent("t1"); agent != "coder" {
		t.Errorf("reloaded Agent = %q, want coder", agent)
	}
}
