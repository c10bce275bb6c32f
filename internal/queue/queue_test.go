package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	p := config.PathsAt(t.TempDir())
	if err := p.EnsureTree(); err != nil {
		t.Fatal(err)
	}
	return New(p, config.QueueConfig{MaxRetries: 3, StaleAfterMinute: 15})
}

func TestEnqueueClaimComplete(t *testing.T) {
	q := newTestQueue(t)

	msg := &Message{
		Channel:   "discord",
		Sender:    "alice",
		Message:   "hello",
		MessageID: "m1",
	}
	if err := q.Enqueue(msg); err != nil {
		t.Fatal(err)
	}

	claimed, err := q.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed message, got nil")
	}
	if claimed.Msg.MessageID != "m1" || claimed.Msg.Message != "hello" {
		t.Errorf("claimed message mismatch: %+v", claimed.Msg)
	}
	if claimed.Msg.Timestamp == 0 {
		t.Error("Enqueue should stamp the message")
	}

	// The file moved; a second claim finds nothing.
	if again, _ := q.Claim(); again != nil {
		t.Errorf("second claim should be empty, got %+v", again.Msg)
	}

	if err := q.Complete(claimed); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(claimed.Path); !os.IsNotExist(err) {
		t.Error("Complete should remove the processing file")
	}
}

func TestClaimOldestFirst(t *testing.T) {
	q := newTestQueue(t)

	for _, id := range []string{"first", "second"} {
		if err := q.Enqueue(&Message{Channel: "discord", MessageID: id, Message: id}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	claimed, err := q.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.Msg.MessageID != "first" {
		t.Fatalf("expected oldest message first, got %+v", claimed)
	}
}

func TestFailRequeuesThenDeadLetters(t *testing.T) {
	q := newTestQueue(t)

	if err := q.Enqueue(&Message{Channel: "discord", MessageID: "m1"}); err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := q.Claim()
		if err != nil || claimed == nil {
			t.Fatalf("attempt %d: claim failed: %v %v", attempt, claimed, err)
		}
		requeued, err := q.Fail(claimed)
		if err != nil {
			t.Fatalf("attempt %d: fail: %v", attempt, err)
		}
		wantRequeue := attempt < 3
		if requeued != wantRequeue {
			t.Errorf("attempt %d: requeued = %v, want %v", attempt, requeued, wantRequeue)
		}
	}

	entries, err := q.List("dead-letter")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 dead-letter entry, got %d", len(entries))
	}
	if entries[0].RetryCount != 3 {
		t.Errorf("dead-letter retryCount = %d, want 3", entries[0].RetryCount)
	}
}

func TestRecoverStuck(t *testing.T) {
	q := newTestQueue(t)

	if err := q.Enqueue(&Message{Channel: "discord", MessageID: "stuck"}); err != nil {
		t.Fatal(err)
	}
	claimed, err := q.Claim()
	if err != nil || claimed == nil {
		t.Fatal("claim failed")
	}

	// Fresh claims are left alone.
	if n, err := q.RecoverStuck(); err != nil || n != 0 {
		t.Fatalf("fresh claim recovered: n=%d err=%v", n, err)
	}

	// Age the file past the threshold.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(claimed.Path, old, old); err != nil {
		t.Fatal(err)
	}

	n, err := q.RecoverStuck()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}

	// Back in incoming with an incremented retry count.
	again, err := q.Claim()
	if err != nil || again == nil {
		t.Fatal("recovered message should be claimable")
	}
	if again.Msg.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", again.Msg.RetryCount)
	}
}

func TestWriteResponseRemovesStreamingPartial(t *testing.T) {
	q := newTestQueue(t)

	partial := &StreamingPartial{
		Channel:    "discord",
		MessageID:  "m1",
		Partial:    "thinking",
		Cancelable: true,
	}
	if err := q.WriteStreaming(partial); err != nil {
		t.Fatal(err)
	}

	items, err := q.ListOutgoing("discord")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Partial == nil {
		t.Fatalf("want one partial, got %+v", items)
	}
	if items[0].Partial.Status != "streaming" {
		t.Errorf("partial status = %q", items[0].Partial.Status)
	}

	if err := q.WriteResponse(&Response{Channel: "discord", MessageID: "m1", Message: "done"}); err != nil {
		t.Fatal(err)
	}

	items, err = q.ListOutgoing("discord")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Response == nil {
		t.Fatalf("want exactly the final response, got %+v", items)
	}
	if items[0].Response.Message != "done" {
		t.Errorf("response text = %q", items[0].Response.Message)
	}
}

func TestListOutgoingFiltersByChannel(t *testing.T) {
	q := newTestQueue(t)

	if err := q.WriteResponse(&Response{Channel: "discord", MessageID: "m1", Message: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := q.WriteResponse(&Response{Channel: "slack", MessageID: "m2", Message: "b"}); err != nil {
		t.Fatal(err)
	}

	items, err := q.ListOutgoing("discord")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Response.MessageID != "m1" {
		t.Fatalf("channel filter broken: %+v", items)
	}
}

func TestCancelSignalRoundTrip(t *testing.T) {
	q := newTestQueue(t)

	if err := q.PublishCancel("m1"); err != nil {
		t.Fatal(err)
	}
	ids := q.ListCancels()
	if len(ids) != 1 || ids[0] != "m1" {
		t.Fatalf("ListCancels = %v", ids)
	}

	if !q.ConsumeCancel("m1") {
		t.Error("first consume should succeed")
	}
	if q.ConsumeCancel("m1") {
		t.Error("second consume should report missing")
	}
}

func TestClaimCorruptFile(t *testing.T) {
	q := newTestQueue(t)

	payload := []byte("{not json")
	path := filepath.Join(q.incoming, "discord_123_0000.json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	claimed, err := q.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil {
		t.Fatal("corrupt file should still be claimed")
	}
	if claimed.Msg != nil {
		t.Errorf("corrupt claim should carry no message, got %+v", claimed.Msg)
	}

	// Failing a corrupt claim moves it straight to dead-letter with the
	// original bytes intact for inspection.
	requeued, err := q.Fail(claimed)
	if err != nil {
		t.Fatal(err)
	}
	if requeued {
		t.Error("corrupt payload should not be requeued")
	}
	data, err := os.ReadFile(filepath.Join(q.deadLetter, "discord_123_0000.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Errorf("dead-letter bytes = %q, want the original payload", data)
	}
}

func TestMessageJSONShape(t *testing.T) {
	data, err := json.Marshal(&Message{Channel: "discord", MessageID: "m1", SessionKey: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"channel"`, `"messageId"`, `"sessionKey"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshalled message missing %s: %s", key, data)
		}
	}
}
