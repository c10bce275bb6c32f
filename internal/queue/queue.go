package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

const (
	// DefaultMaxRetries is how many delivery attempts a message gets before
	// it is moved to dead-letter.
	DefaultMaxRetries = 3

	// DefaultStaleAfter is how long a file may sit in processing/ before it
	// is treated as an abandoned claim from a crashed dispatcher.
	DefaultStaleAfter = 15 * time.Minute
)

// Queue provides at-least-once delivery of message files between producers
// (adapters) and the dispatcher. Ownership of a file is transferred by
// atomic rename; a successful rename is the claim.
type Queue struct {
	incoming   string
	processing string
	outgoing   string
	deadLetter string
	cancel     string
	tmp        string
	maxRetries int
	staleAfter time.Duration
}

// New builds a Queue over the standard directory layout.
func New(p config.Paths, qc config.QueueConfig) *Queue {
	maxRetries := qc.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	staleAfter := time.Duration(qc.StaleAfterMinute) * time.Minute
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Queue{
		incoming:   p.IncomingDir(),
		processing: p.ProcessingDir(),
		outgoing:   p.OutgoingDir(),
		deadLetter: p.DeadLetterDir(),
		cancel:     p.CancelDir(),
		tmp:        p.QueueTmpDir(),
		maxRetries: maxRetries,
		staleAfter: staleAfter,
	}
}

// OutgoingDir exposes the outgoing directory for adapter polling.
func (q *Queue) OutgoingDir() string { return q.outgoing }

// writeAtomic writes data to a temp file in the queue tmp dir (same
// filesystem) and renames it to dest. Readers filtering on the final
// extension never observe a partial write.
func (q *Queue) writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(q.tmp, "write-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	cleanup = false
	return nil
}

// Enqueue publishes a message into incoming/. The filename prefix encodes
// the channel; the remainder (epoch ms plus random suffix) keeps it unique
// across concurrent producers.
func (q *Queue) Enqueue(msg *Message) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	name := fmt.Sprintf("%s_%d_%04d.json", msg.Channel, time.Now().UnixMilli(), rand.Intn(10000))
	if err := q.writeAtomic(filepath.Join(q.incoming, name), data); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.MessageID, err)
	}
	return nil
}

// Claimed is a message the dispatcher owns: the file now lives in
// processing/ and no other dispatcher can claim it.
type Claimed struct {
	Msg  *Message
	Path string // location in processing/
}

// Claim lists incoming/ oldest-first and attempts to take ownership of the
// first message via rename into processing/. A rename that fails because the
// file vanished means another dispatcher won the race; the next file is
// tried. Returns nil when the queue is empty.
func (q *Queue) Claim() (*Claimed, error) {
	names, err := q.listByModTime(q.incoming, ".json")
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		src := filepath.Join(q.incoming, name)
		dst := filepath.Join(q.processing, name)
		if err := os.Rename(src, dst); err != nil {
			// Lost the race or the file was retried away. Skip.
			slog.Debug("queue: claim race, skipping", "file", name)
			continue
		}

		claimed := &Claimed{Path: dst}
		data, err := os.ReadFile(dst)
		if err == nil {
			var msg Message
			if jerr := json.Unmarshal(data, &msg); jerr == nil {
				claimed.Msg = &msg
				return claimed, nil
			}
		}
		// Corrupt or unreadable payload: claimed with Msg nil. The
		// dispatcher fails it, which moves it to dead-letter as-is.
		slog.Warn("queue: claimed corrupt message file", "file", name)
		return claimed, nil
	}
	return nil, nil
}

// Complete deletes the processing file after its response has been written.
func (q *Queue) Complete(c *Claimed) error {
	if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("complete %s: %w", filepath.Base(c.Path), err)
	}
	return nil
}

// Release returns a claimed message to incoming/ untouched. Used on
// graceful shutdown so an interrupted claim costs no retry.
func (q *Queue) Release(c *Claimed) error {
	name := filepath.Base(c.Path)
	if err := os.Rename(c.Path, filepath.Join(q.incoming, name)); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// Fail records a failed attempt: retryCount is incremented in place, then
// the file is returned to incoming/ for another attempt or moved to
// dead-letter/ once retries are exhausted. Reports whether it was requeued.
func (q *Queue) Fail(c *Claimed) (bool, error) {
	if c.Msg == nil {
		// Unparseable payload. Retrying cannot help, and rewriting would
		// destroy the bytes an operator needs to inspect; move it as-is.
		name := filepath.Base(c.Path)
		if err := os.Rename(c.Path, filepath.Join(q.deadLetter, name)); err != nil {
			return false, fmt.Errorf("dead-letter %s: %w", name, err)
		}
		slog.Warn("queue: corrupt message dead-lettered", "file", name)
		return false, nil
	}

	msg := c.Msg
	msg.RetryCount++

	data, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("marshal retry: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0o644); err != nil {
		return false, fmt.Errorf("update retry count: %w", err)
	}

	name := filepath.Base(c.Path)
	if msg.RetryCount < q.maxRetries {
		if err := os.Rename(c.Path, filepath.Join(q.incoming, name)); err != nil {
			return false, fmt.Errorf("requeue %s: %w", name, err)
		}
		return true, nil
	}
	if err := os.Rename(c.Path, filepath.Join(q.deadLetter, name)); err != nil {
		return false, fmt.Errorf("dead-letter %s: %w", name, err)
	}
	slog.Warn("queue: message dead-lettered",
		"file", name, "message_id", msg.MessageID, "retries", msg.RetryCount)
	return false, nil
}

// RecoverStuck scans processing/ for files older than the stale threshold.
// Each one is a crashed claim: it goes back through the retry rule exactly
// as a failed attempt would. Returns how many files were recovered.
func (q *Queue) RecoverStuck() (int, error) {
	entries, err := os.ReadDir(q.processing)
	if err != nil {
		return 0, fmt.Errorf("scan processing: %w", err)
	}

	recovered := 0
	cutoff := time.Now().Add(-q.staleAfter)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(q.processing, e.Name())
		claimed := &Claimed{Path: path}
		if data, rerr := os.ReadFile(path); rerr == nil {
			var msg Message
			if json.Unmarshal(data, &msg) == nil {
				claimed.Msg = &msg
			}
		}
		requeued, ferr := q.Fail(claimed)
		if ferr != nil {
			slog.Warn("queue: stuck file recovery failed", "file", e.Name(), "error", ferr)
			continue
		}
		slog.Info("queue: recovered stuck file", "file", e.Name(), "requeued", requeued)
		recovered++
	}
	return recovered, nil
}

// WriteResponse writes the final response into outgoing/ and removes any
// streaming partial for the same message.
func (q *Queue) WriteResponse(resp *Response) error {
	if resp.Timestamp == 0 {
		resp.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%d.json", resp.Channel, resp.MessageID, time.Now().UnixMilli())
	if err := q.writeAtomic(filepath.Join(q.outgoing, name), data); err != nil {
		return fmt.Errorf("write response %s: %w", resp.MessageID, err)
	}
	q.RemoveStreaming(resp.Channel, resp.MessageID)
	return nil
}

// streamingPath is stable per message so partials overwrite in place.
func (q *Queue) streamingPath(channel, messageID string) string {
	return filepath.Join(q.outgoing, fmt.Sprintf("%s_%s.streaming", channel, messageID))
}

// WriteStreaming overwrites the streaming partial for a message with the
// latest accumulated text.
func (q *Queue) WriteStreaming(p *StreamingPartial) error {
	p.Status = "streaming"
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal partial: %w", err)
	}
	return q.writeAtomic(q.streamingPath(p.Channel, p.MessageID), data)
}

// RemoveStreaming deletes the streaming partial for a message, if present.
func (q *Queue) RemoveStreaming(channel, messageID string) {
	_ = os.Remove(q.streamingPath(channel, messageID))
}

// PublishCancel signals the dispatcher to abort the in-flight invocation
// for a message. Idempotent: repeated cancels rewrite the same file.
func (q *Queue) PublishCancel(messageID string) error {
	sig := CancelSignal{MessageID: messageID, Timestamp: time.Now().UnixMilli()}
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal cancel: %w", err)
	}
	dest := filepath.Join(q.cancel, messageID+".json")
	if err := q.writeAtomic(dest, data); err != nil {
		return fmt.Errorf("publish cancel %s: %w", messageID, err)
	}
	return nil
}

// ConsumeCancel reads and removes a cancel signal file. Returns false when
// the file is missing or unreadable (racing consumers).
func (q *Queue) ConsumeCancel(messageID string) bool {
	path := filepath.Join(q.cancel, messageID+".json")
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_ = os.Remove(path)
	return true
}

// ListCancels returns the message IDs with a pending cancel signal.
func (q *Queue) ListCancels() []string {
	names, err := q.listByModTime(q.cancel, ".json")
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		ids = append(ids, strings.TrimSuffix(n, ".json"))
	}
	return ids
}

// QueueEntry describes one file for operator inspection (tinyclaw queue ls).
type QueueEntry struct {
	Name       string
	MessageID  string
	Channel    string
	RetryCount int
	ModTime    time.Time
}

// List returns entries in one of the queue directories ("incoming",
// "processing", "dead-letter").
func (q *Queue) List(which string) ([]QueueEntry, error) {
	var dir string
	switch which {
	case "incoming":
		dir = q.incoming
	case "processing":
		dir = q.processing
	case "dead-letter":
		dir = q.deadLetter
	default:
		return nil, fmt.Errorf("unknown queue %q", which)
	}

	names, err := q.listByModTime(dir, ".json")
	if err != nil {
		return nil, err
	}
	out := make([]QueueEntry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		entry := QueueEntry{Name: name}
		if info, err := os.Stat(path); err == nil {
			entry.ModTime = info.ModTime()
		}
		if data, err := os.ReadFile(path); err == nil {
			var msg Message
			if json.Unmarshal(data, &msg) == nil {
				entry.MessageID = msg.MessageID
				entry.Channel = msg.Channel
				entry.RetryCount = msg.RetryCount
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// listByModTime lists filenames with the given extension ordered by
// modification time, oldest first. Files that vanish mid-listing are
// skipped; that's a racing claim or delete, not an error.
func (q *Queue) listByModTime(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	type fileAge struct {
		name string
		mod  time.Time
	}
	files := make([]fileAge, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{e.Name(), info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}
