// Package events appends observability records to the config home's
// events/ and chats/ sinks. Everything here is best-effort: a failed
// append is logged and dropped, never propagated into the message path.
package events

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// Record is one JSONL line in the daily events file.
type Record struct {
	Time      string `json:"time"`
	Kind      string `json:"kind"`
	Channel   string `json:"channel,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Event kinds emitted by the bus.
const (
	KindMessageReceived  = "message_received"
	KindAgentInvoked     = "agent_invoked"
	KindResponseSent     = "response_sent"
	KindMessageFailed    = "message_failed"
	KindDeadLettered     = "dead_lettered"
	KindApprovalDecision = "approval_decision"
	KindCancelRequested  = "cancel_requested"
)

// Sink writes to the append-only observability directories.
type Sink struct {
	eventsDir string
	chatsDir  string
}

// NewSink builds a sink over the standard layout.
func NewSink(p config.Paths) *Sink {
	return &Sink{eventsDir: p.EventsDir(), chatsDir: p.ChatsDir()}
}

// Emit appends one record to today's events file.
func (s *Sink) Emit(r Record) {
	r.Time = time.Now().UTC().Format(time.RFC3339)
	path := filepath.Join(s.eventsDir, time.Now().UTC().Format("2006-01-02")+".jsonl")
	s.appendLine(path, r)
}

// ChatLine is one transcript line in a per-session chat file.
type ChatLine struct {
	Time  string `json:"time"`
	Role  string `json:"role"` // "user" or "agent"
	Agent string `json:"agent,omitempty"`
	Text  string `json:"text"`
}

// Chat appends a transcript line for a session.
func (s *Sink) Chat(sessionKey, role, agent, text string) {
	if sessionKey == "" {
		return
	}
	line := ChatLine{
		Time:  time.Now().UTC().Format(time.RFC3339),
		Role:  role,
		Agent: agent,
		Text:  text,
	}
	path := filepath.Join(s.chatsDir, sanitizeKey(sessionKey)+".jsonl")
	s.appendLine(path, line)
}

func (s *Sink) appendLine(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Debug("events: append failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		slog.Debug("events: write failed", "path", path, "error", err)
	}
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}
