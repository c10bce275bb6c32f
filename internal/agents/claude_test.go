package agents

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/sessions"
)

func newTestInvoker(t *testing.T) *Invoker {
	t.Helper()
	p := config.PathsAt(t.TempDir())
	if err := p.EnsureTree(); err != nil {
		t.Fatal(err)
	}
	store := sessions.NewStore(p.SessionsFile(), p.SessionsLockFile())
	return NewInvoker(p, store, 0)
}

func TestResolveSessionFlag(t *testing.T) {
	inv := newTestInvoker(t)

	// No key, no reset: legacy continue flag.
	sf, err := inv.resolveSessionFlag(Request{AgentID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sf.args) != 1 || sf.args[0] != "-c" {
		t.Errorf("no-key args = %v, want [-c]", sf.args)
	}

	// No key, reset: fresh session, no flag at all.
	sf, err = inv.resolveSessionFlag(Request{AgentID: "a", Reset: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(sf.args) != 0 {
		t.Errorf("reset-no-key args = %v, want none", sf.args)
	}

	// Key with no stored entry: create, pass --session-id.
	sf, err = inv.resolveSessionFlag(Request{AgentID: "a", SessionKey: "thread-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sf.args) != 2 || sf.args[0] != "--session-id" {
		t.Fatalf("new-key args = %v, want [--session-id <id>]", sf.args)
	}
	created := sf.args[1]

	// Same key again: resume the stored session.
	sf, err = inv.resolveSessionFlag(Request{AgentID: "a", SessionKey: "thread-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sf.args) != 2 || sf.args[0] != "--resume" || sf.args[1] != created {
		t.Errorf("stored-key args = %v, want [--resume %s]", sf.args, created)
	}

	// Reset with a key: a brand new session ID replaces the old one.
	sf, err = inv.resolveSessionFlag(Request{AgentID: "a", SessionKey: "thread-1", Reset: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(sf.args) != 2 || sf.args[0] != "--session-id" {
		t.Fatalf("reset-key args = %v", sf.args)
	}
	if sf.args[1] == created {
		t.Error("reset should mint a new session ID")
	}
}

func TestClaudeArgs(t *testing.T) {
	inv := newTestInvoker(t)

	req := Request{
		AgentID: "a",
		Agent:   config.AgentConfig{Model: "sonnet"},
		Message: "do the thing",
	}
	sf := sessionFlag{args: []string{"--resume", "abc"}}

	args := inv.claudeArgs(req, sf, true)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--permission-mode default",
		"--model claude-sonnet-4-5-20250929",
		"--output-format stream-json",
		"--resume abc",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	// The prompt is always the final pair.
	if args[len(args)-2] != "-p" || args[len(args)-1] != "do the thing" {
		t.Errorf("prompt should be last: %v", args)
	}

	// Non-streaming drops the output format.
	args = inv.claudeArgs(req, sf, false)
	if strings.Contains(strings.Join(args, " "), "stream-json") {
		t.Errorf("non-streaming args should not request stream-json: %v", args)
	}
}

func TestClaudeArgsMemoryFile(t *testing.T) {
	inv := newTestInvoker(t)

	req := Request{
		AgentID: "a",
		Agent:   config.AgentConfig{Memory: true},
		Message: "hi",
	}

	// Memory enabled but no file on disk: flag omitted.
	args := inv.claudeArgs(req, sessionFlag{}, false)
	if strings.Contains(strings.Join(args, " "), "--append-system-prompt-file") {
		t.Errorf("missing memory file should omit the flag: %v", args)
	}

	// With the file present the flag appears.
	memPath := filepath.Join(inv.paths.MemoryHome, "a.md")
	if err := os.WriteFile(memPath, []byte("remember this"), 0o644); err != nil {
		t.Fatal(err)
	}
	args = inv.claudeArgs(req, sessionFlag{}, false)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--append-system-prompt-file "+memPath) {
		t.Errorf("args missing memory flag: %v", args)
	}
}

func TestIsStaleSessionErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", &cliError{cmd: "claude", stderr: "Error: Session abc not found", err: errors.New("exit 1")}, true},
		{"no such session", &cliError{cmd: "claude", stderr: "no such session: abc", err: errors.New("exit 1")}, true},
		{"case insensitive", &cliError{cmd: "claude", stderr: "SESSION xyz NOT FOUND", err: errors.New("exit 1")}, true},
		{"unrelated failure", &cliError{cmd: "claude", stderr: "rate limit exceeded", err: errors.New("exit 1")}, false},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStaleSessionErr(tt.err); got != tt.want {
				t.Errorf("isStaleSessionErr = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sonnet", "claude-sonnet-4-5-20250929"},
		{"opus", "claude-opus-4-1-20250805"},
		{"haiku", "claude-haiku-4-5-20251001"},
		{"codex", "gpt-5.3-codex"},
		{"claude-sonnet-4-5-20250929", "claude-sonnet-4-5-20250929"},
		{"some-future-model", "some-future-model"},
	}
	for _, tt := range tests {
		if got := ResolveModel(tt.in); got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
