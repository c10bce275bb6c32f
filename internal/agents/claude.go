package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// staleSessionPatterns match claude's complaint about a session ID it no
// longer knows. Anything else propagates unchanged so a live session is
// never destroyed by an unrelated failure.
var staleSessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)session.*not found`),
	regexp.MustCompile(`(?i)no such session`),
}

func isStaleSessionErr(err error) bool {
	msg := stderrOf(err)
	if msg == "" {
		msg = err.Error()
	}
	for _, re := range staleSessionPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

// sessionFlag is the resolved session argument pair for one attempt.
type sessionFlag struct {
	args []string
}

// resolveSessionFlag picks the claude session arguments for this request.
// Precedence: explicit reset creates a fresh session; a stored entry is
// resumed; a session key with no entry creates one; no key falls back to
// the legacy continue flag.
func (inv *Invoker) resolveSessionFlag(req Request) (sessionFlag, error) {
	if req.SessionKey == "" {
		if !req.Reset {
			return sessionFlag{args: []string{"-c"}}, nil
		}
		return sessionFlag{}, nil
	}

	if req.Reset {
		id, err := inv.store.Create(req.SessionKey, req.AgentID)
		if err != nil {
			return sessionFlag{}, fmt.Errorf("create session: %w", err)
		}
		return sessionFlag{args: []string{"--session-id", id}}, nil
	}

	if entry, ok := inv.store.Get(req.SessionKey); ok {
		return sessionFlag{args: []string{"--resume", entry.SessionID}}, nil
	}

	id, err := inv.store.Create(req.SessionKey, req.AgentID)
	if err != nil {
		return sessionFlag{}, fmt.Errorf("create session: %w", err)
	}
	return sessionFlag{args: []string{"--session-id", id}}, nil
}

// claudeArgs assembles the full argument list for one attempt.
func (inv *Invoker) claudeArgs(req Request, sf sessionFlag, streaming bool) []string {
	args := []string{"--permission-mode", "default"}
	if req.Agent.Model != "" {
		args = append(args, "--model", ResolveModel(req.Agent.Model))
	}
	if streaming {
		args = append(args, "--output-format", "stream-json")
	}
	if memory := inv.memoryFile(req); memory != "" {
		args = append(args, "--append-system-prompt-file", memory)
	}
	args = append(args, sf.args...)
	args = append(args, "-p", req.Message)
	return args
}

// memoryFile returns the per-agent memory file to append as system prompt,
// when the agent opts into memory and the file exists.
func (inv *Invoker) memoryFile(req Request) string {
	if !req.Agent.Memory {
		return ""
	}
	path := filepath.Join(inv.paths.MemoryHome, req.AgentID+".md")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// claudeEnv is the child environment: inherited, plus the bus coordinates
// the approval hook needs to find its way back.
func (inv *Invoker) claudeEnv(req Request) []string {
	env := append(os.Environ(),
		config.EnvAgentID+"="+req.AgentID,
		config.EnvConfigHome+"="+inv.paths.ConfigHome,
	)
	if req.MessageID != "" {
		env = append(env, config.EnvMessageID+"="+req.MessageID)
	}
	return env
}

// invokeClaude runs the claude CLI, streaming when a partial callback is
// supplied. A stale stored session triggers exactly one recreate-and-retry.
func (inv *Invoker) invokeClaude(ctx context.Context, dir string, req Request) (*Result, error) {
	sf, err := inv.resolveSessionFlag(req)
	if err != nil {
		return nil, err
	}

	result, err := inv.runClaudeOnce(ctx, dir, req, sf)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
		return nil, err
	}

	// One-shot recovery: the stored session ID went stale (claude prunes
	// old conversations). Recreate under the same key and re-invoke.
	if req.SessionKey != "" && !req.Reset && isStaleSessionErr(err) {
		slog.Info("claude session stale, recreating",
			"agent", req.AgentID, "session_key", req.SessionKey)
		id, cerr := inv.store.Create(req.SessionKey, req.AgentID)
		if cerr != nil {
			return nil, fmt.Errorf("recreate session: %w", cerr)
		}
		return inv.runClaudeOnce(ctx, dir, req, sessionFlag{args: []string{"--session-id", id}})
	}

	return nil, err
}

func (inv *Invoker) runClaudeOnce(ctx context.Context, dir string, req Request, sf sessionFlag) (*Result, error) {
	streaming := req.OnPartial != nil
	args := inv.claudeArgs(req, sf, streaming)

	if streaming {
		var acc streamAccumulator
		err := runCLI(ctx, dir, inv.claudeEnv(req), "claude", args, func(line string) {
			if acc.feed(line) {
				req.OnPartial(acc.text())
			}
		})
		if err != nil {
			return nil, err
		}
		return &Result{Text: strings.TrimSpace(acc.final())}, nil
	}

	var out strings.Builder
	err := runCLI(ctx, dir, inv.claudeEnv(req), "claude", args, func(line string) {
		out.WriteString(line)
		out.WriteString("\n")
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: strings.TrimSpace(out.String())}, nil
}
