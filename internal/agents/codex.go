package agents

import (
	"context"
	"os"
	"strings"
)

// codexFallback is returned when codex completes without emitting an
// agent_message event.
const codexFallback = "The agent completed but produced no response."

// invokeCodex runs the codex CLI. Codex has no streaming surface; the
// final text is the last completed agent_message event in the JSON output.
func (inv *Invoker) invokeCodex(ctx context.Context, dir string, req Request) (*Result, error) {
	args := []string{"exec"}
	if !req.Reset {
		args = append(args, "resume", "--last")
	}
	if req.Agent.Model != "" {
		args = append(args, "--model", ResolveModel(req.Agent.Model))
	}
	args = append(args,
		"--skip-git-repo-check",
		"--dangerously-bypass-approvals-and-sandbox",
		"--json",
		req.Message,
	)

	var lines []string
	err := runCLI(ctx, dir, os.Environ(), "codex", args, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(parseCodexOutput(lines))
	if text == "" {
		text = codexFallback
	}
	return &Result{Text: text}, nil
}
