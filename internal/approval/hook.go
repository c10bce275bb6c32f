package approval

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

const decisionPollInterval = 2 * time.Second

// HookInput is the JSON the agent CLI writes to the hook's stdin before
// each tool use.
type HookInput struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

// HookOutput is the permission decision the CLI reads from stdout.
type HookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

func allowOutput(reason string) *HookOutput {
	return &HookOutput{hookSpecificOutput{
		HookEventName:            "PreToolUse",
		PermissionDecision:       "allow",
		PermissionDecisionReason: reason,
	}}
}

func denyOutput(reason string) *HookOutput {
	return &HookOutput{hookSpecificOutput{
		HookEventName:            "PreToolUse",
		PermissionDecision:       "deny",
		PermissionDecisionReason: reason,
	}}
}

// agentDirFor resolves the agent's working directory the same way the
// invoker does: a configured working_directory is taken as-is when
// absolute and joined with the workspace root when relative. The hook and
// the invoker must agree here or layer 3 reads the wrong settings file.
func agentDirFor(p config.Paths, settings *config.Settings, agentID string) string {
	a, ok := settings.Agent(agentID)
	if !ok || a.WorkingDirectory == "" {
		return p.AgentDir(agentID)
	}
	if filepath.IsAbs(a.WorkingDirectory) {
		return a.WorkingDirectory
	}
	return filepath.Join(p.Workspace, a.WorkingDirectory)
}

// bashCommand extracts the command string from Bash tool input.
func bashCommand(input json.RawMessage) string {
	var fields struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(input, &fields)
	return fields.Command
}

// summarize renders tool input for the approval prompt.
func summarize(toolName string, input json.RawMessage) string {
	if toolName == "Bash" {
		if cmd := bashCommand(input); cmd != "" {
			return cmd
		}
	}
	s := string(input)
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return s
}

// RunHook is the pre-tool-use gate. It reads the tool use from stdin,
// consults the allow-list layers, and when none match publishes a pending
// request and blocks on the operator's decision file. The emitted JSON on
// stdout is the CLI's permission decision; the hook always exits 0.
func RunHook(p config.Paths, stdin io.Reader, stdout io.Writer) error {
	data, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read hook input: %w", err)
	}
	var input HookInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parse hook input: %w", err)
	}

	agentID := os.Getenv(config.EnvAgentID)
	messageID := os.Getenv(config.EnvMessageID)

	settings, err := config.LoadSettings(p)
	if err != nil {
		return err
	}

	agentDir := agentDirFor(p, settings, agentID)

	command := bashCommand(input.ToolInput)
	pattern := ComputePattern(input.ToolName, command)

	out := decide(p, settings, agentID, agentDir, messageID, input, pattern, command)
	return json.NewEncoder(stdout).Encode(out)
}

func decide(p config.Paths, settings *config.Settings, agentID, agentDir, messageID string, input HookInput, pattern, command string) *HookOutput {
	switch CheckPolicy(settings, agentID, agentDir, input.ToolName, command) {
	case PolicyOpen:
		return allowOutput("no allow-list configured")
	case PolicyAllow:
		return allowOutput("allow-list match: " + pattern)
	}

	req := &PendingRequest{
		RequestID:        fmt.Sprintf("%d_%d", time.Now().Unix(), os.Getpid()),
		ToolName:         input.ToolName,
		ToolPattern:      pattern,
		ToolInputSummary: summarize(input.ToolName, input.ToolInput),
		AgentID:          agentID,
		MessageID:        messageID,
		Timestamp:        time.Now().UnixMilli(),
	}
	if err := WritePending(p, req); err != nil {
		slog.Error("hook: failed to publish approval request", "error", err)
		return denyOutput("approval request could not be published")
	}

	decision := awaitDecision(p, req.RequestID, time.Duration(settings.Approvals.TimeoutSeconds)*time.Second)
	RemoveRequest(p, req.RequestID)

	if decision == nil {
		return denyOutput("approval timed out")
	}
	switch decision.Decision {
	case DecisionAllow:
		return allowOutput("approved by operator")
	case DecisionAlwaysAllow:
		if err := AppendAgentAllowList(agentDir, pattern); err != nil {
			slog.Warn("hook: failed to persist agent allow-list", "error", err)
		}
		return allowOutput("approved and remembered for " + agentID)
	case DecisionAlwaysAllowAll:
		if err := AppendGlobalAllowList(p, pattern); err != nil {
			slog.Warn("hook: failed to persist global allow-list", "error", err)
		}
		return allowOutput("approved and remembered globally")
	default:
		return denyOutput("denied by operator")
	}
}

// awaitDecision polls the decisions directory until the operator answers
// or the timeout lapses.
func awaitDecision(p config.Paths, requestID string, timeout time.Duration) *DecisionFile {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d, err := ReadDecision(p, requestID)
		if err != nil {
			slog.Debug("hook: decision read failed", "error", err)
		}
		if d != nil {
			return d
		}
		time.Sleep(decisionPollInterval)
	}
	return nil
}
