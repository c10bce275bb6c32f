package dispatch

import (
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// consumeResetFlags checks the global and per-agent reset sentinels.
// Both are deleted when observed; either one forces a fresh conversation
// for this invocation.
func consumeResetFlags(p config.Paths, agentID string) bool {
	reset := false

	if _, err := os.Stat(p.GlobalResetFlag()); err == nil {
		if err := os.Remove(p.GlobalResetFlag()); err == nil || os.IsNotExist(err) {
			slog.Info("global reset flag consumed")
			reset = true
		}
	}

	perAgent := p.AgentResetFlag(agentID)
	if _, err := os.Stat(perAgent); err == nil {
		if err := os.Remove(perAgent); err == nil || os.IsNotExist(err) {
			slog.Info("agent reset flag consumed", "agent", agentID)
			reset = true
		}
	}

	return reset
}
