package agents

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// claudeMemoryTemplate seeds a fresh agent working directory so the CLI has
// project instructions on first run.
const claudeMemoryTemplate = `# Agent workspace

This directory belongs to a tinyclaw agent. Conversation context arrives
through the tinyclaw bus; files written here persist between invocations.
`

// resolveWorkDir returns the agent's working directory: the configured
// working_directory (absolute as-is, relative joined with the workspace
// root), or the canonical per-agent directory. The directory is created and
// seeded on first use.
func resolveWorkDir(p config.Paths, agentID string, agent config.AgentConfig) (string, error) {
	dir := agent.WorkingDirectory
	switch {
	case dir == "":
		dir = p.AgentDir(agentID)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(p.Workspace, dir)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create working directory: %w", err)
		}
		seedWorkDir(dir, agent.Provider)
	}
	return dir, nil
}

// seedWorkDir drops the memory template for the provider's CLI. Best
// effort: a failed seed just means the agent starts without instructions.
func seedWorkDir(dir string, provider config.Provider) {
	name := "CLAUDE.md"
	if provider == config.ProviderOpenAI {
		name = "AGENTS.md"
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return
	}
	_ = os.WriteFile(path, []byte(claudeMemoryTemplate), 0o644)
}
