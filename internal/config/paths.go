package config

import (
	"os"
	"path/filepath"
)

// Env var names consumed by every tinyclaw process.
const (
	EnvConfigHome = "TINYCLAW_CONFIG_HOME"
	EnvWorkspace  = "TINYCLAW_CONFIG_WORKSPACE"
	EnvMemoryHome = "TINYCLAW_MEMORY_HOME"
	EnvAgentID    = "TINYCLAW_AGENT_ID"
	EnvMessageID  = "TINYCLAW_MESSAGE_ID"
)

// Paths is the directory layout shared by all tinyclaw processes.
// Everything lives under ConfigHome on a single filesystem; the queue's
// atomic-rename discipline depends on that.
type Paths struct {
	ConfigHome string
	Workspace  string
	MemoryHome string
}

// ResolvePaths builds the layout from env vars, defaulting the config home
// to ~/.tinyclaw.
func ResolvePaths() Paths {
	home := os.Getenv(EnvConfigHome)
	if home == "" {
		if userHome, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(userHome, ".tinyclaw")
		} else {
			home = ".tinyclaw"
		}
	}
	workspace := os.Getenv(EnvWorkspace)
	if workspace == "" {
		workspace = filepath.Join(home, "workspace")
	}
	memory := os.Getenv(EnvMemoryHome)
	if memory == "" {
		memory = filepath.Join(home, "memory")
	}
	return Paths{ConfigHome: home, Workspace: workspace, MemoryHome: memory}
}

// PathsAt builds the layout rooted at an explicit config home (tests, --config-home flag).
func PathsAt(home string) Paths {
	return Paths{
		ConfigHome: home,
		Workspace:  filepath.Join(home, "workspace"),
		MemoryHome: filepath.Join(home, "memory"),
	}
}

func (p Paths) SettingsFile() string    { return filepath.Join(p.ConfigHome, "settings.json") }
func (p Paths) CredentialsFile() string { return filepath.Join(p.ConfigHome, "credentials.json") }

// Queue directories. Sibling dirs on one filesystem so rename is atomic.
func (p Paths) QueueDir() string      { return filepath.Join(p.ConfigHome, "queue") }
func (p Paths) IncomingDir() string   { return filepath.Join(p.QueueDir(), "incoming") }
func (p Paths) ProcessingDir() string { return filepath.Join(p.QueueDir(), "processing") }
func (p Paths) OutgoingDir() string   { return filepath.Join(p.QueueDir(), "outgoing") }
func (p Paths) DeadLetterDir() string { return filepath.Join(p.QueueDir(), "dead-letter") }
func (p Paths) CancelDir() string     { return filepath.Join(p.QueueDir(), "cancel") }
func (p Paths) QueueTmpDir() string   { return filepath.Join(p.QueueDir(), "tmp") }

// Approval protocol directories.
func (p Paths) ApprovalsPendingDir() string {
	return filepath.Join(p.ConfigHome, "approvals", "pending")
}
func (p Paths) ApprovalsDecisionsDir() string {
	return filepath.Join(p.ConfigHome, "approvals", "decisions")
}

// Observability sinks (append-only).
func (p Paths) EventsDir() string { return filepath.Join(p.ConfigHome, "events") }
func (p Paths) ChatsDir() string  { return filepath.Join(p.ConfigHome, "chats") }
func (p Paths) LogsDir() string   { return filepath.Join(p.ConfigHome, "logs") }

// Shared state files.
func (p Paths) SessionsFile() string        { return filepath.Join(p.ConfigHome, "thread-sessions.json") }
func (p Paths) SessionsLockFile() string    { return filepath.Join(p.ConfigHome, "thread-sessions.lock") }
func (p Paths) BotThreadsFile() string      { return filepath.Join(p.ConfigHome, "bot-threads.json") }
func (p Paths) PendingMessagesFile() string { return filepath.Join(p.ConfigHome, "pending-messages.json") }
func (p Paths) GlobalResetFlag() string     { return filepath.Join(p.ConfigHome, "reset_flag") }
func (p Paths) FilesDir() string            { return filepath.Join(p.ConfigHome, "files") }

// AgentResetFlag is the per-agent reset sentinel under the workspace.
func (p Paths) AgentResetFlag(agentID string) string {
	return filepath.Join(p.Workspace, agentID, "reset_flag")
}

// AgentDir is the canonical per-agent working directory.
func (p Paths) AgentDir(agentID string) string {
	return filepath.Join(p.Workspace, agentID)
}

// EnsureTree creates every directory the bus needs. Idempotent.
func (p Paths) EnsureTree() error {
	dirs := []string{
		p.ConfigHome,
		p.IncomingDir(), p.ProcessingDir(), p.OutgoingDir(), p.DeadLetterDir(),
		p.CancelDir(), p.QueueTmpDir(),
		p.ApprovalsPendingDir(), p.ApprovalsDecisionsDir(),
		p.EventsDir(), p.ChatsDir(), p.LogsDir(),
		p.FilesDir(),
		p.Workspace, p.MemoryHome,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
