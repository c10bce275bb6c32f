package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsMissingFileYieldsDefaults(t *testing.T) {
	p := PathsAt(t.TempDir())

	s, err := LoadSettings(p)
	if err != nil {
		t.Fatal(err)
	}
	if s.Queue.PollIntervalMs != 1000 || s.Queue.MaxRetries != 3 || s.Queue.StaleAfterMinute != 15 {
		t.Errorf("queue defaults = %+v", s.Queue)
	}
	if s.Approvals.TimeoutSeconds != 300 {
		t.Errorf("approvals timeout = %d", s.Approvals.TimeoutSeconds)
	}
	if s.Sessions.CleanupSchedule != "0 4 * * *" || s.Sessions.MaxAgeDays != 30 {
		t.Errorf("sessions defaults = %+v", s.Sessions)
	}
	if s.CLI.TimeoutMinutes != 10 {
		t.Errorf("cli timeout = %d", s.CLI.TimeoutMinutes)
	}
}

func TestLoadSettingsJSON5(t *testing.T) {
	p := PathsAt(t.TempDir())
	if err := os.MkdirAll(p.ConfigHome, 0o755); err != nil {
		t.Fatal(err)
	}

	// Comments and trailing commas are part of the hand-edited format.
	raw := `{
		// the agents
		"agents": {
			"coder": {"name": "Coder", "provider": "anthropic", "model": "sonnet",},
		},
		"queue": {"poll_interval_ms": 250},
	}`
	if err := os.WriteFile(p.SettingsFile(), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(p)
	if err != nil {
		t.Fatal(err)
	}
	if s.Agents["coder"].Model != "sonnet" {
		t.Errorf("agents = %+v", s.Agents)
	}
	if s.Queue.PollIntervalMs != 250 {
		t.Errorf("poll interval = %d, want explicit 250", s.Queue.PollIntervalMs)
	}
	if s.Queue.MaxRetries != 3 {
		t.Errorf("unset tunables should default: %+v", s.Queue)
	}
}

func TestResolveAgentID(t *testing.T) {
	s := &Settings{Agents: map[string]AgentConfig{
		"coder":  {Name: "Coder"},
		"writer": {Name: "Tech Writer"},
	}}

	tests := []struct {
		token  string
		wantID string
		wantOK bool
	}{
		{"coder", "coder", true},
		{"CODER", "coder", true},
		{"Tech Writer", "writer", true},
		{"ghost", "", false},
	}
	for _, tt := range tests {
		id, ok := s.ResolveAgentID(tt.token)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ResolveAgentID(%q) = %q, %v; want %q, %v", tt.token, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestDefaultAgentID(t *testing.T) {
	withDefault := &Settings{Agents: map[string]AgentConfig{"zz": {}, "default": {}}}
	if got := withDefault.DefaultAgentID(); got != "default" {
		t.Errorf("DefaultAgentID = %q, want default", got)
	}

	noDefault := &Settings{Agents: map[string]AgentConfig{"zeta": {}, "alpha": {}}}
	if got := noDefault.DefaultAgentID(); got != "alpha" {
		t.Errorf("DefaultAgentID = %q, want alpha", got)
	}

	empty := &Settings{Agents: map[string]AgentConfig{}}
	if got := empty.DefaultAgentID(); got != "" {
		t.Errorf("DefaultAgentID = %q, want empty", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       *Settings
		wantErr bool
	}{
		{
			"valid",
			&Settings{
				Agents: map[string]AgentConfig{"a": {}, "b": {}},
				Teams: map[string]TeamConfig{
					"t": {Agents: []string{"a", "b"}, LeaderAgent: "a"},
				},
			},
			false,
		},
		{
			"empty team",
			&Settings{
				Agents: map[string]AgentConfig{"a": {}},
				Teams:  map[string]TeamConfig{"t": {LeaderAgent: "a"}},
			},
			true,
		},
		{
			"missing leader",
			&Settings{
				Agents: map[string]AgentConfig{"a": {}},
				Teams:  map[string]TeamConfig{"t": {Agents: []string{"a"}}},
			},
			true,
		},
		{
			"unknown leader",
			&Settings{
				Agents: map[string]AgentConfig{"a": {}},
				Teams:  map[string]TeamConfig{"t": {Agents: []string{"a"}, LeaderAgent: "ghost"}},
			},
			true,
		},
		{
			"unknown member",
			&Settings{
				Agents: map[string]AgentConfig{"a": {}},
				Teams:  map[string]TeamConfig{"t": {Agents: []string{"a", "ghost"}, LeaderAgent: "a"}},
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPathsLayout(t *testing.T) {
	p := PathsAt("/tmp/tc")

	if p.IncomingDir() != filepath.Join("/tmp/tc", "queue", "incoming") {
		t.Errorf("IncomingDir = %s", p.IncomingDir())
	}
	if p.SessionsFile() != filepath.Join("/tmp/tc", "thread-sessions.json") {
		t.Errorf("SessionsFile = %s", p.SessionsFile())
	}
	if p.AgentDir("coder") != filepath.Join("/tmp/tc", "workspace", "coder") {
		t.Errorf("AgentDir = %s", p.AgentDir("coder"))
	}
	if p.AgentResetFlag("coder") != filepath.Join("/tmp/tc", "workspace", "coder", "reset_flag") {
		t.Errorf("AgentResetFlag = %s", p.AgentResetFlag("coder"))
	}
}

func TestEnsureTree(t *testing.T) {
	p := PathsAt(t.TempDir())
	if err := p.EnsureTree(); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := p.EnsureTree(); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{
		p.IncomingDir(), p.ProcessingDir(), p.OutgoingDir(), p.DeadLetterDir(),
		p.CancelDir(), p.QueueTmpDir(), p.ApprovalsPendingDir(), p.ApprovalsDecisionsDir(),
		p.EventsDir(), p.ChatsDir(), p.FilesDir(),
	} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("missing directory %s: %v", dir, err)
		}
	}
}
