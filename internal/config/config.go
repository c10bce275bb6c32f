// Package config provides a read-only view over the tinyclaw configuration
// tree: settings, credentials, agent and team definitions, and the derived
// directory layout under the config home.
//
// There is deliberately no in-process cache. The dispatcher, the channel
// adapters and the approval hook are separate OS processes sharing one
// directory tree, so every read goes back to disk.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Provider identifies which agent CLI backs an agent.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic" // claude CLI
	ProviderOpenAI    Provider = "openai"    // codex CLI
)

// AgentConfig describes a single invocation target.
type AgentConfig struct {
	Name             string   `json:"name"`
	Provider         Provider `json:"provider"`
	Model            string   `json:"model,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	AllowedTools     []string `json:"allowed_tools,omitempty"`
	Memory           bool     `json:"memory,omitempty"`
}

// TeamConfig is a named set of agents with a designated leader.
type TeamConfig struct {
	Name        string   `json:"name"`
	Agents      []string `json:"agents"`
	LeaderAgent string   `json:"leader_agent"`
}

// QueueConfig tunes the file-queue bus.
type QueueConfig struct {
	PollIntervalMs   int `json:"poll_interval_ms,omitempty"`   // default 1000
	MaxRetries       int `json:"max_retries,omitempty"`        // default 3
	StaleAfterMinute int `json:"stale_after_minutes,omitempty"` // default 15
}

// ApprovalsConfig tunes the tool-approval protocol.
type ApprovalsConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // default 300
	AdminUserID    string `json:"admin_user_id,omitempty"`   // DM target when no thread exists
}

// SessionsConfig tunes session-store maintenance.
type SessionsConfig struct {
	CleanupSchedule string `json:"cleanup_schedule,omitempty"` // cron expression, default "0 4 * * *"
	MaxAgeDays      int    `json:"max_age_days,omitempty"`     // default 30
}

// DiscordConfig configures the Discord channel adapter.
type DiscordConfig struct {
	AllowedChannels []string          `json:"allowed_channels,omitempty"`
	DefaultAgents   map[string]string `json:"default_agents,omitempty"` // channelID → agentID
}

// CLIConfig tunes agent CLI invocation.
type CLIConfig struct {
	TimeoutMinutes int `json:"timeout_minutes,omitempty"` // default 10
}

// TelemetryConfig enables the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // e.g. "localhost:4318"
}

// Settings is the root of settings.json.
type Settings struct {
	Agents       map[string]AgentConfig `json:"agents"`
	Teams        map[string]TeamConfig  `json:"teams,omitempty"`
	AllowedTools []string               `json:"allowed_tools,omitempty"` // global tool allowlist
	Queue        QueueConfig            `json:"queue,omitempty"`
	Approvals    ApprovalsConfig        `json:"approvals,omitempty"`
	Sessions     SessionsConfig         `json:"sessions,omitempty"`
	Discord      DiscordConfig          `json:"discord,omitempty"`
	CLI          CLIConfig              `json:"cli,omitempty"`
	Telemetry    TelemetryConfig        `json:"telemetry,omitempty"`
}

// Credentials is the root of credentials.json.
type Credentials struct {
	Discord DiscordCredentials `json:"discord,omitempty"`
}

// DiscordCredentials holds the bot token. DISCORD_BOT_TOKEN overrides.
type DiscordCredentials struct {
	BotToken string `json:"bot_token,omitempty"`
}

// DefaultSettings returns a Settings with sensible defaults applied.
func DefaultSettings() *Settings {
	return &Settings{
		Agents: map[string]AgentConfig{},
		Queue: QueueConfig{
			PollIntervalMs:   1000,
			MaxRetries:       3,
			StaleAfterMinute: 15,
		},
		Approvals: ApprovalsConfig{TimeoutSeconds: 300},
		Sessions: SessionsConfig{
			CleanupSchedule: "0 4 * * *",
			MaxAgeDays:      30,
		},
		CLI: CLIConfig{TimeoutMinutes: 10},
	}
}

// applyDefaults fills zero-valued tunables after parsing.
func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.Agents == nil {
		s.Agents = map[string]AgentConfig{}
	}
	if s.Queue.PollIntervalMs <= 0 {
		s.Queue.PollIntervalMs = d.Queue.PollIntervalMs
	}
	if s.Queue.MaxRetries <= 0 {
		s.Queue.MaxRetries = d.Queue.MaxRetries
	}
	if s.Queue.StaleAfterMinute <= 0 {
		s.Queue.StaleAfterMinute = d.Queue.StaleAfterMinute
	}
	if s.Approvals.TimeoutSeconds <= 0 {
		s.Approvals.TimeoutSeconds = d.Approvals.TimeoutSeconds
	}
	if s.Sessions.CleanupSchedule == "" {
		s.Sessions.CleanupSchedule = d.Sessions.CleanupSchedule
	}
	if s.Sessions.MaxAgeDays <= 0 {
		s.Sessions.MaxAgeDays = d.Sessions.MaxAgeDays
	}
	if s.CLI.TimeoutMinutes <= 0 {
		s.CLI.TimeoutMinutes = d.CLI.TimeoutMinutes
	}
}

// AgentIDs returns all configured agent IDs in stable (sorted) order.
func (s *Settings) AgentIDs() []string {
	ids := make([]string, 0, len(s.Agents))
	for id := range s.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Agent looks up an agent by ID.
func (s *Settings) Agent(id string) (AgentConfig, bool) {
	a, ok := s.Agents[id]
	return a, ok
}

// DefaultAgentID returns the agent registered as "default" when present,
// otherwise the first agent in stable order.
func (s *Settings) DefaultAgentID() string {
	if _, ok := s.Agents["default"]; ok {
		return "default"
	}
	ids := s.AgentIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// ResolveAgentID matches a routing token against agent IDs and agent names,
// case-insensitively. Returns the canonical agent ID.
func (s *Settings) ResolveAgentID(token string) (string, bool) {
	lower := strings.ToLower(token)
	if _, ok := s.Agents[lower]; ok {
		return lower, true
	}
	for _, id := range s.AgentIDs() {
		if strings.EqualFold(s.Agents[id].Name, token) {
			return id, true
		}
	}
	return "", false
}

// ResolveTeamID matches a routing token against team IDs, case-insensitively.
func (s *Settings) ResolveTeamID(token string) (string, bool) {
	lower := strings.ToLower(token)
	if _, ok := s.Teams[lower]; ok {
		return lower, true
	}
	return "", false
}

// TeamsOf returns the IDs of every team that includes the agent.
func (s *Settings) TeamsOf(agentID string) []string {
	var out []string
	for id, team := range s.Teams {
		for _, member := range team.Agents {
			if member == agentID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Validate reports configuration problems that would break routing.
func (s *Settings) Validate() error {
	for id, team := range s.Teams {
		if len(team.Agents) == 0 {
			return fmt.Errorf("team %q has no agents", id)
		}
		leader := team.LeaderAgent
		if leader == "" {
			return fmt.Errorf("team %q has no leader_agent", id)
		}
		if _, ok := s.Agents[leader]; !ok {
			return fmt.Errorf("team %q leader %q is not a configured agent", id, leader)
		}
		for _, member := range team.Agents {
			if _, ok := s.Agents[member]; !ok {
				return fmt.Errorf("team %q member %q is not a configured agent", id, member)
			}
		}
	}
	return nil
}
