package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// agentSettingsRelPath is the per-agent on-disk settings file the claude
// CLI itself reads, relative to the agent's working directory.
const agentSettingsRelPath = ".claude/settings.json"

// readAgentAllowList loads permissions.allow from the agent's settings file.
func readAgentAllowList(agentDir string) []string {
	data, err := os.ReadFile(filepath.Join(agentDir, agentSettingsRelPath))
	if err != nil {
		return nil
	}
	var raw struct {
		Permissions struct {
			Allow []string `json:"allow"`
		} `json:"permissions"`
	}
	if json5.Unmarshal(data, &raw) != nil {
		return nil
	}
	return raw.Permissions.Allow
}

// AppendAgentAllowList appends a pattern to the agent's
// .claude/settings.json permissions.allow, creating the file when absent.
// Unknown fields in an existing file are preserved. Appending a pattern
// that is already present is a no-op, which makes concurrent always-allow
// decisions idempotent.
func AppendAgentAllowList(agentDir, pattern string) error {
	path := filepath.Join(agentDir, agentSettingsRelPath)

	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if jerr := json5.Unmarshal(data, &doc); jerr != nil {
			return fmt.Errorf("parse %s: %w", path, jerr)
		}
	}

	perms, _ := doc["permissions"].(map[string]any)
	if perms == nil {
		perms = map[string]any{}
	}
	var allow []string
	if raw, ok := perms["allow"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				allow = append(allow, s)
			}
		}
	}
	for _, existing := range allow {
		if existing == pattern {
			return nil
		}
	}
	allow = append(allow, pattern)

	perms["allow"] = allow
	doc["permissions"] = perms

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AppendGlobalAllowList appends a pattern to settings.json allowed_tools.
// Read-modify-write without a lock: two simultaneous always-allow
// decisions at the same pattern converge to the same result.
func AppendGlobalAllowList(p config.Paths, pattern string) error {
	settings, err := config.LoadSettings(p)
	if err != nil {
		return err
	}
	for _, existing := range settings.AllowedTools {
		if existing == pattern {
			return nil
		}
	}
	settings.AllowedTools = append(settings.AllowedTools, pattern)

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(p.SettingsFile(), data, 0o644)
}

// PolicyResult is the outcome of the layered allow-list check.
type PolicyResult int

const (
	// PolicyAllow: a configured layer matched the tool use.
	PolicyAllow PolicyResult = iota
	// PolicyAsk: allow-lists exist but none matched; go interactive.
	PolicyAsk
	// PolicyOpen: no allow-list configured anywhere; everything passes.
	// Restriction is opt-in — implementations must not invert this.
	PolicyOpen
)

// CheckPolicy evaluates the three allow-list layers in order: per-agent
// settings, global settings, then the agent's on-disk CLI settings.
func CheckPolicy(settings *config.Settings, agentID, agentDir, toolName, command string) PolicyResult {
	var perAgent []string
	if a, ok := settings.Agent(agentID); ok {
		perAgent = a.AllowedTools
	}
	onDisk := readAgentAllowList(agentDir)

	if len(perAgent) == 0 && len(settings.AllowedTools) == 0 && len(onDisk) == 0 {
		return PolicyOpen
	}
	if MatchesAny(perAgent, toolName, command) ||
		MatchesAny(settings.AllowedTools, toolName, command) ||
		MatchesAny(onDisk, toolName, command) {
		return PolicyAllow
	}
	return PolicyAsk
}
