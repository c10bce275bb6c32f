package approval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func writeAgentSettings(t *testing.T, dir string, allow []string) {
	t.Helper()
	doc := map[string]any{
		"permissions": map[string]any{"allow": allow},
		"model":       "sonnet", // unrelated field, must survive appends
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".claude"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, agentSettingsRelPath), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckPolicyOpenWhenNoAllowlists(t *testing.T) {
	s := &config.Settings{Agents: map[string]config.AgentConfig{"a": {}}}
	got := CheckPolicy(s, "a", t.TempDir(), "Bash", "rm -rf /tmp/x")
	if got != PolicyOpen {
		t.Errorf("CheckPolicy = %v, want PolicyOpen", got)
	}
}

func TestCheckPolicyLayers(t *testing.T) {
	agentDir := t.TempDir()
	writeAgentSettings(t, agentDir, []string{"Bash(go test:*)"})

	s := &config.Settings{
		Agents: map[string]config.AgentConfig{
			"a": {AllowedTools: []string{"Read"}},
		},
		AllowedTools: []string{"Bash(git status:*)"},
	}

	tests := []struct {
		name     string
		toolName string
		command  string
		want     PolicyResult
	}{
		{"per-agent layer", "Read", "", PolicyAllow},
		{"global layer", "Bash", "git status --short", PolicyAllow},
		{"on-disk layer", "Bash", "go test ./...", PolicyAllow},
		{"no layer matches", "Bash", "git push", PolicyAsk},
		{"unlisted tool", "Write", "", PolicyAsk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckPolicy(s, "a", agentDir, tt.toolName, tt.command); got != tt.want {
				t.Errorf("CheckPolicy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppendAgentAllowList(t *testing.T) {
	dir := t.TempDir()
	writeAgentSettings(t, dir, []string{"Read"})

	if err := AppendAgentAllowList(dir, "Bash(git status:*)"); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := AppendAgentAllowList(dir, "Bash(git status:*)"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, agentSettingsRelPath))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["model"] != "sonnet" {
		t.Error("unrelated fields must survive the append")
	}

	allow := readAgentAllowList(dir)
	if len(allow) != 2 {
		t.Fatalf("allow list = %v, want 2 entries", allow)
	}
	if allow[0] != "Read" || allow[1] != "Bash(git status:*)" {
		t.Errorf("allow list = %v", allow)
	}
}

func TestAppendAgentAllowListCreatesFile(t *testing.T) {
	dir := t.TempDir()
	if err := AppendAgentAllowList(dir, "Read"); err != nil {
		t.Fatal(err)
	}
	allow := readAgentAllowList(dir)
	if len(allow) != 1 || allow[0] != "Read" {
		t.Errorf("allow list = %v", allow)
	}
}

func TestAppendGlobalAllowList(t *testing.T) {
	p := config.PathsAt(t.TempDir())
	if err := p.EnsureTree(); err != nil {
		t.Fatal(err)
	}

	if err := AppendGlobalAllowList(p, "Bash(npm install:*)"); err != nil {
		t.Fatal(err)
	}
	if err := AppendGlobalAllowList(p, "Bash(npm install:*)"); err != nil {
		t.Fatal(err)
	}

	settings, err := config.LoadSettings(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(settings.AllowedTools) != 1 || settings.AllowedTools[0] != "Bash(npm install:*)" {
		t.Errorf("allowed_tools = %v", settings.AllowedTools)
	}
}

func TestPendingDecisionRoundTrip(t *testing.T) {
	p := config.PathsAt(t.TempDir())
	if err := p.EnsureTree(); err != nil {
		t.Fatal(err)
	}

	req := &PendingRequest{
		RequestID:        "1700000000_1234",
		ToolName:         "Bash",
		ToolPattern:      "Bash(git push:*)",
		ToolInputSummary: "git push origin main",
		AgentID:          "coder",
		Timestamp:        1700000000,
	}
	if err := WritePending(p, req); err != nil {
		t.Fatal(err)
	}

	list, err := ListPending(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].RequestID != req.RequestID || list[0].Notified {
		t.Fatalf("ListPending = %+v", list)
	}

	if err := MarkNotified(p, req); err != nil {
		t.Fatal(err)
	}
	list, _ = ListPending(p)
	if len(list) != 1 || !list[0].Notified {
		t.Fatalf("after MarkNotified: %+v", list)
	}

	if d, err := ReadDecision(p, req.RequestID); err != nil || d != nil {
		t.Fatalf("ReadDecision before write = %v, %v", d, err)
	}
	if err := WriteDecision(p, req.RequestID, &DecisionFile{Decision: DecisionAllow}); err != nil {
		t.Fatal(err)
	}
	d, err := ReadDecision(p, req.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Decision != DecisionAllow {
		t.Fatalf("ReadDecision = %+v", d)
	}

	RemoveRequest(p, req.RequestID)
	if list, _ := ListPending(p); len(list) != 0 {
		t.Errorf("pending not cleaned: %+v", list)
	}
	if d, _ := ReadDecision(p, req.RequestID); d != nil {
		t.Errorf("decision not cleaned: %+v", d)
	}
}
