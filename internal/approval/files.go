package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// Decision values written by the channel adapter.
const (
	DecisionAllow          = "allow"
	DecisionAlwaysAllow    = "always_allow"
	DecisionAlwaysAllowAll = "always_allow_all"
	DecisionDeny           = "deny"
)

// PendingRequest is one approval waiting for a human, as stored in
// approvals/pending/<requestId>.json.
type PendingRequest struct {
	RequestID        string `json:"request_id"`
	ToolName         string `json:"tool_name"`
	ToolPattern      string `json:"tool_pattern"`
	ToolInputSummary string `json:"tool_input_summary"`
	AgentID          string `json:"agent_id"`
	MessageID        string `json:"message_id,omitempty"`
	Timestamp        int64  `json:"timestamp"`
	Notified         bool   `json:"notified"`
}

// DecisionFile is the adapter's answer, approvals/decisions/<requestId>.json.
type DecisionFile struct {
	Decision string `json:"decision"`
	ToolName string `json:"tool_name,omitempty"`
}

// writeJSONAtomic writes a JSON file via temp-and-rename in the same dir.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// WritePending publishes a pending approval request.
func WritePending(p config.Paths, req *PendingRequest) error {
	return writeJSONAtomic(filepath.Join(p.ApprovalsPendingDir(), req.RequestID+".json"), req)
}

// ListPending returns every pending request, unreadable files skipped.
func ListPending(p config.Paths) ([]PendingRequest, error) {
	entries, err := os.ReadDir(p.ApprovalsPendingDir())
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	var out []PendingRequest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.ApprovalsPendingDir(), e.Name()))
		if err != nil {
			continue
		}
		var req PendingRequest
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// MarkNotified rewrites a pending request with notified=true so the
// adapter prompts exactly once.
func MarkNotified(p config.Paths, req *PendingRequest) error {
	req.Notified = true
	return WritePending(p, req)
}

// WriteDecision records the operator's decision for a request.
func WriteDecision(p config.Paths, requestID string, d *DecisionFile) error {
	return writeJSONAtomic(filepath.Join(p.ApprovalsDecisionsDir(), requestID+".json"), d)
}

// ReadDecision returns the decision for a request, or nil when none yet.
func ReadDecision(p config.Paths, requestID string) (*DecisionFile, error) {
	data, err := os.ReadFile(filepath.Join(p.ApprovalsDecisionsDir(), requestID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var d DecisionFile
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse decision: %w", err)
	}
	return &d, nil
}

// RemoveRequest cleans up both sides of a completed request.
func RemoveRequest(p config.Paths, requestID string) {
	_ = os.Remove(filepath.Join(p.ApprovalsPendingDir(), requestID+".json"))
	_ = os.Remove(filepath.Join(p.ApprovalsDecisionsDir(), requestID+".json"))
}
