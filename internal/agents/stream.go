package agents

import (
	"encoding/json"
	"strings"
)

// streamEvent is one NDJSON line from claude --output-format stream-json.
// Only the shapes the dispatcher cares about are modeled; everything else
// is ignored.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Result string `json:"result,omitempty"`
}

// streamAccumulator folds claude stream events into the running response
// text and remembers the authoritative final result when one is seen.
type streamAccumulator struct {
	buf       strings.Builder
	result    string
	hasResult bool
}

// feed parses one stdout line. Non-JSON lines are ignored. Returns true
// when the accumulated text grew (callers fire the partial callback then).
func (a *streamAccumulator) feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return false
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return false
	}

	switch ev.Type {
	case "assistant":
		if ev.Message == nil {
			return false
		}
		grew := false
		for _, block := range ev.Message.Content {
			if block.Type == "text" && block.Text != "" {
				a.buf.WriteString(block.Text)
				grew = true
			}
		}
		return grew
	case "content_block_delta":
		if ev.Delta == nil || ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
			return false
		}
		a.buf.WriteString(ev.Delta.Text)
		return true
	case "result":
		a.result = ev.Result
		a.hasResult = true
	}
	return false
}

// text returns the accumulated text so far.
func (a *streamAccumulator) text() string { return a.buf.String() }

// final returns the authoritative response: the result event when one was
// seen, otherwise whatever accumulated.
func (a *streamAccumulator) final() string {
	if a.hasResult {
		return a.result
	}
	return a.buf.String()
}

// codexEvent is one NDJSON line from codex exec --json.
type codexEvent struct {
	Type string `json:"type"`
	Item *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item,omitempty"`
}

// parseCodexOutput returns the text of the last completed agent_message
// event, or "" when none was emitted.
func parseCodexOutput(lines []string) string {
	last := ""
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var ev codexEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type == "item.completed" && ev.Item != nil && ev.Item.Type == "agent_message" {
			last = ev.Item.Text
		}
	}
	return last
}
