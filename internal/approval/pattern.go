// Package approval implements the out-of-process tool-approval protocol:
// pattern computation, the layered allow-list policy, and the file-based
// request/decision loop between the agent CLI's pre-tool-use hook and the
// channel-side approval UI.
package approval

import (
	"fmt"
	"strings"
)

// subcommandTools are commands whose second token is meaningful enough to
// scope an approval to (approving "git status" should not approve
// "git push").
var subcommandTools = map[string]bool{
	"git": true, "gh": true, "npm": true, "npx": true, "docker": true,
	"kubectl": true, "cargo": true, "make": true, "yarn": true,
	"pnpm": true, "bun": true, "brew": true, "pip": true, "pip3": true,
	"conda": true,
}

// ComputePattern derives the approval pattern for a tool use. Bash commands
// get a prefix pattern over one or two leading words; every other tool is
// matched by name alone.
func ComputePattern(toolName, command string) string {
	if toolName != "Bash" {
		return toolName
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "Bash"
	}
	w1 := fields[0]
	if subcommandTools[w1] && len(fields) > 1 && !strings.HasPrefix(fields[1], "-") {
		return fmt.Sprintf("Bash(%s %s:*)", w1, fields[1])
	}
	return fmt.Sprintf("Bash(%s:*)", w1)
}

// Matches reports whether a stored pattern covers a prospective tool use.
// A bare tool name matches that tool; a Bash prefix pattern additionally
// requires the command string to begin with the pattern's prefix.
func Matches(pattern, toolName, command string) bool {
	open := strings.Index(pattern, "(")
	if open < 0 {
		return pattern == toolName
	}

	if pattern[:open] != toolName {
		return false
	}
	inner := strings.TrimSuffix(pattern[open+1:], ")")
	prefix := strings.TrimSuffix(inner, ":*")
	return strings.HasPrefix(command, prefix)
}

// MatchesAny checks a tool use against a whole allow-list.
func MatchesAny(patterns []string, toolName, command string) bool {
	for _, p := range patterns {
		if Matches(p, toolName, command) {
			return true
		}
	}
	return false
}
