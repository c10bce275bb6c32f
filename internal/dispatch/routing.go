// Package dispatch pulls messages from the queue bus, routes them to
// agents or team chains, runs the invocations, and writes streaming
// partials and final responses back.
package dispatch

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// crossTeamEasterEgg is the response for a multi-agent mention spanning
// teams. Deliberately a routing error, not a silent choice.
const crossTeamEasterEgg = "🦞 Two claws, one message! You summoned agents from different teams at once — they refuse to share a claw machine. Mention a single agent or a single team and try again."

// Route is the outcome of routing one message.
type Route struct {
	AgentID   string
	TeamID    string // set when the message runs in a team context
	Message   string // routing prefix stripped
	EasterEgg bool   // cross-team multi-mention: respond without invoking
}

// bangToken matches a "!id" routing token at the start of the text.
var bangToken = regexp.MustCompile(`^!([A-Za-z0-9_-]+)\s+`)

// anyBangToken finds every "!id" token in the text for the cross-team check.
var anyBangToken = regexp.MustCompile(`!([A-Za-z0-9_-]+)`)

// ParseRouting applies the routing rules in order, stopping at the first
// match: pre-routed agent, "!agent" prefix, "!team" prefix, then the
// default agent. Deterministic for a given settings snapshot.
func ParseRouting(settings *config.Settings, preRouted, rawMessage string) Route {
	if preRouted != "" {
		if _, ok := settings.Agent(preRouted); ok {
			if route, bad := detectCrossTeamMention(settings, rawMessage); bad {
				return route
			}
			return Route{AgentID: preRouted, Message: rawMessage}
		}
	}

	if route, bad := detectCrossTeamMention(settings, rawMessage); bad {
		return route
	}

	if m := bangToken.FindStringSubmatch(rawMessage); m != nil {
		token := m[1]
		rest := strings.TrimSpace(rawMessage[len(m[0]):])
		if agentID, ok := settings.ResolveAgentID(token); ok {
			return Route{AgentID: agentID, Message: rest}
		}
		if teamID, ok := settings.ResolveTeamID(token); ok {
			team := settings.Teams[teamID]
			return Route{AgentID: team.LeaderAgent, TeamID: teamID, Message: rest}
		}
	}

	return Route{AgentID: settings.DefaultAgentID(), Message: rawMessage}
}

// detectCrossTeamMention flags a message whose "!" tokens resolve to two
// distinct agents that share no team.
func detectCrossTeamMention(settings *config.Settings, text string) (Route, bool) {
	var mentioned []string
	seen := map[string]bool{}
	for _, m := range anyBangToken.FindAllStringSubmatch(text, -1) {
		if agentID, ok := settings.ResolveAgentID(m[1]); ok && !seen[agentID] {
			seen[agentID] = true
			mentioned = append(mentioned, agentID)
		}
	}
	if len(mentioned) < 2 {
		return Route{}, false
	}

	// Two agents that share at least one team route through that team's
	// chain machinery instead of erroring.
	first := settings.TeamsOf(mentioned[0])
	for _, team := range first {
		shared := true
		for _, agentID := range mentioned[1:] {
			if !containsString(settings.Teams[team].Agents, agentID) {
				shared = false
				break
			}
		}
		if shared {
			return Route{}, false
		}
	}
	return Route{EasterEgg: true, Message: text}, true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// teamContextFor decides whether a directly-routed agent still runs in a
// team context: it does when it belongs to exactly one team.
func teamContextFor(settings *config.Settings, route Route) string {
	if route.TeamID != "" {
		return route.TeamID
	}
	teams := settings.TeamsOf(route.AgentID)
	if len(teams) == 1 {
		return teams[0]
	}
	return ""
}
