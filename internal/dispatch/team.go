package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tinyclaw/internal/agents"
	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// maxChainSteps bounds a team chain so two agents that keep mentioning
// each other can't ping-pong forever.
const maxChainSteps = 8

// stepSeparator joins aggregated team-chain step outputs.
const stepSeparator = "\n\n---\n\n"

// tagMention is the explicit handoff form: [@teammate: handoff text].
var tagMention = regexp.MustCompile(`\[@([A-Za-z0-9_-]+):\s*([^\]]*)\]`)

// bareMention is the fallback form: @teammate followed by the rest of the
// response as the handoff text.
var bareMention = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// mention is one resolved teammate handoff.
type mention struct {
	agentID string
	handoff string
}

// chainStep is one completed invocation in a team chain.
type chainStep struct {
	agentID  string
	response string
}

// parseMentions extracts valid teammate mentions from a step's response.
// Tag form wins; bare form is only consulted when no tags matched. A
// mention is valid when the named ID is in the team, is a known agent,
// and is not the agent that produced the response.
func parseMentions(settings *config.Settings, team config.TeamConfig, fromAgent, response string) []mention {
	valid := func(id string) bool {
		if id == fromAgent {
			return false
		}
		if _, ok := settings.Agent(id); !ok {
			return false
		}
		return containsString(team.Agents, id)
	}

	var out []mention
	seen := map[string]bool{}
	for _, m := range tagMention.FindAllStringSubmatch(response, -1) {
		id := m[1]
		if !valid(id) || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, mention{agentID: id, handoff: strings.TrimSpace(m[2])})
	}
	if len(out) > 0 {
		return out
	}

	if loc := bareMention.FindStringSubmatchIndex(response); loc != nil {
		id := response[loc[2]:loc[3]]
		if valid(id) {
			handoff := strings.TrimSpace(response[loc[1]:])
			out = append(out, mention{agentID: id, handoff: handoff})
		}
	}
	return out
}

// teammateMessage wraps a handoff so the receiving agent knows who is
// talking.
func teammateMessage(fromAgent, handoff string) string {
	return fmt.Sprintf("[Message from teammate @%s]:\n%s", fromAgent, handoff)
}

// aggregateSteps renders completed steps for display: each prefixed with
// its agent and joined by the separator, handoff tags stripped.
func aggregateSteps(steps []chainStep) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("@%s: %s", s.agentID, tagMention.ReplaceAllString(s.response, ""))
	}
	return strings.Join(parts, stepSeparator)
}

// runTeamChain executes a message inside a team context. Sequential
// handoffs follow single mentions; multiple mentions fan out in parallel
// and end the chain. The returned text is the single step's response for
// a chain of one, or the aggregated transcript otherwise.
func (d *Dispatcher) runTeamChain(ctx context.Context, settings *config.Settings, teamID string, route Route, req agents.Request) (string, []string, error) {
	team := settings.Teams[teamID]

	var steps []chainStep
	var files []string

	current := route.AgentID
	message := route.Message

chain:
	for len(steps) < maxChainSteps {
		agentCfg, ok := settings.Agent(current)
		if !ok {
			break
		}

		stepReq := req
		stepReq.AgentID = current
		stepReq.Agent = agentCfg
		stepReq.Message = message
		if req.OnPartial != nil {
			prefix := ""
			if len(steps) > 0 {
				prefix = aggregateSteps(steps) + stepSeparator
			}
			from := current
			stepReq.OnPartial = func(acc string) {
				if prefix == "" {
					req.OnPartial(acc)
					return
				}
				req.OnPartial(prefix + "@" + from + ": " + acc)
			}
		}

		result, err := d.invoker.Invoke(ctx, stepReq)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, err
			}
			// A failed step is recorded and ends the chain; completed
			// steps survive.
			slog.Warn("team chain step failed", "team", teamID, "agent", current, "error", err)
			steps = append(steps, chainStep{
				agentID:  current,
				response: fmt.Sprintf("Sorry, I encountered an error: %s", err),
			})
			break
		}

		files = appendUnique(files, ExtractFiles(result.Text)...)
		steps = append(steps, chainStep{agentID: current, response: result.Text})

		mentions := parseMentions(settings, team, current, result.Text)
		switch len(mentions) {
		case 0:
			break chain
		case 1:
			message = teammateMessage(current, mentions[0].handoff)
			current = mentions[0].agentID
		default:
			fanSteps, fanFiles := d.runFanOut(ctx, settings, current, mentions, req)
			steps = append(steps, fanSteps...)
			files = appendUnique(files, fanFiles...)
			break chain
		}
	}

	if len(steps) == 0 {
		return "", nil, fmt.Errorf("team %s produced no steps", teamID)
	}
	if len(steps) == 1 {
		return StripFileTags(steps[0].response), files, nil
	}
	return aggregateSteps(steps), files, nil
}

// runFanOut invokes every mentioned teammate in parallel with the same
// teammate wrapper. Order of the returned steps matches mention order.
func (d *Dispatcher) runFanOut(ctx context.Context, settings *config.Settings, fromAgent string, mentions []mention, req agents.Request) ([]chainStep, []string) {
	steps := make([]chainStep, len(mentions))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range mentions {
		g.Go(func() error {
			agentCfg, ok := settings.Agent(m.agentID)
			if !ok {
				steps[i] = chainStep{agentID: m.agentID, response: "Sorry, I couldn't find that teammate."}
				return nil
			}
			stepReq := req
			stepReq.AgentID = m.agentID
			stepReq.Agent = agentCfg
			stepReq.Message = teammateMessage(fromAgent, m.handoff)
			stepReq.OnPartial = nil // parallel steps would interleave partials

			result, err := d.invoker.Invoke(gctx, stepReq)
			if err != nil {
				steps[i] = chainStep{
					agentID:  m.agentID,
					response: fmt.Sprintf("Sorry, I encountered an error: %s", err),
				}
				return nil
			}
			steps[i] = chainStep{agentID: m.agentID, response: result.Text}
			return nil
		})
	}
	_ = g.Wait()

	var files []string
	for _, s := range steps {
		files = appendUnique(files, ExtractFiles(s.response)...)
	}
	return steps, files
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !containsString(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
