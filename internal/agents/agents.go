// Package agents invokes the external agent CLIs (claude, codex) as child
// processes: argument construction, session continuity, output parsing,
// streaming, cancellation and timeouts.
package agents

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/sessions"
)

const tracerName = "github.com/nextlevelbuilder/tinyclaw/internal/agents"

// DefaultTimeout is the wall-clock cap on one invocation.
const DefaultTimeout = 10 * time.Minute

// Request describes one agent invocation.
type Request struct {
	AgentID    string
	Agent      config.AgentConfig
	Message    string
	SessionKey string // empty: legacy continue-last-session path
	Reset      bool   // start a fresh conversation
	MessageID  string // for TINYCLAW_MESSAGE_ID and approval correlation
	OnPartial  func(accumulated string) // nil disables streaming
}

// Result is the parsed final output of an invocation.
type Result struct {
	Text string
}

// Invoker runs agent CLIs with session continuity from the shared store.
type Invoker struct {
	paths   config.Paths
	store   *sessions.Store
	timeout time.Duration
}

// NewInvoker builds an Invoker. timeout <= 0 means DefaultTimeout.
func NewInvoker(p config.Paths, store *sessions.Store, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{paths: p, store: store, timeout: timeout}
}

// Invoke dispatches to the provider's CLI and returns the final text.
// The ctx carries cancellation; its cause distinguishes a user cancel from
// everything else. The timeout behaves like a cancellation with a
// timed-out cause.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.invoke",
		trace.WithAttributes(
			attribute.String("agent.id", req.AgentID),
			attribute.String("agent.provider", string(req.Agent.Provider)),
		))
	defer span.End()

	ctx, cancel := context.WithTimeoutCause(ctx, inv.timeout,
		fmt.Errorf("%w after %dms", ErrTimedOut, inv.timeout.Milliseconds()))
	defer cancel()

	dir, err := resolveWorkDir(inv.paths, req.AgentID, req.Agent)
	if err != nil {
		return nil, err
	}

	switch req.Agent.Provider {
	case config.ProviderOpenAI:
		return inv.invokeCodex(ctx, dir, req)
	case config.ProviderAnthropic, "":
		return inv.invokeClaude(ctx, dir, req)
	default:
		return nil, fmt.Errorf("unknown provider %q for agent %s", req.Agent.Provider, req.AgentID)
	}
}
