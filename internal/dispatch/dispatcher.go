package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/tinyclaw/internal/agents"
	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/events"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
	"github.com/nextlevelbuilder/tinyclaw/internal/sessions"
)

const (
	tracerName = "github.com/nextlevelbuilder/tinyclaw/internal/dispatch"

	// maintenanceInterval paces the stuck-file sweep and cron checks.
	maintenanceInterval = 60 * time.Second
)

// errorResponseText is the opaque apology the user sees when an
// invocation fails. Details go to the log, not the channel.
const errorResponseText = "Sorry, I encountered an error while processing your message. Please try again."

// Dispatcher claims messages from the bus, routes and invokes agents, and
// writes partials and responses back.
type Dispatcher struct {
	paths   config.Paths
	queue   *queue.Queue
	store   *sessions.Store
	invoker *agents.Invoker
	sink    *events.Sink
	cron    *gronx.Gronx

	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc // messageID → abort
}

// New builds a dispatcher over the shared config tree.
func New(p config.Paths, settings *config.Settings) *Dispatcher {
	store := sessions.NewStore(p.SessionsFile(), p.SessionsLockFile())
	return &Dispatcher{
		paths:   p,
		queue:   queue.New(p, settings.Queue),
		store:   store,
		invoker: agents.NewInvoker(p, store, time.Duration(settings.CLI.TimeoutMinutes)*time.Minute),
		sink:    events.NewSink(p),
		cron:    gronx.New(),
		inflight: map[string]context.CancelCauseFunc{},
	}
}

// Run is the dispatcher main loop. Blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	settings, err := config.LoadSettings(d.paths)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// Crash recovery before accepting new work.
	if n, err := d.queue.RecoverStuck(); err != nil {
		slog.Warn("startup stuck-file recovery failed", "error", err)
	} else if n > 0 {
		slog.Info("recovered stuck files on startup", "count", n)
	}

	go func() {
		if err := d.queue.WatchCancels(ctx, d.onCancel); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("cancel watcher stopped", "error", err)
		}
	}()

	poll := time.NewTicker(time.Duration(settings.Queue.PollIntervalMs) * time.Millisecond)
	defer poll.Stop()
	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()

	slog.Info("dispatcher started",
		"poll_ms", settings.Queue.PollIntervalMs,
		"agents", settings.AgentIDs())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-maintenance.C:
			d.runMaintenance()
		case <-poll.C:
			// Drain the queue before the next tick. The loop is the busy
			// guard: a slow message simply delays the next claim.
			for {
				claimed, err := d.queue.Claim()
				if err != nil {
					slog.Warn("claim failed", "error", err)
					break
				}
				if claimed == nil {
					break
				}
				d.processOne(ctx, claimed)
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

// onCancel aborts the in-flight invocation for a message, if any. The
// signal file is consumed either way so repeated cancels stay idempotent.
func (d *Dispatcher) onCancel(messageID string) {
	d.mu.Lock()
	cancel, ok := d.inflight[messageID]
	d.mu.Unlock()

	if ok {
		slog.Info("cancelling in-flight invocation", "message_id", messageID)
		cancel(agents.ErrCancelled)
		d.sink.Emit(events.Record{Kind: events.KindCancelRequested, MessageID: messageID})
	}
	d.queue.ConsumeCancel(messageID)
}

// runMaintenance sweeps processing/ for stuck claims and runs the session
// cleanup when its cron schedule is due.
func (d *Dispatcher) runMaintenance() {
	if n, err := d.queue.RecoverStuck(); err != nil {
		slog.Warn("stuck-file sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("stuck files recovered", "count", n)
	}

	settings, err := config.LoadSettings(d.paths)
	if err != nil {
		return
	}
	due, err := d.cron.IsDue(settings.Sessions.CleanupSchedule, time.Now().Truncate(time.Minute))
	if err != nil || !due {
		return
	}
	maxAge := time.Duration(settings.Sessions.MaxAgeDays) * 24 * time.Hour
	if removed, err := d.store.CleanupStale(maxAge); err != nil {
		slog.Warn("session cleanup failed", "error", err)
	} else if removed > 0 {
		slog.Info("stale sessions cleaned", "removed", removed)
	}
}

// processOne runs a single claimed message to completion: route, invoke,
// respond, and settle the queue file.
func (d *Dispatcher) processOne(ctx context.Context, claimed *queue.Claimed) {
	msg := claimed.Msg
	if msg == nil || msg.MessageID == "" || msg.Channel == "" {
		// Corrupt payload: cycle it toward dead-letter.
		if _, err := d.queue.Fail(claimed); err != nil {
			slog.Warn("failed to fail corrupt message", "error", err)
		}
		return
	}

	settings, err := config.LoadSettings(d.paths)
	if err != nil {
		slog.Error("settings unreadable, requeueing message", "error", err)
		_, _ = d.queue.Fail(claimed)
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatch.message",
		trace.WithAttributes(attribute.String("message.id", msg.MessageID)))
	defer span.End()

	d.sink.Emit(events.Record{
		Kind:      events.KindMessageReceived,
		Channel:   msg.Channel,
		MessageID: msg.MessageID,
	})
	d.sink.Chat(msg.SessionKey, "user", "", msg.Message)

	route := ParseRouting(settings, msg.Agent, msg.Message)
	if route.EasterEgg {
		d.respond(claimed, msg, "", crossTeamEasterEgg, nil)
		return
	}
	if route.AgentID == "" {
		slog.Error("no agents configured, dead-lettering", "message_id", msg.MessageID)
		_, _ = d.queue.Fail(claimed)
		return
	}

	text, files, err := d.runRoute(ctx, settings, route, msg)
	switch {
	case err == nil:
		d.respond(claimed, msg, route.AgentID, text, files)
	case errors.Is(err, agents.ErrCancelled):
		d.respond(claimed, msg, route.AgentID, "Request cancelled by user.", nil)
	case errors.Is(err, context.Canceled):
		// Process shutdown mid-invocation: give the claim back untouched.
		if rerr := d.queue.Release(claimed); rerr != nil {
			slog.Warn("claim release failed", "message_id", msg.MessageID, "error", rerr)
		}
	case errors.Is(err, agents.ErrTimedOut):
		// Timeouts behave like cancellation: message, not retry.
		d.respond(claimed, msg, route.AgentID, fmt.Sprintf("Request aborted: %s.", err), nil)
	default:
		slog.Error("invocation failed",
			"message_id", msg.MessageID, "agent", route.AgentID, "error", err)
		d.sink.Emit(events.Record{
			Kind: events.KindMessageFailed, Channel: msg.Channel,
			MessageID: msg.MessageID, Agent: route.AgentID, Detail: err.Error(),
		})
		// The user gets an apology now; the file still cycles through
		// retry/dead-letter. At-least-once, idempotent response handling.
		d.writeErrorResponse(msg, route.AgentID)
		if requeued, ferr := d.queue.Fail(claimed); ferr != nil {
			slog.Warn("retry bookkeeping failed", "error", ferr)
		} else if !requeued {
			d.sink.Emit(events.Record{
				Kind: events.KindDeadLettered, Channel: msg.Channel,
				MessageID: msg.MessageID,
			})
		}
	}
}

// runRoute executes the routed invocation, registering it for cancel
// signals and emitting streaming partials along the way.
func (d *Dispatcher) runRoute(ctx context.Context, settings *config.Settings, route Route, msg *queue.Message) (string, []string, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	d.mu.Lock()
	d.inflight[msg.MessageID] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, msg.MessageID)
		d.mu.Unlock()
		// A partial with no final would strand the adapter's display.
		d.queue.RemoveStreaming(msg.Channel, msg.MessageID)
	}()

	reset := consumeResetFlags(d.paths, route.AgentID)

	req := agents.Request{
		AgentID:    route.AgentID,
		Message:    route.Message,
		SessionKey: msg.SessionKey,
		Reset:      reset,
		MessageID:  msg.MessageID,
		OnPartial: func(acc string) {
			err := d.queue.WriteStreaming(&queue.StreamingPartial{
				Channel:    msg.Channel,
				Sender:     msg.Sender,
				MessageID:  msg.MessageID,
				Partial:    acc,
				Agent:      route.AgentID,
				Cancelable: true,
			})
			if err != nil {
				slog.Debug("streaming partial write failed", "error", err)
			}
		},
	}

	d.sink.Emit(events.Record{
		Kind: events.KindAgentInvoked, Channel: msg.Channel,
		MessageID: msg.MessageID, Agent: route.AgentID,
	})

	if teamID := teamContextFor(settings, route); teamID != "" {
		return d.runTeamChain(ctx, settings, teamID, route, req)
	}

	agentCfg, ok := settings.Agent(route.AgentID)
	if !ok {
		return "", nil, fmt.Errorf("agent %s not configured", route.AgentID)
	}
	req.Agent = agentCfg
	result, err := d.invoker.Invoke(ctx, req)
	if err != nil {
		return "", nil, err
	}
	return result.Text, ExtractFiles(result.Text), nil
}

// respond writes the final response and settles the processing file.
func (d *Dispatcher) respond(claimed *queue.Claimed, msg *queue.Message, agentID, text string, files []string) {
	resp := &queue.Response{
		Channel:         msg.Channel,
		Sender:          msg.Sender,
		Message:         FinalizeText(text),
		OriginalMessage: msg.Message,
		MessageID:       msg.MessageID,
		Agent:           agentID,
		Files:           files,
	}
	if err := d.queue.WriteResponse(resp); err != nil {
		slog.Error("response write failed", "message_id", msg.MessageID, "error", err)
		_, _ = d.queue.Fail(claimed)
		return
	}
	if err := d.queue.Complete(claimed); err != nil {
		slog.Warn("completion cleanup failed", "error", err)
	}

	d.sink.Emit(events.Record{
		Kind: events.KindResponseSent, Channel: msg.Channel,
		MessageID: msg.MessageID, Agent: agentID,
	})
	d.sink.Chat(msg.SessionKey, "agent", agentID, resp.Message)
}

// writeErrorResponse surfaces an opaque failure message to the user.
func (d *Dispatcher) writeErrorResponse(msg *queue.Message, agentID string) {
	err := d.queue.WriteResponse(&queue.Response{
		Channel:         msg.Channel,
		Sender:          msg.Sender,
		Message:         errorResponseText,
		OriginalMessage: msg.Message,
		MessageID:       msg.MessageID,
		Agent:           agentID,
	})
	if err != nil {
		slog.Warn("error response write failed", "message_id", msg.MessageID, "error", err)
	}
}
