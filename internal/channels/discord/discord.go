// Package discord connects the queue bus to Discord via the Bot API:
// inbound messages become queue files, outgoing responses and streaming
// partials become Discord messages, and approval requests become button
// prompts.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/tinyclaw/internal/channels"
	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/events"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
	"github.com/nextlevelbuilder/tinyclaw/internal/sessions"
)

// ChannelName is the queue channel this adapter produces and consumes.
const ChannelName = "discord"

const (
	outgoingPollInterval  = 1 * time.Second
	approvalsPollInterval = 1 * time.Second
	typingRefreshInterval = 8 * time.Second
	pendingPruneInterval  = 1 * time.Hour
)

var _ channels.Adapter = (*Adapter)(nil)

// Adapter is the Discord side of the bus.
type Adapter struct {
	paths    config.Paths
	settings *config.Settings
	session  *discordgo.Session
	queue    *queue.Queue
	store    *sessions.Store
	sink     *events.Sink
	pending  *channels.PendingStore
	threads  *channels.ThreadRegistry

	botUserID string

	placeholders  sync.Map // messageID → placeholderRef
	editLimiters  sync.Map // messageID → *rate.Limiter
	typingStops   sync.Map // messageID → context.CancelFunc
	threadTargets sync.Map // messageID → created thread ID
}

// New builds the adapter. The token comes from credentials (or the
// DISCORD_BOT_TOKEN override).
func New(p config.Paths, settings *config.Settings, token string) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token is not configured")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{
		paths:    p,
		settings: settings,
		session:  session,
		queue:    queue.New(p, settings.Queue),
		store:    sessions.NewStore(p.SessionsFile(), p.SessionsLockFile()),
		sink:     events.NewSink(p),
		pending:  channels.NewPendingStore(p.PendingMessagesFile()),
		threads:  channels.NewThreadRegistry(p.BotThreadsFile()),
	}, nil
}

// Run opens the gateway connection and drives the pollers until ctx is
// done.
func (a *Adapter) Run(ctx context.Context) error {
	a.session.AddHandler(a.handleMessage)
	a.session.AddHandler(a.handleInteraction)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer a.session.Close()

	me, err := a.session.User("@me")
	if err != nil {
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	a.botUserID = me.ID
	slog.Info("discord bot connected", "username", me.Username, "id", me.ID)

	outgoing := time.NewTicker(outgoingPollInterval)
	defer outgoing.Stop()
	approvals := time.NewTicker(approvalsPollInterval)
	defer approvals.Stop()
	prune := time.NewTicker(pendingPruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("discord bot stopping")
			return nil
		case <-outgoing.C:
			a.pollOutgoing()
		case <-approvals.C:
			a.pollApprovals()
		case <-prune.C:
			if n := a.pending.Prune(); n > 0 {
				slog.Info("pruned stale pending messages", "count", n)
			}
		}
	}
}

// startTyping keeps the typing indicator alive for a message until
// stopTyping is called. Discord's indicator expires after ~10 s.
func (a *Adapter) startTyping(messageID, channelID string) {
	ctx, cancel := context.WithCancel(context.Background())
	if prev, loaded := a.typingStops.Swap(messageID, cancel); loaded {
		prev.(context.CancelFunc)()
	}

	go func() {
		_ = a.session.ChannelTyping(channelID)
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = a.session.ChannelTyping(channelID)
			}
		}
	}()
}

// stopTyping ends the typing refresh for a message.
func (a *Adapter) stopTyping(messageID string) {
	if cancel, loaded := a.typingStops.LoadAndDelete(messageID); loaded {
		cancel.(context.CancelFunc)()
	}
}
