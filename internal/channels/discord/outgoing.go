package discord

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/tinyclaw/internal/channels"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
)

const (
	// streamingMaxChars leaves headroom under the 2000 limit for the
	// streaming suffix.
	streamingMaxChars = 1950
	streamingSuffix   = "\n\n*[streaming...]*"

	threadAutoArchiveMinutes = 1440
)

// placeholderRef locates the live placeholder message for a streaming
// conversation. The channel matters: the placeholder may live in the
// thread or, after a creation failure, in the parent channel.
type placeholderRef struct {
	channelID string
	messageID string
}

// pollOutgoing delivers every outgoing file addressed to this adapter.
func (a *Adapter) pollOutgoing() {
	items, err := a.queue.ListOutgoing(ChannelName)
	if err != nil {
		slog.Warn("outgoing poll failed", "error", err)
		return
	}
	for _, item := range items {
		if item.Partial != nil {
			a.deliverPartial(item.Path, item.Partial)
			continue
		}
		a.deliverFinal(item.Path, item.Response)
	}
}

// deliverPartial creates or edits the live placeholder message for a
// streaming invocation. The conversation thread is created here when the
// first chunk arrives. Edits are rate limited to one per second per
// message; a skipped update is caught by the next poll.
func (a *Adapter) deliverPartial(path string, p *queue.StreamingPartial) {
	pend, ok := a.pending.Get(p.MessageID)
	if !ok {
		// No delivery target left (pruned or restarted past the TTL); the
		// partial can never be shown, so drop the file.
		slog.Debug("dropping partial with no pending entry", "message_id", p.MessageID)
		a.queue.Remove(path)
		return
	}

	limiter, _ := a.editLimiters.LoadOrStore(p.MessageID,
		rate.NewLimiter(rate.Every(time.Second), 1))
	if !limiter.(*rate.Limiter).Allow() {
		return
	}

	target := a.replyTarget(p.MessageID, p.Agent, pend)
	text := truncateStreaming(p.Partial)

	var components []discordgo.MessageComponent
	if p.Cancelable {
		components = cancelComponents(p.MessageID)
	}

	if ref, ok := a.placeholders.Load(p.MessageID); ok {
		ph := ref.(placeholderRef)
		_, err := a.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    ph.channelID,
			ID:         ph.messageID,
			Content:    &text,
			Components: &components,
		})
		if err != nil {
			slog.Debug("streaming edit failed", "message_id", p.MessageID, "error", err)
		}
		return
	}

	send := &discordgo.MessageSend{Content: text, Components: components}
	if target == pend.ChannelID && !pend.IsDM {
		send.Reference = &discordgo.MessageReference{MessageID: p.MessageID, ChannelID: pend.ChannelID}
	}
	sent, err := a.session.ChannelMessageSendComplex(target, send)
	if err != nil {
		slog.Debug("streaming placeholder send failed", "message_id", p.MessageID, "error", err)
		return
	}
	a.placeholders.Store(p.MessageID, placeholderRef{channelID: target, messageID: sent.ID})
}

// deliverFinal sends the final response: placeholder edit plus chunked
// follow-ups, file uploads, and cleanup of the outgoing file. The thread
// is created here only when no streaming chunk already forced it.
func (a *Adapter) deliverFinal(path string, r *queue.Response) {
	a.stopTyping(r.MessageID)

	pend, ok := a.pending.Get(r.MessageID)
	if !ok {
		// Nothing left to deliver to. Pruned or restarted past the TTL.
		slog.Warn("dropping response with no pending entry", "message_id", r.MessageID)
		a.queue.Remove(path)
		return
	}

	target := a.replyTarget(r.MessageID, r.Agent, pend)

	if err := a.sendFinalText(r, target); err != nil {
		if isPermanentSendError(err) {
			slog.Warn("permanent delivery failure, dropping response",
				"message_id", r.MessageID, "error", err)
		} else {
			slog.Warn("delivery failed, will retry", "message_id", r.MessageID, "error", err)
			return // keep the outgoing file for the next poll
		}
	}

	for _, file := range r.Files {
		a.uploadFile(target, file)
	}

	a.queue.Remove(path)
	a.pending.Delete(r.MessageID)
	a.placeholders.Delete(r.MessageID)
	a.editLimiters.Delete(r.MessageID)
	a.threadTargets.Delete(r.MessageID)
}

// replyTarget returns the channel all output for a message goes to. A
// guild conversation gets a thread off the originating message, created
// the first time anything — streaming chunk, approval prompt, or final
// response — needs a destination.
func (a *Adapter) replyTarget(messageID, agentID string, pend channels.PendingMessage) string {
	if pend.IsDM {
		return pend.ChannelID
	}
	if ch := a.channelInfo(pend.ChannelID); ch != nil && isThreadType(ch.Type) {
		return pend.ChannelID
	}
	if id, ok := a.threadTargets.Load(messageID); ok {
		return id.(string)
	}

	thread, err := a.session.MessageThreadStartComplex(pend.ChannelID, messageID,
		&discordgo.ThreadStart{
			Name:                threadName(pend.Preview),
			AutoArchiveDuration: threadAutoArchiveMinutes,
		})
	if err != nil {
		slog.Warn("thread creation failed, replying in channel",
			"message_id", messageID, "error", err)
		return pend.ChannelID
	}

	a.threads.Register(thread.ID, agentID)
	// Follow-ups in the thread continue the conversation the original
	// message started.
	if err := a.store.Remap(messageID, thread.ID); err != nil {
		slog.Warn("session remap failed",
			"message_id", messageID, "thread_id", thread.ID, "error", err)
	}
	a.threadTargets.Store(messageID, thread.ID)
	return thread.ID
}

// sendFinalText edits the streaming placeholder with the first chunk when
// the placeholder lives in the target channel, then sends the remaining
// chunks as plain messages.
func (a *Adapter) sendFinalText(r *queue.Response, target string) error {
	text := r.Message
	if strings.TrimSpace(text) == "" {
		text = "(no response)"
	}
	chunks := channels.SplitMessage(text, channels.DefaultChunkSize)

	if ref, ok := a.placeholders.Load(r.MessageID); ok {
		ph := ref.(placeholderRef)
		if ph.channelID == target {
			empty := []discordgo.MessageComponent{}
			_, err := a.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
				Channel:    ph.channelID,
				ID:         ph.messageID,
				Content:    &chunks[0],
				Components: &empty,
			})
			if err == nil {
				chunks = chunks[1:]
			} else {
				slog.Debug("placeholder final edit failed, sending fresh",
					"message_id", r.MessageID, "error", err)
			}
		} else {
			// Placeholder stranded outside the final target; superseded.
			_ = a.session.ChannelMessageDelete(ph.channelID, ph.messageID)
		}
	}

	for _, chunk := range chunks {
		if _, err := a.session.ChannelMessageSend(target, chunk); err != nil {
			return fmt.Errorf("send chunk: %w", err)
		}
	}
	return nil
}

// uploadFile attaches a local file to the conversation. Failures are
// logged; the text already made it.
func (a *Adapter) uploadFile(target, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("file upload open failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := a.session.ChannelFileSend(target, filepath.Base(path), f); err != nil {
		slog.Warn("file upload failed", "path", path, "error", err)
	}
}

// truncateStreaming caps live text below the message limit and appends
// the streaming marker, backing up to a rune boundary so Discord never
// sees a split code point.
func truncateStreaming(text string) string {
	if len(text) > streamingMaxChars {
		cut := streamingMaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text + streamingSuffix
}

// threadName derives a thread title from the original message.
func threadName(original string) string {
	name := strings.TrimSpace(original)
	if idx := strings.IndexByte(name, '\n'); idx >= 0 {
		name = name[:idx]
	}
	if len(name) > 80 {
		cut := 80
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	if name == "" {
		name = "Conversation"
	}
	return name
}

// isPermanentSendError matches API failures that no retry will fix:
// deleted originals, malformed references, inaccessible channels.
func isPermanentSendError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"Cannot reply", "Unknown Message", "Invalid Form Body", "Missing Access"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func cancelComponents(messageID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Cancel",
					Style:    discordgo.DangerButton,
					CustomID: "cancel:" + messageID,
				},
			},
		},
	}
}
