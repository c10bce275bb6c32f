package discord

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/tinyclaw/internal/channels"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
	"github.com/nextlevelbuilder/tinyclaw/internal/sessions"
)

var attachmentClient = &http.Client{Timeout: 30 * time.Second}

// handleMessage filters and enqueues an inbound Discord message.
func (a *Adapter) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	ch := a.channelInfo(m.ChannelID)
	isThread := ch != nil && isThreadType(ch.Type)

	if !a.accepts(m, isDM, isThread) {
		return
	}

	content := strings.TrimSpace(a.stripBotMention(m.Content))
	files := a.downloadAttachments(m)
	if content == "" && len(files) == 0 {
		return
	}
	if content == "" {
		content = "[attachment]"
	}

	sessionKey := m.ID // a fresh guild message gets a thread later
	switch {
	case isThread:
		sessionKey = m.ChannelID
	case isDM:
		sessionKey = sessions.DMSessionKey(m.Author.ID)
	}

	msg := &queue.Message{
		Channel:    ChannelName,
		Sender:     displayName(m),
		SenderID:   m.Author.ID,
		Message:    content,
		MessageID:  m.ID,
		Agent:      a.preRoutedAgent(m.ChannelID, ch),
		Files:      files,
		SessionKey: sessionKey,
	}
	if err := a.queue.Enqueue(msg); err != nil {
		slog.Error("enqueue failed", "message_id", m.ID, "error", err)
		return
	}

	a.pending.Put(m.ID, channels.PendingMessage{
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		IsDM:      isDM,
		Preview:   content,
	})
	a.startTyping(m.ID, m.ChannelID)

	slog.Debug("discord message enqueued",
		"message_id", m.ID,
		"sender", msg.Sender,
		"session_key", sessionKey,
		"preview", channels.Truncate(content, 50))
}

// accepts applies the inbound gate: DMs always, bot-owned threads always,
// allow-listed channels always, anything else only with an @-mention.
func (a *Adapter) accepts(m *discordgo.MessageCreate, isDM, isThread bool) bool {
	if isDM {
		return true
	}
	if isThread && a.threads.Owns(m.ChannelID) {
		return true
	}
	if containsString(a.settings.Discord.AllowedChannels, m.ChannelID) {
		return true
	}
	for _, u := range m.Mentions {
		if u.ID == a.botUserID {
			return true
		}
	}
	return false
}

// preRoutedAgent resolves the agent a message is bound to before routing:
// the agent the thread was created for, then the channel's default,
// checking the thread parent when the message arrived in a thread.
func (a *Adapter) preRoutedAgent(channelID string, ch *discordgo.Channel) string {
	if agent, ok := a.threads.Agent(channelID); ok && agent != "" {
		return agent
	}
	defaults := a.settings.Discord.DefaultAgents
	if agent, ok := defaults[channelID]; ok {
		return agent
	}
	if ch != nil && ch.ParentID != "" {
		return defaults[ch.ParentID]
	}
	return ""
}

// stripBotMention removes the leading @bot mention from message text.
func (a *Adapter) stripBotMention(content string) string {
	for _, form := range []string{"<@" + a.botUserID + ">", "<@!" + a.botUserID + ">"} {
		content = strings.ReplaceAll(content, form, "")
	}
	return content
}

// downloadAttachments fetches each attachment into the shared files dir
// and returns the local paths. A failed download is logged and skipped.
func (a *Adapter) downloadAttachments(m *discordgo.MessageCreate) []string {
	var paths []string
	for _, att := range m.Attachments {
		name := sanitizeFilename(att.Filename)
		if name == "" {
			name = "attachment"
		}
		dest := filepath.Join(a.paths.FilesDir(), fmt.Sprintf("%s_%s", m.ID, name))
		if err := downloadFile(att.URL, dest); err != nil {
			slog.Warn("attachment download failed",
				"message_id", m.ID, "filename", att.Filename, "error", err)
			continue
		}
		paths = append(paths, dest)
	}
	return paths
}

func downloadFile(url, dest string) error {
	resp, err := attachmentClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

// sanitizeFilename keeps the basename and replaces anything outside a
// conservative character set.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

// channelInfo resolves channel metadata from the session cache, falling
// back to the API.
func (a *Adapter) channelInfo(channelID string) *discordgo.Channel {
	if ch, err := a.session.State.Channel(channelID); err == nil {
		return ch
	}
	ch, err := a.session.Channel(channelID)
	if err != nil {
		return nil
	}
	return ch
}

func isThreadType(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}

// displayName prefers server nickname, then global display name, then
// username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
