package discord

import (
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/tinyclaw/internal/channels"
	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func TestPreRoutedAgent(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Discord.DefaultAgents = map[string]string{
		"chan-default": "writer",
		"parent":       "reviewer",
	}

	threads := channels.NewThreadRegistry(filepath.Join(t.TempDir(), "bot-threads.json"))
	threads.Register("thread-coder", "coder")
	threads.Register("thread-unrouted", "")

	a := &Adapter{settings: settings, threads: threads}

	tests := []struct {
		name      string
		channelID string
		ch        *discordgo.Channel
		want      string
	}{
		{
			// A follow-up in a thread born from !coder stays with coder.
			name:      "thread keeps its originating agent",
			channelID: "thread-coder",
			ch:        &discordgo.Channel{Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "parent"},
			want:      "coder",
		},
		{
			name:      "unrouted thread falls back to the parent default",
			channelID: "thread-unrouted",
			ch:        &discordgo.Channel{Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "parent"},
			want:      "reviewer",
		},
		{
			name:      "channel default",
			channelID: "chan-default",
			want:      "writer",
		},
		{
			name:      "no default anywhere",
			channelID: "elsewhere",
			want:      "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.preRoutedAgent(tt.channelID, tt.ch); got != tt.want {
				t.Errorf("preRoutedAgent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"my file (1).png", "my_file__1_.png"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
