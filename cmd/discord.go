package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/bootstrap"
	"github.com/nextlevelbuilder/tinyclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func discordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discord",
		Short: "Run the Discord channel adapter",
		Long:  "Connects to Discord, enqueues inbound messages, and delivers responses, streaming partials, and approval prompts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			setup, err := bootstrap.Init(configHome, verbose)
			if err != nil {
				return err
			}

			creds, err := config.LoadCredentials(setup.Paths)
			if err != nil {
				return err
			}
			if creds.Discord.BotToken == "" {
				return fmt.Errorf("no Discord bot token: set DISCORD_BOT_TOKEN or run `tinyclaw onboard`")
			}

			adapter, err := discord.New(setup.Paths, setup.Settings, creds.Discord.BotToken)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return adapter.Run(ctx)
		},
	}
}
