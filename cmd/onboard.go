package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Long:  "Creates the config tree, registers the first agent, and stores the Discord bot token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	var p config.Paths
	if configHome != "" {
		p = config.PathsAt(configHome)
	} else {
		p = config.ResolvePaths()
	}

	var (
		token    string
		agentID  = "default"
		provider = string(config.ProviderAnthropic)
		model    string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				Description("From the Discord developer portal. Leave empty to use DISCORD_BOT_TOKEN.").
				EchoMode(huh.EchoModePassword).
				Value(&token),
			huh.NewInput().
				Title("First agent ID").
				Value(&agentID).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("agent ID is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Provider").
				Options(
					huh.NewOption("claude (anthropic)", string(config.ProviderAnthropic)),
					huh.NewOption("codex (openai)", string(config.ProviderOpenAI)),
				).
				Value(&provider),
			huh.NewInput().
				Title("Model").
				Description("Optional: sonnet, opus, haiku, or a full model name.").
				Value(&model),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if err := p.EnsureTree(); err != nil {
		return fmt.Errorf("create config tree: %w", err)
	}

	settings, err := config.LoadSettings(p)
	if err != nil {
		return err
	}
	settings.Agents[agentID] = config.AgentConfig{
		Name:     agentID,
		Provider: config.Provider(provider),
		Model:    model,
	}
	if err := writeJSONFile(p.SettingsFile(), settings, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	if token != "" {
		creds := &config.Credentials{}
		creds.Discord.BotToken = token
		if err := writeJSONFile(p.CredentialsFile(), creds, 0o600); err != nil {
			return fmt.Errorf("write credentials: %w", err)
		}
	}

	fmt.Println()
	fmt.Printf("Config written to %s\n", p.ConfigHome)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  tinyclaw dispatcher   # in one terminal")
	fmt.Println("  tinyclaw discord      # in another")
	return nil
}

func writeJSONFile(path string, v any, mode os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, mode)
}
