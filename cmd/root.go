package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/tinyclaw/cmd.Version=v1.0.0"
var Version = "dev"

var (
	configHome string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tinyclaw",
	Short: "tinyclaw — multi-agent dispatch bus for AI coding agents",
	Long:  "tinyclaw routes chat messages to claude and codex CLI agents through a crash-safe file queue, with session continuity, team chains, and human tool approval.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configHome, "config-home", "", "config home directory (default: $TINYCLAW_CONFIG_HOME or ~/.tinyclaw)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(dispatcherCmd())
	rootCmd.AddCommand(discordCmd())
	rootCmd.AddCommand(hookCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tinyclaw %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
