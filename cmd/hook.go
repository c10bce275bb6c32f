package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/approval"
	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func hookCmd() *cobra.Command {
	hook := &cobra.Command{
		Use:   "hook",
		Short: "Agent CLI hook entry points",
	}

	hook.AddCommand(&cobra.Command{
		Use:   "pre-tool-use",
		Short: "PreToolUse approval hook (reads the tool call on stdin)",
		Long:  "Invoked by the claude CLI before each tool call. Checks the allowlists and blocks on a human decision when the tool is not pre-approved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The hook runs inside the agent's environment; the config home
			// is inherited from the dispatcher via env.
			var p config.Paths
			if configHome != "" {
				p = config.PathsAt(configHome)
			} else {
				p = config.ResolvePaths()
			}
			return approval.RunHook(p, os.Stdin, os.Stdout)
		},
	})

	return hook
}
