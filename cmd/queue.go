package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
)

func queueCmd() *cobra.Command {
	q := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the file queue",
	}

	q.AddCommand(&cobra.Command{
		Use:       "ls [incoming|processing|dead-letter]",
		Short:     "List queued message files",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"incoming", "processing", "dead-letter"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var p config.Paths
			if configHome != "" {
				p = config.PathsAt(configHome)
			} else {
				p = config.ResolvePaths()
			}
			settings, err := config.LoadSettings(p)
			if err != nil {
				return err
			}

			which := []string{"incoming", "processing", "dead-letter"}
			if len(args) == 1 {
				which = args
			}

			qu := queue.New(p, settings.Queue)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "QUEUE\tFILE\tMESSAGE\tCHANNEL\tRETRIES\tAGE")

			for _, name := range which {
				entries, err := qu.List(name)
				if err != nil {
					return err
				}
				for _, e := range entries {
					age := "-"
					if !e.ModTime.IsZero() {
						age = time.Since(e.ModTime).Round(time.Second).String()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						name, e.Name, e.MessageID, e.Channel, e.RetryCount, age)
				}
			}
			return nil
		},
	})

	return q
}
