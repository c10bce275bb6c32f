package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/bootstrap"
	"github.com/nextlevelbuilder/tinyclaw/internal/dispatch"
	"github.com/nextlevelbuilder/tinyclaw/internal/tracing"
)

func dispatcherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatcher",
		Short: "Run the message dispatcher",
		Long:  "Claims messages from the file queue, routes them to agents or team chains, and writes responses back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			setup, err := bootstrap.Init(configHome, verbose)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := tracing.Init(ctx, setup.Settings.Telemetry, "tinyclaw-dispatcher")
			if err != nil {
				slog.Warn("tracing init failed", "error", err)
			} else {
				defer func() {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = shutdown(flushCtx)
				}()
			}

			return dispatch.New(setup.Paths, setup.Settings).Run(ctx)
		},
	}
}
