package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub's background scan/GC schedule and manifest watch until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stopScheduler, err := h.StartScheduler(ctx)
		if err != nil {
			return fmt.Errorf("car-hub: start scheduler: %w", err)
		}
		defer stopScheduler()

		stopWatch, err := h.StartManifestWatch(ctx)
		if err != nil {
			return fmt.Errorf("car-hub: start manifest watch: %w", err)
		}
		defer stopWatch()

		fmt.Fprintln(cmd.OutOrStdout(), "hub running, press Ctrl+C to stop")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
		return nil
	},
}
