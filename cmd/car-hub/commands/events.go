package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var hubEventsAfterSeq int64

var eventsCmd = &cobra.Command{
	Use:   "events <repo_id> <run_id>",
	Short: "Stream a repo's run events as newline-delimited JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()

		evs, err := h.Events(context.Background(), args[0], args[1], hubEventsAfterSeq)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, ev := range evs {
			if err := enc.Encode(ev); err != nil {
				return fmt.Errorf("car-hub: encode event: %w", err)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int64Var(&hubEventsAfterSeq, "after-seq", 0, "only return events with seq greater than this")
}
