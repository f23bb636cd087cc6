package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codex-autorunner/car/flowstore"
)

var eventsAfterSeq int64

var eventsCmd = &cobra.Command{
	Use:   "events <run_id>",
	Short: "Stream a run's Flow Events as newline-delimited JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openRepoSession()
		if err != nil {
			return err
		}
		defer sess.Close()

		evs, err := sess.store.GetEvents(context.Background(), args[0], flowstore.GetEventFilter{AfterSeq: eventsAfterSeq})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, ev := range evs {
			if err := enc.Encode(ev); err != nil {
				return fmt.Errorf("car: encode event: %w", err)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int64Var(&eventsAfterSeq, "after-seq", 0, "only return events with seq greater than this")
}
