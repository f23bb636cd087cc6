package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codex-autorunner/car/engine"
)

var forceNew bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create or reuse the repo's active flow run, then step it to its next stop condition",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openRepoSession()
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx := context.Background()
		runID, hint, err := sess.eng.Start(ctx, forceNew)
		if err != nil {
			return lockAliveHint(err)
		}
		if hint == engine.HintActiveRunReused {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s already active, not re-stepping\n", runID)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s started\n", runID)
		return lockAliveHint(sess.eng.Step(ctx, runID))
	},
}

func init() {
	startCmd.Flags().BoolVar(&forceNew, "force-new", false, "supersede any active run instead of reusing it")
}
