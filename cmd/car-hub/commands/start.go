package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var hubForceNew bool

var startCmd = &cobra.Command{
	Use:   "start <repo_id>",
	Short: "Create or reuse a repo's active flow run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()

		runID, hint, err := h.Start(context.Background(), args[0], hubForceNew)
		if err != nil {
			return err
		}
		if hint != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s)\n", runID, hint)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s started\n", runID)
		return nil
	},
}

func init() {
	startCmd.Flags().BoolVar(&hubForceNew, "force-new", false, "supersede any active run instead of reusing it")
}
