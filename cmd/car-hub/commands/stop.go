package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <repo_id> <run_id>",
	Short: "Set the stop flag on a repo's run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()
		return h.Stop(context.Background(), args[0], args[1])
	},
}
