package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <repo_id> <run_id>",
	Short: "Resume a repo's paused run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()
		return h.Resume(context.Background(), args[0], args[1])
	},
}
