package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run_id>",
	Short: "Resume a paused run and step it to its next stop condition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openRepoSession()
		if err != nil {
			return err
		}
		defer sess.Close()
		return lockAliveHint(sess.eng.Resume(context.Background(), args[0]))
	},
}
