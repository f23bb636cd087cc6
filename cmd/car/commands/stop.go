package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <run_id>",
	Short: "Set the stop flag on a run, acknowledged on its next step boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openRepoSession()
		if err != nil {
			return err
		}
		defer sess.Close()
		return sess.eng.Stop(context.Background(), args[0])
	},
}
