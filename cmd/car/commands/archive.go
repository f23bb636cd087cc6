package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <run_id>",
	Short: "Move a terminal run's completed tickets into its artifact directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openRepoSession()
		if err != nil {
			return err
		}
		defer sess.Close()
		return sess.eng.Archive(context.Background(), args[0])
	},
}
