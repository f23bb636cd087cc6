package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rediscover repos under the hub's repos_root and update the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()

		discovered, err := h.Scan(context.Background())
		if err != nil {
			return err
		}
		for _, id := range discovered {
			fmt.Fprintf(cmd.OutOrStdout(), "discovered %s\n", id)
		}
		return nil
	},
}
