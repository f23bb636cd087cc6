package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var listReposJSON bool

var listReposCmd = &cobra.Command{
	Use:   "list-repos",
	Short: "Print a status snapshot for every tracked repo",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()

		repos := h.ListRepos(context.Background())
		if listReposJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range repos {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		}
		for _, r := range repos {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s lock=%s\n", r.ID, r.Status, r.LockStatus)
		}
		return nil
	},
}

func init() {
	listReposCmd.Flags().BoolVar(&listReposJSON, "json", false, "print one JSON object per repo instead of a table")
}
