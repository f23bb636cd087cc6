package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var worktreeSetupCommands []string

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Manage secondary git worktree checkouts",
}

var worktreeCreateCmd = &cobra.Command{
	Use:   "create <base_repo_id> <branch>",
	Short: "Add a git worktree, register it, and run its setup commands",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()

		entry, err := h.WorktreeCreate(context.Background(), args[0], args[1], worktreeSetupCommands)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "worktree %s at %s\n", entry.ID, entry.Path)
		return nil
	},
}

var worktreeCleanupCmd = &cobra.Command{
	Use:   "cleanup <worktree_id>",
	Short: "Remove a worktree and its manifest entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHub()
		if err != nil {
			return err
		}
		defer h.Close()
		return h.WorktreeCleanup(context.Background(), args[0])
	},
}

func init() {
	worktreeCreateCmd.Flags().StringArrayVar(&worktreeSetupCommands, "setup", nil, "shell command to run after creation (repeatable)")
	worktreeCmd.AddCommand(worktreeCreateCmd, worktreeCleanupCmd)
}
