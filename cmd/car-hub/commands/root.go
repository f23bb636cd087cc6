// Package commands implements the car-hub CLI: a thin cobra front end over
// hub.Hub, exposing exactly the operation set in spec §6 "Process-external
// command surface" — scan, list-repos, start, stop, resume, worktree
// create/cleanup, and events — plus serve, which runs the hub's background
// scan/GC schedule and manifest watch in the foreground. Orchestrating many
// repos at once (the HTTP
// or chat front ends spec §6 calls out as out of scope) is left to
// whatever wraps this binary.
package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/codex-autorunner/car/config"
	"github.com/codex-autorunner/car/hub"
)

var rootCmd = &cobra.Command{
	Use:           "car-hub",
	Short:         "Supervise many repositories' ticket flows",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the car-hub CLI.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error to spec §6's exit code convention.
func ExitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrConfigError),
		errors.Is(err, config.ErrModeMismatch),
		errors.Is(err, config.ErrNotFound),
		errors.Is(err, hub.ErrConfigError):
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.AddCommand(scanCmd, listReposCmd, startCmd, stopCmd, resumeCmd, worktreeCmd, eventsCmd, serveCmd)
}

// openHub resolves the nearest hub-mode root from the current working
// directory and opens it, acquiring the hub lock for the lifetime of this
// invocation.
func openHub() (*hub.Hub, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := config.RequireMode(cwd, config.ModeHub)
	if err != nil {
		return nil, err
	}
	return hub.Open(root)
}
