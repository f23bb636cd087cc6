// Package commands implements the car CLI: a thin cobra front end over a
// single repo's Engine, exposing exactly the repo-mode operations from
// spec §4.4 (start, step-driven resume/stop, archive) plus run.events.
package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/codex-autorunner/car/config"
	"github.com/codex-autorunner/car/engine"
	"github.com/codex-autorunner/car/lock"
)

var rootCmd = &cobra.Command{
	Use:           "car",
	Short:         "Drive one repository's ticket flow",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the car CLI.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error to spec §6's exit code convention: 2 for config
// or mode-resolution errors (worth distinguishing for scripting), 1 for
// anything else, implicitly 0 when err is nil (main never calls this
// then).
func ExitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrConfigError),
		errors.Is(err, config.ErrModeMismatch),
		errors.Is(err, config.ErrNotFound),
		errors.Is(err, engine.ErrConfigError):
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, resumeCmd, archiveCmd, eventsCmd)
}

// lockAliveHint appends a short operator hint when err wraps
// lock.ErrLockedAlive, since that's the one failure mode every command
// here can hit and the bare error message doesn't say what to do about it.
func lockAliveHint(err error) error {
	if err != nil && errors.Is(err, lock.ErrLockedAlive) {
		return errors.New(err.Error() + " (another process is actively stepping this repo)")
	}
	return err
}
