package main

import (
	"fmt"
	"os"

	"github.com/codex-autorunner/car/cmd/car-hub/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCode(err))
	}
}
