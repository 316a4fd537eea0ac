package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/masahif/find404/internal/cmd"
)

// Version information set by build flags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Set version information
	cmd.SetVersionInfo(Version, BuildTime)

	os.Exit(run())
}

// run executes the CLI, prints any error that has not been shown yet and returns the exit code
func run() int {
	err := cmd.Execute()
	if err == nil {
		return cmd.ExitOK
	}

	var exitErr *cmd.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Silent() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return cmd.ExitCode(err)
}
