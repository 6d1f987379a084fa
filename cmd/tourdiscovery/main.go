package main

import (
	"os"

	"github.com/withObsrvr/tour-discovery/internal/cli/cmd"
)

// Set by -ldflags at build time.
var (
	version   string
	gitCommit string
	buildDate string
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildDate)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
