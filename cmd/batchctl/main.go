package main

import (
	"os"

	"github.com/dylanpieper/batchGPT/internal/cli/cmd"
)

// Build information, injected via -ldflags at release time.
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
