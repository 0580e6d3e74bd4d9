// The webtrees binary is the command-line client for the genealogy API.
// All functionality lives in internal/interfaces/cli; this file only
// forwards build metadata and the exit code.
package main

import (
	"os"

	"github.com/mirono/webtrees/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
