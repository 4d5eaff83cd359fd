// Package main is the entry point for the vali CLI.
package main

import (
	"os"

	"github.com/mrz1836/vali/internal/cli"
)

// Set at build time via -ldflags.
//
//nolint:gochecknoglobals // Build-time variables require package-level scope
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	err := cli.Execute(cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	if err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
