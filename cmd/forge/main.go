// Package main provides the entry point for the forge CLI.
package main

import (
	"context"
	"os"

	"github.com/mrz1836/forge/internal/cli"
	"github.com/mrz1836/forge/internal/signal"
)

// Set by ldflags.
var (
	version = "dev"     //nolint:gochecknoglobals // build info
	commit  = "none"    //nolint:gochecknoglobals // build info
	date    = "unknown" //nolint:gochecknoglobals // build info
)

// exitInterrupted is the conventional exit code after a forced interrupt.
const exitInterrupted = 130

func main() {
	h := signal.NewHandler(context.Background(), signal.WithForce(func() {
		cli.CloseLogFile()
		os.Exit(exitInterrupted)
	}))
	code := cli.Execute(h.Context(), cli.BuildInfo{Version: version, Commit: commit, Date: date})
	h.Stop()
	os.Exit(code)
}
