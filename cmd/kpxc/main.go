// Package main is the entry point for the kpxc CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrz1836/kpxc/internal/cli"
)

// Set by the linker: -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
//
//nolint:gochecknoglobals // Populated at build time
var (
	version string
	commit  string
	date    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)

	cli.SetBuildInfo(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	err := cli.Execute(ctx)
	stop()

	if err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
