package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rigup/rigup/cmd/rigup/commands"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// An interrupt cancels the run context; the step in flight finishes or
	// fails on its own, nothing is killed mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		os.Exit(1)
	}
}
