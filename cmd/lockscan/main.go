package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, apperr.Message(err))
		stop()
		os.Exit(apperr.ExitCode(err))
	}
}
