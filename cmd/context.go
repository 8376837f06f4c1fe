package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// newCommandContext returns a context cancelled on SIGINT/SIGTERM, giving
// the run command a chance to stop the reconciler and release its
// resources before the process exits.
func newCommandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
