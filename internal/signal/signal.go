// Package signal cancels in-flight responses on Ctrl-C.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyContext returns a child of parent that is cancelled when SIGINT or
// SIGTERM is received. Cancelling it stops the running response; the parts
// assembled so far are kept.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
