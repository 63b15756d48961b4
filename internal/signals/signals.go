// Package signals turns SIGINT/SIGTERM into context cancellation. This is a
// leaf package: stdlib only, no internal imports, no logging.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupSignalContext creates a context that's canceled on the first SIGINT or
// SIGTERM. Later signals do not kill the process while the context's owner is
// still cleaning up; onRepeat, when set, is called for each of them instead.
func SetupSignalContext(parent context.Context, onRepeat func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	stop := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
			return
		}
		for {
			select {
			case sig := <-sigChan:
				if onRepeat != nil {
					onRepeat(sig)
				}
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		cancel()
		once.Do(func() { close(stop) })
	}
}
