//go:build !windows

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchVisibility maps SIGUSR1 to hidden, and SIGUSR2 or SIGCONT to
// visible, until ctx is done.
func watchVisibility(ctx context.Context, setVisible func(bool)) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCONT)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				setVisible(sig != syscall.SIGUSR1)
			}
		}
	}()
}
