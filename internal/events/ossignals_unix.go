//go:build unix

package events

import (
	"os"
	"os/signal"
	"syscall"
)

// StartOSSignals maps SIGUSR1/SIGUSR2 onto foreground/background app state
// signals, so wrapper scripts can drive the lifecycle without the socket.
// The returned stop function releases the signal handler.
func StartOSSignals(bus *Bus) func() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigChan:
				state := AppStateForeground
				if sig == syscall.SIGUSR2 {
					state = AppStateBackground
				}
				bus.Publish(Signal{Kind: KindAppState, State: state})
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
