//go:build windows

package events

// StartOSSignals is a no-op on Windows, which has no SIGUSR equivalents.
// The unix socket listener remains the only external broadcast surface.
func StartOSSignals(bus *Bus) func() {
	return func() {}
}
