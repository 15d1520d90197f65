package audio

// NopEngine satisfies Engine without touching any audio hardware. It backs
// degraded mode: asset resolution and handle lifecycle still run, playback
// is silent. Also used when sound output is disabled by configuration.
type NopEngine struct{}

// NewNopEngine returns a no-op engine.
func NewNopEngine() *NopEngine {
	return &NopEngine{}
}

func (e *NopEngine) Prepare(uri string) (Handle, error) {
	return &nopHandle{}, nil
}

func (e *NopEngine) Close() {}

type nopHandle struct{}

func (h *nopHandle) SetVolume(volume float64) {}
func (h *nopHandle) Play() error              { return nil }
func (h *nopHandle) Stop() error              { return nil }
func (h *nopHandle) Release()                 {}
