// Package audio provides sound asset resolution and playback for the
// notification dispatcher. Playback runs on a malgo (miniaudio) context,
// one device per playback handle, with decoded WAV assets and software
// volume scaling.
package audio

// Handle is a single prepared playback instance. Handles are owned by the
// dispatcher, keyed by event name, and must be stopped and released before
// a replacement is created under the same key.
type Handle interface {
	// SetVolume sets the playback volume in [0,1]. Values outside the
	// range are clamped.
	SetVolume(volume float64)

	// Play starts playback from the beginning.
	Play() error

	// Stop halts playback. Stopping an already stopped or finished
	// handle is benign and returns nil.
	Stop() error

	// Release frees the underlying device. The handle is unusable after.
	Release()
}

// Engine turns a resolved asset URI into a playable handle. The concrete
// implementation owns the platform audio context.
type Engine interface {
	// Prepare loads the asset at uri and returns a ready-to-play handle.
	Prepare(uri string) (Handle, error)

	// Close tears down the platform audio context. Outstanding handles
	// must be released by their owner first.
	Close()
}
