// Package soundsettings owns the process-wide notification sound
// configuration: fetching it from the backend, normalizing it against
// built-in defaults and keeping it fresh across reconnects, foreground
// transitions and local broadcast updates.
package soundsettings

import "maps"

const (
	// SoundNone explicitly suppresses playback for a key.
	SoundNone = "none"

	// DefaultVolume is applied when the payload has no usable volume.
	DefaultVolume = 0.8

	// DefaultSoundID is the fallback asset when the payload names none.
	DefaultSoundID = "chime"
)

// builtinEventSounds is the fixed default mapping from configuration key
// to asset identifier. Incoming payloads are merged over it key by key, so
// a normalized settings value always contains at least these keys. Events
// with a legacy configuration key (new_order, driver_arrived, stock_low)
// carry their default under that key only: the primary event name stays
// absent so an explicit primary-key value from the backend takes
// precedence in the dispatcher's alias walk.
var builtinEventSounds = map[string]string{
	"new_order":       "new_order",
	"order_preparing": "alert",
	"order_ready":     "success",
	"order_delivered": "success",
	"driver_arrived":  "horn",
	"payment_made":    "cash",
	"stock_low":       "warning",
	"stock_restocked": "success",
}

// BuiltinEventKeys returns the configuration keys every normalized
// settings value is guaranteed to contain.
func BuiltinEventKeys() []string {
	keys := make([]string, 0, len(builtinEventSounds))
	for k := range builtinEventSounds {
		keys = append(keys, k)
	}
	return keys
}

// Settings is the normalized notification sound configuration. It is a
// value object: replaced wholesale on every update, never mutated in place.
type Settings struct {
	// Enabled is the master switch; when false no sound is ever played.
	Enabled bool
	// EnableSounds is the secondary switch; both must be true to play.
	EnableSounds bool
	// Volume in [0,1].
	Volume float64
	// DefaultSound is the fallback asset identifier, or "none".
	DefaultSound string
	// EventSounds maps configuration key to asset identifier; always a
	// superset of the built-in keys after normalization.
	EventSounds map[string]string
}

// Clone returns a deep copy so published values cannot be mutated by
// consumers.
func (s Settings) Clone() Settings {
	out := s
	out.EventSounds = make(map[string]string, len(s.EventSounds))
	maps.Copy(out.EventSounds, s.EventSounds)
	return out
}

// SoundsActive reports whether both switches allow playback.
func (s Settings) SoundsActive() bool {
	return s.Enabled && s.EnableSounds
}
