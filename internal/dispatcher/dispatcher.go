// Package dispatcher turns inbound business events into notification
// sounds. It holds the current sound settings, resolves each event to an
// asset through the alias and fallback chain, enforces one live playback
// handle per event name and degrades to silence on any failure.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/beyproweb/beypro-notify/internal/audio"
	"github.com/beyproweb/beypro-notify/internal/eventstream"
	"github.com/beyproweb/beypro-notify/internal/logging"
	"github.com/beyproweb/beypro-notify/internal/soundsettings"
	"github.com/beyproweb/beypro-notify/internal/telemetry"
)

// subscribedEvents is the fixed set of event names that trigger sounds.
// The catch-all orders_updated event is deliberately absent: it fires
// alongside order_confirmed and would double every order notification.
var subscribedEvents = []string{
	"order_confirmed",
	"order_preparing",
	"order_ready",
	"order_delivered",
	"driver_assigned",
	"payment_made",
	"stock_critical",
	"stock_restocked",
}

// aliasGroups lists the settings keys consulted for an event, in
// precedence order. Backends and older app versions configured some
// events under sibling or legacy keys.
var aliasGroups = map[string][]string{
	"order_confirmed": {"order_confirmed", "new_order"},
	"driver_assigned": {"driver_assigned", "driver_arrived"},
	"stock_critical":  {"stock_critical", "stock_low"},
}

// Recorder persists a record of every sound actually played. Recording is
// best-effort and never blocks or fails playback.
type Recorder interface {
	RecordSoundEvent(ctx context.Context, event, asset string, volume float64) error
}

// slot tracks the playback state for one event name. seq increments on
// every firing so a slow resolution can detect it has been superseded.
type slot struct {
	seq    uint64
	handle audio.Handle
}

// Dispatcher owns per-event playback handles and the current settings
// value. All state is instance-scoped so tests and multi-tenant setups
// stay isolated.
type Dispatcher struct {
	engine   audio.Engine
	resolver *audio.Resolver
	metrics  *telemetry.Metrics
	recorder Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	settings *soundsettings.Settings
	slots    map[string]*slot
	closed   bool
}

// New creates a dispatcher on the given engine and asset resolver.
// Metrics and recorder are optional.
func New(engine audio.Engine, resolver *audio.Resolver, metrics *telemetry.Metrics, recorder Recorder) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		resolver: resolver,
		metrics:  metrics,
		recorder: recorder,
		logger:   logging.ForService("dispatcher"),
		slots:    make(map[string]*slot),
	}
}

// Bindings returns the handler table for the event stream. The same fixed
// table is installed after every reconnect, so subscribe and teardown stay
// symmetric.
func (d *Dispatcher) Bindings() []eventstream.Binding {
	bindings := make([]eventstream.Binding, 0, len(subscribedEvents))
	for _, event := range subscribedEvents {
		event := event
		bindings = append(bindings, eventstream.Binding{
			Event: event,
			Handler: func(string, json.RawMessage) {
				// Resolution and playback are I/O bound, keep them off
				// the connection's read goroutine.
				go d.HandleEvent(event)
			},
		})
	}
	return bindings
}

// ApplySettings replaces the current settings value wholesale.
func (d *Dispatcher) ApplySettings(settings soundsettings.Settings) {
	d.mu.Lock()
	s := settings.Clone()
	d.settings = &s
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.SettingsApplied.Inc()
	}
	d.logger.Info("sound settings applied",
		"enabled", settings.Enabled,
		"enable_sounds", settings.EnableSounds,
		"volume", settings.Volume,
		"default_sound", settings.DefaultSound)
}

// Settings returns a copy of the current settings, false when none have
// been applied yet.
func (d *Dispatcher) Settings() (soundsettings.Settings, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settings == nil {
		return soundsettings.Settings{}, false
	}
	return d.settings.Clone(), true
}

// HandleEvent resolves and plays the sound for one event firing. Every
// failure mode degrades to no sound this time.
func (d *Dispatcher) HandleEvent(event string) {
	if d.metrics != nil {
		d.metrics.EventsReceived.WithLabelValues(event).Inc()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	if d.settings == nil || !d.settings.SoundsActive() {
		d.mu.Unlock()
		d.skip("sounds_disabled")
		return
	}
	asset, ok := resolveAsset(*d.settings, event)
	if !ok {
		d.mu.Unlock()
		d.skip("no_asset_mapped")
		return
	}
	volume := d.settings.Volume

	// Stop and release the previous playback for this event name before
	// anything new is created under the same key.
	sl := d.slots[event]
	if sl == nil {
		sl = &slot{}
		d.slots[event] = sl
	}
	sl.seq++
	seq := sl.seq
	if sl.handle != nil {
		d.stopAndRelease(sl.handle)
		sl.handle = nil
	}
	d.mu.Unlock()

	uri, err := d.resolver.Resolve(asset)
	if err != nil {
		d.logger.Warn("sound asset did not resolve", "event", event, "asset", asset, "error", err)
		d.skip("asset_unresolved")
		return
	}

	handle, err := d.engine.Prepare(uri)
	if err != nil {
		d.logger.Warn("failed to prepare playback", "event", event, "asset", asset, "error", err)
		if d.metrics != nil {
			d.metrics.PlaybackErrors.WithLabelValues("prepare").Inc()
		}
		return
	}
	handle.SetVolume(volume)

	d.mu.Lock()
	if d.closed || d.slots[event].seq != seq {
		// A newer firing of the same event name took over while this one
		// was resolving. Discard quietly.
		d.mu.Unlock()
		handle.Release()
		return
	}
	d.slots[event].handle = handle
	d.mu.Unlock()

	if err := handle.Play(); err != nil {
		d.logger.Warn("failed to start playback", "event", event, "asset", asset, "error", err)
		if d.metrics != nil {
			d.metrics.PlaybackErrors.WithLabelValues("play").Inc()
		}
		return
	}

	if d.metrics != nil {
		d.metrics.SoundsPlayed.WithLabelValues(event, audio.CanonicalID(asset)).Inc()
	}
	d.record(event, asset, volume)
	d.logger.Debug("sound playing", "event", event, "asset", asset, "volume", volume)
}

// PlayAsset plays one asset directly, bypassing event resolution. Used by
// the diagnostics test-sound endpoint and the play command.
func (d *Dispatcher) PlayAsset(identifier string, volume float64) error {
	uri, err := d.resolver.Resolve(identifier)
	if err != nil {
		return err
	}
	handle, err := d.engine.Prepare(uri)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		handle.Release()
		return nil
	}
	key := "test:" + audio.CanonicalID(identifier)
	sl := d.slots[key]
	if sl == nil {
		sl = &slot{}
		d.slots[key] = sl
	}
	sl.seq++
	if sl.handle != nil {
		d.stopAndRelease(sl.handle)
	}
	sl.handle = handle
	d.mu.Unlock()

	handle.SetVolume(volume)
	return handle.Play()
}

// Close stops and releases every held playback handle. Errors are
// swallowed, the handles are benign to double-stop.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	handles := make([]audio.Handle, 0, len(d.slots))
	for _, sl := range d.slots {
		if sl.handle != nil {
			handles = append(handles, sl.handle)
			sl.handle = nil
		}
	}
	d.mu.Unlock()

	for _, h := range handles {
		d.stopAndRelease(h)
	}
	d.logger.Info("dispatcher closed", "released_handles", len(handles))
}

func (d *Dispatcher) stopAndRelease(h audio.Handle) {
	// Already-stopped handles report success, anything else is benign.
	_ = h.Stop()
	h.Release()
}

func (d *Dispatcher) skip(reason string) {
	if d.metrics != nil {
		d.metrics.SoundsSkipped.WithLabelValues(reason).Inc()
	}
}

func (d *Dispatcher) record(event, asset string, volume float64) {
	if d.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.recorder.RecordSoundEvent(ctx, event, audio.CanonicalID(asset), volume); err != nil {
			d.logger.Warn("failed to record sound event", "event", event, "error", err)
		}
	}()
}

// resolveAsset walks the alias group for event, then the global default.
// Returns false when nothing resolves or the match is the explicit
// suppression value.
func resolveAsset(settings soundsettings.Settings, event string) (string, bool) {
	keys, ok := aliasGroups[event]
	if !ok {
		keys = []string{event}
	}
	for _, key := range keys {
		if value, present := settings.EventSounds[key]; present {
			if value == soundsettings.SoundNone {
				return "", false
			}
			return value, true
		}
	}
	if settings.DefaultSound == "" || settings.DefaultSound == soundsettings.SoundNone {
		return "", false
	}
	return settings.DefaultSound, true
}
