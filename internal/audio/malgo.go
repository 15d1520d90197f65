package audio

import (
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/beyproweb/beypro-notify/internal/errors"
	"github.com/beyproweb/beypro-notify/internal/logging"
)

// MalgoEngine is the malgo-backed Engine. The context is initialized once
// per engine; each Prepare call decodes the asset and owns its own device.
type MalgoEngine struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

// NewMalgoEngine initializes the platform audio context.
func NewMalgoEngine() (*MalgoEngine, error) {
	logger := logging.ForService("audio")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Build()
	}

	logger.Info("audio context initialized")
	return &MalgoEngine{ctx: ctx, logger: logger}, nil
}

// Prepare decodes the WAV asset at uri into memory and wraps it in a
// playback handle.
func (e *MalgoEngine) Prepare(uri string) (Handle, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("uri", uri).
			Build()
	}
	defer func() { _ = f.Close() }()

	clip, err := decodeWAV(f)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAsset).
			Context("uri", uri).
			Build()
	}

	return &malgoHandle{
		engine: e,
		clip:   clip,
		volume: 1.0,
	}, nil
}

// Close tears down the audio context.
func (e *MalgoEngine) Close() {
	if e.ctx != nil {
		_ = e.ctx.Uninit()
		e.ctx.Free()
		e.logger.Info("audio context released")
	}
}

// malgoHandle streams one decoded clip to a dedicated playback device.
type malgoHandle struct {
	engine *MalgoEngine
	clip   *pcmClip

	mu       sync.Mutex
	device   *malgo.Device
	playing  bool
	released bool
	pos      int
	volume   float64
}

func (h *malgoHandle) SetVolume(volume float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = math.Min(math.Max(volume, 0), 1)
}

func (h *malgoHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return errors.Newf("playback handle already released").
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}

	// Restart from the top if Play is called on a live handle.
	h.pos = 0

	if h.device == nil {
		deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
		deviceConfig.Playback.Format = malgo.FormatS16
		deviceConfig.Playback.Channels = uint32(h.clip.channels)
		deviceConfig.SampleRate = uint32(h.clip.sampleRate)

		device, err := malgo.InitDevice(h.engine.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
			Data: h.writeSamples,
		})
		if err != nil {
			return errors.New(err).
				Component("audio").
				Category(errors.CategoryAudio).
				Context("operation", "init_device").
				Build()
		}
		h.device = device
	}

	if err := h.device.Start(); err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "start_device").
			Build()
	}

	h.playing = true
	return nil
}

// Stop halts playback. Double-stop is benign.
func (h *malgoHandle) Stop() error {
	h.mu.Lock()
	device := h.device
	wasPlaying := h.playing
	h.playing = false
	h.mu.Unlock()

	if device == nil || !wasPlaying {
		return nil
	}
	// Stop errors on an already stopped device are benign too.
	_ = device.Stop()
	return nil
}

func (h *malgoHandle) Release() {
	h.mu.Lock()
	device := h.device
	h.device = nil
	h.released = true
	h.playing = false
	h.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
}

// writeSamples feeds the device buffer, applying the configured volume.
// Past the end of the clip it emits silence; the handle stays stopped or
// replaced by its owner, matching the per-event handle lifecycle.
func (h *malgoHandle) writeSamples(pOutput, pInput []byte, frameCount uint32) {
	h.mu.Lock()
	pos := h.pos
	vol := h.volume
	h.mu.Unlock()

	samples := h.clip.samples
	n := 0
	for i := 0; i+1 < len(pOutput); i += 2 {
		var sample int16
		if pos < len(samples) {
			sample = int16(float64(samples[pos]) * vol)
			pos++
		}
		pOutput[i] = byte(uint16(sample))
		pOutput[i+1] = byte(uint16(sample) >> 8)
		n++
	}

	h.mu.Lock()
	h.pos = pos
	h.mu.Unlock()
}
