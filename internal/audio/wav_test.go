package audio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV encodes a short 16-bit clip to a temp file and returns its path.
func writeWAV(t *testing.T, sampleRate, channels int, samples []int) string {
	return writeWAVDepth(t, sampleRate, 16, channels, samples)
}

func writeWAVDepth(t *testing.T, sampleRate, bitDepth, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err, "failed to create wav file")

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf), "failed to write samples")
	require.NoError(t, enc.Close(), "failed to finalize wav")
	require.NoError(t, f.Close(), "failed to close file")
	return path
}

func TestDecodeWAV(t *testing.T) {
	t.Parallel()

	samples := []int{0, 1000, -1000, 32767, -32768, 500}
	path := writeWAV(t, 44100, 2, samples)

	f, err := os.Open(path)
	require.NoError(t, err, "failed to open wav")
	defer func() { _ = f.Close() }()

	clip, err := decodeWAV(f)
	require.NoError(t, err, "decode should succeed")

	assert.Equal(t, 44100, clip.sampleRate, "sample rate should round-trip")
	assert.Equal(t, 2, clip.channels, "channel count should round-trip")
	require.Len(t, clip.samples, len(samples), "sample count should round-trip")
	assert.Equal(t, int16(1000), clip.samples[1], "sample value should round-trip")
	assert.Equal(t, int16(-32768), clip.samples[4], "extreme sample value should round-trip")
}

func TestDecodeWAVEightBitUnsigned(t *testing.T) {
	t.Parallel()

	// 8-bit PCM stores unsigned bytes: 128 is silence, 0 and 255 the extremes.
	path := writeWAVDepth(t, 22050, 8, 1, []int{128, 0, 255, 192})

	f, err := os.Open(path)
	require.NoError(t, err, "failed to open wav")
	defer func() { _ = f.Close() }()

	clip, err := decodeWAV(f)
	require.NoError(t, err, "decode should succeed")

	require.Len(t, clip.samples, 4, "sample count should round-trip")
	assert.Equal(t, int16(0), clip.samples[0], "midpoint byte must decode to silence")
	assert.Equal(t, int16(-32768), clip.samples[1], "lowest byte must decode to negative full scale")
	assert.Equal(t, int16(32512), clip.samples[2], "highest byte must decode near positive full scale")
	assert.Equal(t, int16(16384), clip.samples[3], "positive byte must stay positive")
}

func TestDecodeWAVInvalid(t *testing.T) {
	t.Parallel()

	_, err := decodeWAV(strings.NewReader("definitely not a wav"))
	assert.Error(t, err, "garbage input must fail to decode")
}
