package audio

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// pcmClip is a fully decoded asset: interleaved signed 16-bit samples.
type pcmClip struct {
	samples    []int16
	sampleRate int
	channels   int
}

// decodeWAV decodes a WAV stream into a 16-bit PCM clip. Assets with other
// bit depths are converted by shifting to 16 bits.
func decodeWAV(r io.ReadSeeker) (*pcmClip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav data: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("wav file contains no audio data")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}

	samples := make([]int16, len(buf.Data))
	switch {
	case bitDepth == 16:
		for i, v := range buf.Data {
			samples[i] = int16(v)
		}
	case bitDepth == 8:
		// 8-bit WAV PCM is unsigned, recenter around zero before scaling.
		for i, v := range buf.Data {
			samples[i] = int16((v - 128) << 8)
		}
	case bitDepth < 16:
		shift := 16 - bitDepth
		for i, v := range buf.Data {
			samples[i] = int16(v << shift)
		}
	default:
		shift := bitDepth - 16
		for i, v := range buf.Data {
			samples[i] = int16(v >> shift)
		}
	}

	return &pcmClip{
		samples:    samples,
		sampleRate: buf.Format.SampleRate,
		channels:   buf.Format.NumChannels,
	}, nil
}
