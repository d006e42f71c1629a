package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a WAV stream into mono 16-bit PCM. Multi-channel input is
// mixed down and other bit depths are rescaled.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, fmt.Errorf("%w: not a valid WAV file", ErrInvalidFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return PCM{}, ErrSampleRate
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = to16(sum/channels, depth)
	}
	return PCM{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// to16 rescales an integer sample of the given bit depth. 8-bit WAV data is
// unsigned.
func to16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// EncodeWAV writes p as a mono 16-bit WAV file.
func EncodeWAV(w io.WriteSeeker, p PCM) error {
	if err := p.Validate(); err != nil {
		return err
	}

	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, p.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: p.SampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write WAV: %w", err)
	}
	return enc.Close()
}
