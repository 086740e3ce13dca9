package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// ErrUndecodable is returned when a file is not RIFF/WAVE integer PCM.
var ErrUndecodable = errors.New("audio: undecodable audio")

// Header describes a WAV file without reading its samples.
type Header struct {
	SampleRate int
	Channels   int
	BitDepth   int
	PCM        bool
}

// Probe reads only the WAV header of path.
func Probe(path string) (Header, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return Header{}, fmt.Errorf("audio: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Header{}, fmt.Errorf("%w: %s is not a WAV file", ErrUndecodable, path)
	}
	return Header{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		PCM:        dec.WavAudioFormat == wavFormatPCM || dec.WavAudioFormat == wavFormatExtensible,
	}, nil
}

// ReadFile decodes a WAV file into a Buffer with samples scaled to [-1, 1].
func ReadFile(path string) (*Buffer, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrUndecodable, err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a WAV file", ErrUndecodable, path)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: unsupported WAV format %d", ErrUndecodable, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read PCM: %v", ErrUndecodable, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrUndecodable)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	return &Buffer{
		Samples:    toFloat(buf.Data, bitDepth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// WriteFile writes buf as 16-bit PCM WAV.
func WriteFile(path string, buf *Buffer) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304 - path is built by the caller
	if err != nil {
		return fmt.Errorf("audio: create %s: %w", path, err)
	}

	channels := max(buf.Channels, 1)
	enc := wav.NewEncoder(f, buf.SampleRate, 16, channels, wavFormatPCM)
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(math.Round(float64(clamp(s)) * math.MaxInt16))
	}

	werr := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	cerr := enc.Close()
	ferr := f.Close()

	if err := errors.Join(werr, cerr, ferr); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("audio: write %s: %w", path, err)
	}
	return nil
}

// toFloat scales integer PCM to [-1, 1]. 8-bit WAV is unsigned.
func toFloat(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	if bitDepth == 8 {
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	for i, v := range data {
		out[i] = clamp(float32(v) / scale)
	}
	return out
}
