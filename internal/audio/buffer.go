package audio

import (
	"errors"
	"fmt"
	"math"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrInvalidRate is returned for a non-positive sample rate.
var ErrInvalidRate = errors.New("audio: invalid sample rate")

// Buffer holds decoded PCM samples in [-1, 1]. Multi-channel audio is
// interleaved.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels <= 1 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Mono averages all channels into a single channel. A mono buffer is
// returned unchanged.
func (b *Buffer) Mono() *Buffer {
	if b.Channels <= 1 {
		return b
	}
	n := b.Frames()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for ch := 0; ch < b.Channels; ch++ {
			sum += b.Samples[i*b.Channels+ch]
		}
		out[i] = sum / float32(b.Channels)
	}
	return &Buffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}
}

// Resample converts a mono buffer to rate. The result has exactly
// ceil(frames*rate/SampleRate) samples.
func (b *Buffer) Resample(rate int) (*Buffer, error) {
	if rate <= 0 || b.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, b.SampleRate, rate)
	}
	src := b.Mono()
	if src.SampleRate == rate {
		return src, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	// The filter history starts empty, so the output leads the input by the
	// group delay. Leading zeros put it back in step, and Flush drains the
	// samples still held in the filter at the end.
	lead := int(math.Round(float64(r.GetLatency()) / r.GetRatio()))
	in := make([]float64, lead+len(src.Samples))
	for i, s := range src.Samples {
		in[lead+i] = float64(s)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("audio: flush resampler: %w", err)
	}
	out = append(out, tail...)

	want := int((int64(len(src.Samples))*int64(rate) + int64(src.SampleRate) - 1) / int64(src.SampleRate))
	samples := make([]float32, want)
	for i := 0; i < want && i < len(out); i++ {
		samples[i] = clamp(float32(out[i]))
	}
	return &Buffer{Samples: samples, SampleRate: rate, Channels: 1}, nil
}

// Slice returns the samples of frames [start, end) of a mono buffer, clipped
// to the buffer bounds.
func (b *Buffer) Slice(start, end int) []float32 {
	start = max(start, 0)
	end = min(end, len(b.Samples))
	if start >= end {
		return nil
	}
	return b.Samples[start:end]
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
