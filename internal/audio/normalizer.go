// Package audio provides format normalization and PCM buffer handling for
// speech segmentation: the ffmpeg-backed Normalizer, WAV decoding and
// encoding, downmixing and resampling.
package audio

import (
	"context"
	"errors"
)

// Static errors for normalization.
var (
	// ErrDecodeUnavailable is reported when no external decoder is installed.
	ErrDecodeUnavailable = errors.New("audio: decoder unavailable")
	// ErrDecodeFailed is reported when the decoder ran and failed.
	ErrDecodeFailed = errors.New("audio: decode failed")
)

// DefaultSampleRate is the normalization target when none is configured.
const DefaultSampleRate = 16000

// Normalized is the outcome of a normalization attempt.
type Normalized struct {
	// Path is the file downstream stages should read.
	Path string
	// Scratch is true when Path is a temporary file the caller must remove.
	Scratch bool
}

// Normalizer converts arbitrary input audio to mono 16-bit PCM WAV at a
// fixed sample rate.
//
// Decoder problems are not errors: when conversion is impossible the
// original path is returned with Scratch=false and the problem is logged.
// An error is returned only when the caller's context ends.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) (Normalized, error)
}
