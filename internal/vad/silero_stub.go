//go:build !silero

package vad

import (
	"context"
	"fmt"
)

// NativeAvailable reports whether the Silero backend is compiled in.
// Build with -tags silero to enable it.
func NativeAvailable() bool { return false }

// SileroScorer is a placeholder when built without the silero tag.
type SileroScorer struct{}

// NewSileroScorer always fails with ErrUnavailable in this build.
func NewSileroScorer(_, _ string) (*SileroScorer, error) {
	return nil, fmt.Errorf("%w: built without the silero tag", ErrUnavailable)
}

// ScoreChunk implements ChunkScorer.
func (s *SileroScorer) ScoreChunk(_ context.Context, _ []float32) ([]Frame, error) {
	return nil, ErrUnavailable
}
