// Package vad scores audio for voice activity.
// It defines the Classifier port used by the pipeline, the chunking adapter
// that turns per-window scorers into whole-buffer classifiers, and the
// acquire-once holder that shares one backend across pipeline runs.
package vad

import (
	"context"
	"errors"
	"fmt"
)

// ModelSampleRate is the rate every classifier backend in this package expects.
const ModelSampleRate = 16000

// Static errors for classifier operations.
var (
	// ErrUnavailable is returned when no classifier backend can be acquired:
	// not compiled in, runtime library missing, or model unobtainable.
	ErrUnavailable = errors.New("vad: classifier unavailable")
	// ErrRuntime matches any *RuntimeError via errors.Is.
	ErrRuntime = errors.New("vad: classifier runtime error")
	// ErrWrongSampleRate is returned when the buffer rate differs from ModelSampleRate.
	ErrWrongSampleRate = errors.New("vad: unsupported sample rate")
)

// Frame is the speech probability for one half-open sample span [Start, End).
type Frame struct {
	Start       int
	End         int
	Probability float32
}

// Classifier produces per-frame speech probabilities for a mono buffer.
// Frame positions are global sample indices in samples.
type Classifier interface {
	Classify(ctx context.Context, samples []float32, sampleRate int) ([]Frame, error)
}

// ChunkScorer scores one bounded window of audio. Frame positions it returns
// are local to the window.
type ChunkScorer interface {
	ScoreChunk(ctx context.Context, chunk []float32) ([]Frame, error)
}

// RuntimeError reports a failed forward pass on an otherwise loaded model.
type RuntimeError struct {
	Chunk int
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("vad: inference failed on chunk %d: %v", e.Chunk, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRuntime) hold for every RuntimeError.
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}
