package vad

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultChunkSeconds is the window length used when none is configured.
const DefaultChunkSeconds = 30

// Compile-time check that Chunked implements Classifier.
var _ Classifier = (*Chunked)(nil)

// Chunked splits a buffer into fixed windows, scores each with a ChunkScorer
// and concatenates the frames in window order with global sample positions.
type Chunked struct {
	scorer       ChunkScorer
	chunkSamples int
	workers      int
}

// ChunkedOption configures a Chunked classifier.
type ChunkedOption func(*Chunked)

// WithChunkSeconds sets the window length in seconds at ModelSampleRate.
func WithChunkSeconds(sec int) ChunkedOption {
	return func(c *Chunked) {
		if sec > 0 {
			c.chunkSamples = sec * ModelSampleRate
		}
	}
}

// WithWorkers sets how many windows may be scored concurrently.
func WithWorkers(n int) ChunkedOption {
	return func(c *Chunked) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewChunked wraps scorer into a whole-buffer Classifier.
func NewChunked(scorer ChunkScorer, opts ...ChunkedOption) *Chunked {
	c := &Chunked{
		scorer:       scorer,
		chunkSamples: DefaultChunkSeconds * ModelSampleRate,
		workers:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify implements Classifier.
func (c *Chunked) Classify(ctx context.Context, samples []float32, sampleRate int) ([]Frame, error) {
	if sampleRate != ModelSampleRate {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrWrongSampleRate, sampleRate, ModelSampleRate)
	}
	if len(samples) == 0 {
		return []Frame{}, nil
	}

	numChunks := (len(samples) + c.chunkSamples - 1) / c.chunkSamples
	results := make([][]Frame, numChunks)
	errs := make([]error, numChunks)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup

	for i := 0; i < numChunks; i++ {
		select {
		case <-runCtx.Done():
			errs[i] = runCtx.Err()
		case sem <- struct{}{}:
		}
		if errs[i] != nil {
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			start := i * c.chunkSamples
			end := min(start+c.chunkSamples, len(samples))

			frames, err := c.scorer.ScoreChunk(runCtx, samples[start:end])
			if err != nil {
				errs[i] = c.wrapErr(runCtx, i, err)
				cancel()
				return
			}
			for k := range frames {
				frames[k].Start += start
				frames[k].End += start
			}
			results[i] = frames
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := firstError(errs); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	frames := make([]Frame, 0, total)
	for _, r := range results {
		frames = append(frames, r...)
	}
	return frames, nil
}

// wrapErr keeps cancellation and availability errors as they are and
// classifies everything else as a runtime failure of chunk i.
func (c *Chunked) wrapErr(ctx context.Context, i int, err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRuntime) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &RuntimeError{Chunk: i, Err: err}
}

// firstError prefers real failures over the cancellations they caused.
func firstError(errs []error) error {
	var cancelled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if cancelled == nil {
				cancelled = err
			}
			continue
		}
		return err
	}
	return cancelled
}
