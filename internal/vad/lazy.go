package vad

import (
	"context"
	"sync"
)

// Compile-time check that Lazy implements Classifier.
var _ Classifier = (*Lazy)(nil)

// Factory builds a classifier backend. It may be slow (model download,
// runtime initialization) and is called at most once per successful
// acquisition.
type Factory func(ctx context.Context) (Classifier, error)

// Lazy acquires its backend on first use and shares it afterwards.
// A failed acquisition is not cached; the next call tries again.
type Lazy struct {
	mu       sync.Mutex
	factory  Factory
	instance Classifier
}

// NewLazy returns a Lazy that builds its backend with factory.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Acquire returns the shared backend, building it if needed.
func (l *Lazy) Acquire(ctx context.Context) (Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.instance != nil {
		return l.instance, nil
	}
	c, err := l.factory(ctx)
	if err != nil {
		return nil, err
	}
	l.instance = c
	return c, nil
}

// Classify implements Classifier.
func (l *Lazy) Classify(ctx context.Context, samples []float32, sampleRate int) ([]Frame, error) {
	c, err := l.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c.Classify(ctx, samples, sampleRate)
}

// Reset drops the shared backend so the next call rebuilds it.
func (l *Lazy) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.instance = nil
}
