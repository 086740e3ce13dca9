package vad

import (
	"context"
	"errors"
	"fmt"
)

// Engine names a classifier backend.
type Engine string

const (
	// EngineAuto uses Silero when it is compiled in and reports the
	// classifier as unavailable otherwise.
	EngineAuto Engine = "auto"
	// EngineSilero requires the Silero backend. NewFactory rejects it in
	// builds without the silero tag.
	EngineSilero Engine = "silero"
	// EngineStub uses the deterministic StubScorer.
	EngineStub Engine = "stub"
)

// ErrUnknownEngine is returned for an unrecognized engine name.
var ErrUnknownEngine = errors.New("vad: unknown engine")

// IsValid returns true if the engine name is recognized.
func (e Engine) IsValid() bool {
	return e == EngineAuto || e == EngineSilero || e == EngineStub
}

// FactoryConfig configures NewFactory.
type FactoryConfig struct {
	Engine Engine
	// ModelPath resolves the local model file, downloading it if needed.
	ModelPath    func(ctx context.Context) (string, error)
	ORTLibPath   string
	ChunkSeconds int
	Workers      int
}

// NewFactory returns a Factory for use with NewLazy.
func NewFactory(cfg FactoryConfig) (Factory, error) {
	if !cfg.Engine.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
	if cfg.Engine == EngineSilero && !NativeAvailable() {
		return nil, fmt.Errorf("%w: engine %q needs a build with -tags silero", ErrUnavailable, cfg.Engine)
	}
	opts := []ChunkedOption{WithChunkSeconds(cfg.ChunkSeconds), WithWorkers(cfg.Workers)}

	return func(ctx context.Context) (Classifier, error) {
		if cfg.Engine == EngineStub {
			return NewChunked(NewStubScorer(), opts...), nil
		}
		if !NativeAvailable() {
			return nil, fmt.Errorf("%w: silero backend not compiled in", ErrUnavailable)
		}
		if cfg.ModelPath == nil {
			return nil, fmt.Errorf("%w: no model source configured", ErrUnavailable)
		}
		modelPath, err := cfg.ModelPath(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		scorer, err := NewSileroScorer(modelPath, cfg.ORTLibPath)
		if err != nil {
			return nil, err
		}
		return NewChunked(scorer, opts...), nil
	}, nil
}
