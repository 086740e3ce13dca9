//go:build silero

package vad

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// sileroWindowSize is the number of samples per inference at 16 kHz (32 ms).
	sileroWindowSize = 512
	// sileroStateSize is the per-layer hidden state width; state is [2, 1, 128].
	sileroStateSize = 128
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Compile-time check that SileroScorer implements ChunkScorer.
var _ ChunkScorer = (*SileroScorer)(nil)

// NativeAvailable reports that the Silero backend is compiled in.
func NativeAvailable() bool { return true }

// SileroScorer runs Silero VAD v5 through ONNX Runtime. Each chunk gets its
// own session and tensors, so recurrent state starts at zero for every chunk
// and chunks can be scored concurrently.
type SileroScorer struct {
	model []byte
}

// NewSileroScorer loads the ONNX model at modelPath and initializes the
// ONNX Runtime environment from libPath (resolved via ResolveORTLibPath).
func NewSileroScorer(modelPath, libPath string) (*SileroScorer, error) {
	model, err := os.ReadFile(modelPath) // #nosec G304 - path comes from the model cache
	if err != nil {
		return nil, fmt.Errorf("%w: read model: %v", ErrUnavailable, err)
	}
	if len(model) == 0 {
		return nil, fmt.Errorf("%w: model file %s is empty", ErrUnavailable, modelPath)
	}

	ortInitOnce.Do(func() {
		resolved, err := ResolveORTLibPath(libPath)
		if err != nil {
			ortInitErr = err
			return
		}
		ort.SetSharedLibraryPath(resolved)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("%w: onnxruntime: %v", ErrUnavailable, ortInitErr)
	}

	return &SileroScorer{model: model}, nil
}

// ScoreChunk implements ChunkScorer. The trailing partial window is zero
// padded; its frame span is clipped to the chunk.
func (s *SileroScorer) ScoreChunk(ctx context.Context, chunk []float32) ([]Frame, error) {
	sess, err := s.newSession()
	if err != nil {
		return nil, err
	}
	defer sess.destroy()

	frames := make([]Frame, 0, (len(chunk)+sileroWindowSize-1)/sileroWindowSize)
	for start := 0; start < len(chunk); start += sileroWindowSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+sileroWindowSize, len(chunk))
		prob, err := sess.infer(chunk[start:end])
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{Start: start, End: end, Probability: prob})
	}
	return frames, nil
}

type sileroSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	state   *ort.Tensor[float32]
	sr      *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	stateN  *ort.Tensor[float32]
}

func (s *SileroScorer) newSession() (*sileroSession, error) {
	sess := &sileroSession{}
	var err error

	if sess.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize)); err != nil {
		return nil, fmt.Errorf("silero: create input tensor: %w", err)
	}
	if sess.state, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize)); err != nil {
		sess.destroy()
		return nil, fmt.Errorf("silero: create state tensor: %w", err)
	}
	if sess.sr, err = ort.NewTensor(ort.NewShape(1), []int64{ModelSampleRate}); err != nil {
		sess.destroy()
		return nil, fmt.Errorf("silero: create sr tensor: %w", err)
	}
	if sess.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		sess.destroy()
		return nil, fmt.Errorf("silero: create output tensor: %w", err)
	}
	if sess.stateN, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize)); err != nil {
		sess.destroy()
		return nil, fmt.Errorf("silero: create stateN tensor: %w", err)
	}

	// onnxruntime_go does not guarantee zeroed memory.
	clear(sess.state.GetData())
	clear(sess.stateN.GetData())

	sess.session, err = ort.NewAdvancedSessionWithONNXData(
		s.model,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{sess.input, sess.state, sess.sr},
		[]ort.Value{sess.output, sess.stateN},
		nil,
	)
	if err != nil {
		sess.destroy()
		return nil, fmt.Errorf("silero: create session: %w", err)
	}
	return sess, nil
}

func (s *sileroSession) infer(window []float32) (float32, error) {
	in := s.input.GetData()
	n := copy(in, window)
	clear(in[n:])

	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	prob := s.output.GetData()[0]
	copy(s.state.GetData(), s.stateN.GetData())
	return prob, nil
}

func (s *sileroSession) destroy() {
	if s.session != nil {
		_ = s.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{s.input, s.state, s.output, s.stateN} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if s.sr != nil {
		_ = s.sr.Destroy()
	}
}
