package vad

import "context"

// Compile-time check that StubScorer implements ChunkScorer.
var _ ChunkScorer = (*StubScorer)(nil)

const (
	// StubWindowSize is the frame length of the stub scorer, matching Silero.
	StubWindowSize = 512
	// StubToggleInterval is the number of frames after which the stub flips
	// between speech and silence. 31 frames of 512 samples is about 1 s.
	StubToggleInterval = 31
	// StubSpeechProbability is returned for frames in a speech run.
	StubSpeechProbability float32 = 0.9
	// StubSilenceProbability is returned for frames in a silence run.
	StubSilenceProbability float32 = 0.1
)

// StubScorer ignores the audio and alternates between silence and speech
// every StubToggleInterval frames, starting with silence at every chunk.
type StubScorer struct{}

// NewStubScorer creates a StubScorer.
func NewStubScorer() *StubScorer {
	return &StubScorer{}
}

// ScoreChunk implements ChunkScorer.
func (s *StubScorer) ScoreChunk(ctx context.Context, chunk []float32) ([]Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, (len(chunk)+StubWindowSize-1)/StubWindowSize)
	for i, start := 0, 0; start < len(chunk); i, start = i+1, start+StubWindowSize {
		p := StubSilenceProbability
		if (i/StubToggleInterval)%2 == 1 {
			p = StubSpeechProbability
		}
		frames = append(frames, Frame{
			Start:       start,
			End:         min(start+StubWindowSize, len(chunk)),
			Probability: p,
		})
	}
	return frames, nil
}
