package segment

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/speechclip/internal/vad"
)

const rate = 16000

// framesFrom builds 512-sample frames with the given probabilities.
func framesFrom(probs ...float32) []vad.Frame {
	frames := make([]vad.Frame, len(probs))
	for i, p := range probs {
		frames[i] = vad.Frame{Start: i * 512, End: (i + 1) * 512, Probability: p}
	}
	return frames
}

// meanScorer emits 500-sample frames whose probability is the frame's mean
// sample value.
type meanScorer struct{}

func (meanScorer) ScoreChunk(_ context.Context, chunk []float32) ([]vad.Frame, error) {
	var frames []vad.Frame
	for start := 0; start < len(chunk); start += 500 {
		end := min(start+500, len(chunk))
		var sum float32
		for _, s := range chunk[start:end] {
			sum += s
		}
		frames = append(frames, vad.Frame{Start: start, End: end, Probability: sum / float32(end-start)})
	}
	return frames, nil
}

func TestExtract_SpeechAcrossChunkBoundary(t *testing.T) {
	// Two one-second chunks; speech runs from 0.5 s to 1.5 s.
	samples := make([]float32, 2*rate)
	for i := 8000; i < 24000; i++ {
		samples[i] = 1
	}

	for _, workers := range []int{1, 2} {
		c := vad.NewChunked(meanScorer{}, vad.WithChunkSeconds(1), vad.WithWorkers(workers))
		frames, err := c.Classify(context.Background(), samples, rate)
		require.NoError(t, err)

		got := Extract(frames, DefaultThreshold, DefaultMinSpeechDurationMs, rate)
		assert.Equal(t, []Interval{{Start: 8000, End: 24000}}, got, "workers=%d", workers)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		probs []float32
		want  []Interval
	}{
		{"no frames", nil, []Interval{}},
		{"all silence", []float32{0.1, 0.2, 0.3}, []Interval{}},
		{"threshold is strict", []float32{0.5, 0.5}, []Interval{}},
		{"single run", []float32{0.1, 0.9, 0.8, 0.1}, []Interval{{512, 1536}}},
		{"open at end", []float32{0.1, 0.9, 0.9}, []Interval{{512, 1536}}},
		{"all speech", []float32{0.9, 0.9}, []Interval{{0, 1024}}},
		{"two runs", []float32{0.9, 0.1, 0.9}, []Interval{{0, 512}, {1024, 1536}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(framesFrom(tt.probs...), 0.5)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_ClosesAtPartialLastFrame(t *testing.T) {
	frames := []vad.Frame{
		{Start: 0, End: 512, Probability: 0.1},
		{Start: 512, End: 700, Probability: 0.9},
	}
	assert.Equal(t, []Interval{{512, 700}}, Detect(frames, 0.5))
}

func TestMerge_OverlappingAndTouching(t *testing.T) {
	raw := []Interval{{0, 8000}, {8000, 12000}, {10000, 20000}}
	got := Merge(raw, 250, rate)
	assert.Equal(t, []Interval{{0, 20000}}, got)
}

func TestMerge_UnsortedInput(t *testing.T) {
	raw := []Interval{{50000, 60000}, {0, 8000}, {4000, 9000}}
	got := Merge(raw, 250, rate)
	assert.Equal(t, []Interval{{0, 9000}, {50000, 60000}}, got)
}

func TestMerge_DropsShortPreviousOnGap(t *testing.T) {
	// first interval is 100 samples, far below 250 ms
	raw := []Interval{{0, 100}, {20000, 40000}}
	got := Merge(raw, 250, rate)
	assert.Equal(t, []Interval{{20000, 40000}}, got)
}

func TestMerge_DropsShortFinalEntry(t *testing.T) {
	raw := []Interval{{0, 20000}, {30000, 30100}}
	got := Merge(raw, 250, rate)
	assert.Equal(t, []Interval{{0, 20000}}, got)
}

func TestMerge_ShortAfterLongIsNotCarried(t *testing.T) {
	raw := []Interval{{0, 20000}, {30000, 30100}, {40000, 60000}}
	got := Merge(raw, 250, rate)
	assert.Equal(t, []Interval{{0, 20000}, {40000, 60000}}, got)
}

func TestMerge_DurationBoundary(t *testing.T) {
	// 250 ms at 16 kHz is exactly 4000 samples.
	assert.Equal(t, []Interval{{0, 4000}}, Merge([]Interval{{0, 4000}}, 250, rate))
	assert.Empty(t, Merge([]Interval{{0, 3999}}, 250, rate))
}

func TestMerge_ZeroMinimumKeepsEverything(t *testing.T) {
	raw := []Interval{{0, 1}, {5, 6}}
	assert.Equal(t, raw, Merge(raw, 0, rate))
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	raw := []Interval{{5000, 9000}, {0, 4000}}
	_ = Merge(raw, 0, rate)
	assert.Equal(t, []Interval{{5000, 9000}, {0, 4000}}, raw)
}

func TestExtract_EndToEnd(t *testing.T) {
	probs := make([]float32, 0, 100)
	for i := 0; i < 10; i++ {
		probs = append(probs, 0.1)
	}
	for i := 0; i < 20; i++ {
		probs = append(probs, 0.9)
	}
	probs = append(probs, 0.2)
	for i := 0; i < 3; i++ {
		probs = append(probs, 0.9) // 3 frames = 96 ms, too short on its own
	}
	for i := 0; i < 10; i++ {
		probs = append(probs, 0.1)
	}

	got := Extract(framesFrom(probs...), DefaultThreshold, DefaultMinSpeechDurationMs, rate)
	require.Len(t, got, 1)
	assert.Equal(t, Interval{Start: 10 * 512, End: 30 * 512}, got[0])
}

func TestExtract_AllSpeechCoversBuffer(t *testing.T) {
	probs := make([]float32, 40)
	for i := range probs {
		probs[i] = 0.99
	}
	got := Extract(framesFrom(probs...), 0.5, 250, rate)
	assert.Equal(t, []Interval{{0, 40 * 512}}, got)
}

func TestExtract_NoSpeechIsEmptyNotNil(t *testing.T) {
	got := Extract(framesFrom(0.1, 0.1), 0.5, 250, rate)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtract_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := r.Intn(400)
		probs := make([]float32, n)
		for i := range probs {
			probs[i] = r.Float32()
		}
		frames := framesFrom(probs...)
		minMs := r.Intn(500)

		got := Extract(frames, 0.5, minMs, rate)
		for i, iv := range got {
			assert.Less(t, iv.Start, iv.End)
			assert.True(t, iv.LongEnough(minMs, rate))
			assert.GreaterOrEqual(t, iv.Start, 0)
			if n > 0 {
				assert.LessOrEqual(t, iv.End, frames[n-1].End)
			}
			if i > 0 {
				assert.Greater(t, iv.Start, got[i-1].End, "intervals must be sorted and disjoint")
			}
		}

		// Lowering the minimum never removes speech.
		loose := Extract(frames, 0.5, 0, rate)
		assert.GreaterOrEqual(t, len(loose), len(got))
	}
}

func TestInterval_Duration(t *testing.T) {
	iv := Interval{Start: 16000, End: 24000}
	assert.Equal(t, 500*time.Millisecond, iv.Duration(rate))
	assert.Equal(t, time.Duration(0), iv.Duration(0))
	assert.Equal(t, 8000, iv.Len())
}
