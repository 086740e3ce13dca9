// Package segment turns per-frame speech probabilities into merged,
// duration-filtered speech intervals.
package segment

import (
	"sort"
	"time"

	"github.com/maauso/speechclip/internal/vad"
)

// Defaults used when the caller does not override them.
const (
	DefaultThreshold           = 0.5
	DefaultMinSpeechDurationMs = 250
)

// Interval is a half-open sample range [Start, End).
type Interval struct {
	Start int
	End   int
}

// Len returns the interval length in samples.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Duration returns the interval length as a time.Duration at sampleRate.
func (iv Interval) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(iv.Len()) * time.Second / time.Duration(sampleRate)
}

// LongEnough reports whether the interval lasts at least minDurationMs.
// The comparison is exact: (End-Start)*1000 >= minDurationMs*sampleRate.
func (iv Interval) LongEnough(minDurationMs, sampleRate int) bool {
	return int64(iv.Len())*1000 >= int64(minDurationMs)*int64(sampleRate)
}

// Extract binarizes frames against threshold, detects contiguous speech,
// merges overlapping or touching intervals and drops intervals shorter than
// minDurationMs. The result is sorted, non-overlapping and never nil.
func Extract(frames []vad.Frame, threshold float64, minDurationMs, sampleRate int) []Interval {
	return Merge(Detect(frames, threshold), minDurationMs, sampleRate)
}

// Detect scans frames in order and returns raw speech intervals.
// A frame is speech iff its probability is strictly above threshold.
// A run still open after the last frame closes at that frame's End.
func Detect(frames []vad.Frame, threshold float64) []Interval {
	intervals := make([]Interval, 0)
	inSpeech := false
	var start int

	for _, f := range frames {
		speech := float64(f.Probability) > threshold
		switch {
		case speech && !inSpeech:
			start = f.Start
			inSpeech = true
		case !speech && inSpeech:
			intervals = append(intervals, Interval{Start: start, End: f.Start})
			inSpeech = false
		}
	}
	if inSpeech {
		intervals = append(intervals, Interval{Start: start, End: frames[len(frames)-1].End})
	}
	return intervals
}

// Merge combines intervals whose start is at or before the previous end.
// When a gap separates two intervals, the earlier one is kept only if it is
// long enough; the last interval gets the same check.
func Merge(raw []Interval, minDurationMs, sampleRate int) []Interval {
	merged := make([]Interval, 0, len(raw))
	if len(raw) == 0 {
		return merged
	}

	sorted := make([]Interval, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged = append(merged, sorted[0])
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if next.Start <= last.End {
			last.End = max(last.End, next.End)
			continue
		}
		if !last.LongEnough(minDurationMs, sampleRate) {
			merged = merged[:len(merged)-1]
		}
		merged = append(merged, next)
	}

	if !merged[len(merged)-1].LongEnough(minDurationMs, sampleRate) {
		merged = merged[:len(merged)-1]
	}
	return merged
}
