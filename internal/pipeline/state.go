package pipeline

import (
	"errors"
	"slices"
)

// State is a stage of one pipeline run.
type State string

const (
	// StateReceived is the initial state.
	StateReceived State = "received"
	// StateNormalized means a decodable file path is known.
	StateNormalized State = "normalized"
	// StateClassified means per-frame probabilities were produced.
	StateClassified State = "classified"
	// StateSegmented means speech intervals were extracted.
	StateSegmented State = "segmented"
	// StateMaterialized means clip files were written. Terminal.
	StateMaterialized State = "materialized"
	// StateFailed means the run ended with an error. Terminal.
	StateFailed State = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("pipeline: invalid state transition")

// validTransitions lists the allowed edges. received and normalized may jump
// straight to materialized through a whole-file fallback.
var validTransitions = map[State][]State{
	StateReceived:     {StateNormalized, StateMaterialized, StateFailed},
	StateNormalized:   {StateClassified, StateMaterialized, StateFailed},
	StateClassified:   {StateSegmented, StateFailed},
	StateSegmented:    {StateMaterialized, StateFailed},
	StateMaterialized: {},
	StateFailed:       {},
}

func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsTerminal returns true if no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateMaterialized || s == StateFailed
}

// tracker follows one run through the state machine.
type tracker struct {
	current State
	trace   []State
}

func newTracker() *tracker {
	return &tracker{current: StateReceived, trace: []State{StateReceived}}
}

func (t *tracker) transitionTo(s State) error {
	if !canTransition(t.current, s) {
		return ErrInvalidTransition
	}
	t.current = s
	t.trace = append(t.trace, s)
	return nil
}
