// Package job tracks recordings submitted for segmentation. A Job moves
// from PENDING through PROCESSING to PROCESSED or ERROR and records the
// clips the pipeline produced for it.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/speechclip/internal/clip"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the job is waiting for a free pipeline slot.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates the pipeline is running for the job.
	StatusProcessing Status = "PROCESSING"
	// StatusProcessed indicates clips were produced (possibly none).
	StatusProcessed Status = "PROCESSED"
	// StatusError indicates the recording could not be processed.
	StatusError Status = "ERROR"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// PENDING may fail directly when the run is cancelled before it starts.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusError},
	StatusProcessing: {StatusProcessed, StatusError},
	StatusProcessed:  {},
	StatusError:      {},
}

func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Job is one recording's trip through the pipeline.
type Job struct {
	mu sync.RWMutex

	ID         string          `json:"id"`
	AudioID    string          `json:"audio_id"`
	SourcePath string          `json:"source_path"`
	OutputDir  string          `json:"output_dir"`
	Status     Status          `json:"status"`
	Outcome    string          `json:"outcome,omitempty"`
	Clips      []clip.Artifact `json:"clips"`
	Error      string          `json:"error,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// New creates a PENDING job with a random ID.
func New(audioID, sourcePath, outputDir string) *Job {
	return NewWithID(uuid.NewString(), audioID, sourcePath, outputDir)
}

// NewWithID creates a PENDING job with the given ID.
func NewWithID(jobID, audioID, sourcePath, outputDir string) *Job {
	now := time.Now()
	return &Job{
		ID:         jobID,
		AudioID:    audioID,
		SourcePath: sourcePath,
		OutputDir:  outputDir,
		Status:     StatusPending,
		Clips:      make([]clip.Artifact, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()
	switch status {
	case StatusProcessing:
		j.StartedAt = j.UpdatedAt
	case StatusProcessed, StatusError:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start moves the job to PROCESSING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete records the pipeline outcome and clips and moves the job to
// PROCESSED. Nothing is recorded if the transition is not allowed.
func (j *Job) Complete(outcome string, clips []clip.Artifact) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusProcessed); err != nil {
		return err
	}
	j.Outcome = outcome
	j.Clips = slices.Clone(clips)
	if j.Clips == nil {
		j.Clips = make([]clip.Artifact, 0)
	}
	return nil
}

// Fail records errMsg and moves the job to ERROR.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusError); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is PROCESSED or ERROR.
func (j *Job) IsTerminal() bool {
	s := j.GetStatus()
	return s == StatusProcessed || s == StatusError
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		AudioID:     j.AudioID,
		SourcePath:  j.SourcePath,
		OutputDir:   j.OutputDir,
		Status:      j.Status,
		Outcome:     j.Outcome,
		Clips:       slices.Clone(j.Clips),
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
