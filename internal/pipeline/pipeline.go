// Package pipeline runs one recording through normalization, voice-activity
// classification, segment extraction and clip materialization, falling back
// to a single whole-recording clip when classification is impossible.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/speechclip/internal/audio"
	"github.com/maauso/speechclip/internal/clip"
	"github.com/maauso/speechclip/internal/segment"
	"github.com/maauso/speechclip/internal/vad"
)

// Static errors for pipeline runs.
var (
	// ErrInvalidInput is returned when Input fails validation.
	ErrInvalidInput = errors.New("pipeline: invalid input")
	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("pipeline: invalid options")
	// ErrProcessingTimedOut marks classification that exceeded its budget.
	ErrProcessingTimedOut = errors.New("pipeline: processing timed out")
)

// Outcome says how a successful run produced its artifacts.
type Outcome string

const (
	// OutcomeSegmented means clips follow detected speech.
	OutcomeSegmented Outcome = "segmented"
	// OutcomeNoSpeech means classification succeeded and found no speech.
	OutcomeNoSpeech Outcome = "no_speech"
	// OutcomeFallbackUnavailable means no classifier could be acquired.
	OutcomeFallbackUnavailable Outcome = "fallback_classifier_unavailable"
	// OutcomeFallbackClassifierError means the classifier failed while running.
	OutcomeFallbackClassifierError Outcome = "fallback_classifier_error"
	// OutcomeFallbackTimedOut means classification exceeded ProcessTimeout.
	OutcomeFallbackTimedOut Outcome = "fallback_timed_out"
	// OutcomeRescued means normalization or materialization failed and the
	// whole recording was written as a single clip instead.
	OutcomeRescued Outcome = "rescued"
)

// IsFallback returns true for outcomes that produced one whole-recording clip.
func (o Outcome) IsFallback() bool {
	switch o {
	case OutcomeFallbackUnavailable, OutcomeFallbackClassifierError, OutcomeFallbackTimedOut, OutcomeRescued:
		return true
	}
	return false
}

// Input identifies one recording to process.
type Input struct {
	SourcePath string `validate:"required"`
	AudioID    string `validate:"required,excludesall=/\\"`
	OutputDir  string `validate:"required"`
}

// Options tune segmentation.
type Options struct {
	// Threshold is the speech probability a frame must exceed.
	Threshold float64 `validate:"gte=0,lte=1"`
	// MinSpeechDurationMs drops intervals shorter than this.
	MinSpeechDurationMs int `validate:"gte=0"`
	// SampleRate is the rate the classifier expects.
	SampleRate int `validate:"gt=0"`
	// ProcessTimeout bounds classification. Zero means unbounded.
	ProcessTimeout time.Duration `validate:"gte=0"`
}

// DefaultOptions returns the standard segmentation settings.
func DefaultOptions() Options {
	return Options{
		Threshold:           segment.DefaultThreshold,
		MinSpeechDurationMs: segment.DefaultMinSpeechDurationMs,
		SampleRate:          vad.ModelSampleRate,
	}
}

// Result describes a successful run.
type Result struct {
	AudioID   string             `json:"audio_id"`
	Outcome   Outcome            `json:"outcome"`
	Artifacts []clip.Artifact    `json:"artifacts"`
	Intervals []segment.Interval `json:"-"`
	Trace     []State            `json:"trace"`
	// Cause is the error that forced a fallback, if any.
	Cause error `json:"-"`
}

// ClipWriter materializes clips. *clip.Materializer implements it.
type ClipWriter interface {
	Materialize(ctx context.Context, buf *audio.Buffer, intervals []segment.Interval, outputDir, audioID string) ([]clip.Artifact, error)
	WriteWhole(ctx context.Context, buf *audio.Buffer, outputDir, audioID string) ([]clip.Artifact, error)
	CopyWhole(ctx context.Context, srcPath, outputDir, audioID string) ([]clip.Artifact, error)
}

// ScratchCleaner removes temporary files. *storage.LocalStorage implements it.
type ScratchCleaner interface {
	CleanupTemp(ctx context.Context, paths []string) error
}

// Compile-time check that *clip.Materializer implements ClipWriter.
var _ ClipWriter = (*clip.Materializer)(nil)

// Orchestrator sequences the pipeline stages for one recording at a time.
// It is safe for concurrent use when its collaborators are.
type Orchestrator struct {
	normalizer audio.Normalizer
	classifier vad.Classifier
	clips      ClipWriter
	scratch    ScratchCleaner
	opts       Options
	validate   *validator.Validate
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOptions replaces the segmentation options.
func WithOptions(opts Options) Option {
	return func(o *Orchestrator) {
		o.opts = opts
	}
}

// WithScratchCleaner sets how normalized scratch files are removed.
func WithScratchCleaner(c ScratchCleaner) Option {
	return func(o *Orchestrator) {
		o.scratch = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(normalizer audio.Normalizer, classifier vad.Classifier, clips ClipWriter, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		normalizer: normalizer,
		classifier: classifier,
		clips:      clips,
		opts:       DefaultOptions(),
		validate:   validator.New(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate.Struct(o.opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return o, nil
}

// Options returns the active segmentation options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Run processes one recording. On success the result holds at least one
// artifact, or none with OutcomeNoSpeech. Any returned error means no
// artifacts were left behind by this run.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	if err := o.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	r := &runState{
		Orchestrator: o,
		in:           in,
		tracker:      newTracker(),
		logger: o.logger.With(
			slog.String("audio_id", in.AudioID),
			slog.String("source", in.SourcePath),
		),
	}
	start := time.Now()
	res, err := r.run(ctx)
	if err != nil {
		stage := r.current
		_ = r.transitionTo(StateFailed)
		r.logger.Error("pipeline failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.logger.Info("pipeline finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("clips", len(res.Artifacts)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// runState carries one run through the stages.
type runState struct {
	*Orchestrator
	*tracker
	in     Input
	logger *slog.Logger
}

func (r *runState) run(ctx context.Context) (*Result, error) {
	norm, err := r.normalizer.Normalize(ctx, r.in.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("normalizer failed, copying source as a single clip",
			slog.String("stage", "normalize"),
			slog.String("error", err.Error()),
		)
		artifacts, rerr := r.clips.CopyWhole(ctx, r.in.SourcePath, r.in.OutputDir, r.in.AudioID)
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return r.finish(OutcomeRescued, artifacts, nil, err)
	}
	if norm.Scratch {
		defer r.cleanup(ctx, norm.Path)
	}
	if err := r.transitionTo(StateNormalized); err != nil {
		return nil, err
	}

	buf, err := r.decode(norm.Path)
	if err != nil {
		return nil, err
	}

	frames, err := r.classify(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		outcome := r.fallbackOutcome(err)
		artifacts, ferr := r.clips.WriteWhole(ctx, buf, r.in.OutputDir, r.in.AudioID)
		if ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return r.finish(outcome, artifacts, nil, err)
	}
	if err := r.transitionTo(StateClassified); err != nil {
		return nil, err
	}

	intervals := segment.Extract(frames, r.opts.Threshold, r.opts.MinSpeechDurationMs, buf.SampleRate)
	if err := r.transitionTo(StateSegmented); err != nil {
		return nil, err
	}
	r.logger.Debug("segments extracted",
		slog.Int("frames", len(frames)),
		slog.Int("intervals", len(intervals)),
	)

	artifacts, err := r.clips.Materialize(ctx, buf, intervals, r.in.OutputDir, r.in.AudioID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("materialization failed, writing whole recording as a single clip",
			slog.String("stage", "materialize"),
			slog.String("error", err.Error()),
		)
		artifacts, rerr := r.clips.WriteWhole(ctx, buf, r.in.OutputDir, r.in.AudioID)
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return r.finish(OutcomeRescued, artifacts, intervals, err)
	}

	outcome := OutcomeSegmented
	if len(intervals) == 0 {
		outcome = OutcomeNoSpeech
	}
	return r.finish(outcome, artifacts, intervals, nil)
}

// decode reads the normalized file and brings it to the classifier format.
func (r *runState) decode(path string) (*audio.Buffer, error) {
	buf, err := audio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf.Channels != 1 || buf.SampleRate != r.opts.SampleRate {
		r.logger.Debug("converting decoded audio",
			slog.Int("channels", buf.Channels),
			slog.Int("sample_rate", buf.SampleRate),
			slog.Int("target_rate", r.opts.SampleRate),
		)
	}
	buf, err = buf.Resample(r.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", path, audio.ErrUndecodable, err)
	}
	return buf, nil
}

// classify runs the classifier under the per-recording budget. Exceeding the
// budget is reported as ErrProcessingTimedOut.
func (r *runState) classify(ctx context.Context, buf *audio.Buffer) ([]vad.Frame, error) {
	classifyCtx := ctx
	if r.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		classifyCtx, cancel = context.WithTimeout(ctx, r.opts.ProcessTimeout)
		defer cancel()
	}

	frames, err := r.classifier.Classify(classifyCtx, buf.Samples, buf.SampleRate)
	if err != nil && ctx.Err() == nil && errors.Is(classifyCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v: %w", ErrProcessingTimedOut, r.opts.ProcessTimeout, err)
	}
	return frames, err
}

// fallbackOutcome logs the classification failure and names the fallback.
func (r *runState) fallbackOutcome(err error) Outcome {
	attrs := []any{slog.String("stage", "classify"), slog.String("error", err.Error())}
	switch {
	case errors.Is(err, ErrProcessingTimedOut):
		r.logger.Warn("classification timed out, writing whole recording as a single clip", attrs...)
		return OutcomeFallbackTimedOut
	case errors.Is(err, vad.ErrUnavailable):
		r.logger.Warn("classifier unavailable, writing whole recording as a single clip", attrs...)
		return OutcomeFallbackUnavailable
	case errors.Is(err, vad.ErrRuntime):
		r.logger.Error("classifier inference failed, writing whole recording as a single clip", attrs...)
		return OutcomeFallbackClassifierError
	default:
		r.logger.Error("classifier failed, writing whole recording as a single clip", attrs...)
		return OutcomeFallbackClassifierError
	}
}

func (r *runState) finish(outcome Outcome, artifacts []clip.Artifact, intervals []segment.Interval, cause error) (*Result, error) {
	if err := r.transitionTo(StateMaterialized); err != nil {
		clip.Remove(artifacts)
		return nil, err
	}
	if intervals == nil {
		intervals = []segment.Interval{}
	}
	return &Result{
		AudioID:   r.in.AudioID,
		Outcome:   outcome,
		Artifacts: artifacts,
		Intervals: intervals,
		Trace:     slices.Clone(r.trace),
		Cause:     cause,
	}, nil
}

// cleanup removes the normalizer scratch file even after cancellation.
func (r *runState) cleanup(ctx context.Context, path string) {
	cleanupCtx := context.WithoutCancel(ctx)
	var err error
	if r.scratch != nil {
		err = r.scratch.CleanupTemp(cleanupCtx, []string{path})
	} else if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	if err != nil {
		r.logger.Warn("failed to remove scratch file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
