package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/maauso/speechclip/internal/clip"
	"github.com/maauso/speechclip/internal/pipeline"
	"github.com/maauso/speechclip/internal/storage"
)

// DefaultMaxConcurrent is the default number of pipelines run in parallel.
const DefaultMaxConcurrent = 2

var (
	// ErrPublishFailed is recorded when a clip could not be published.
	ErrPublishFailed = errors.New("job: publish failed")
	// ErrDuplicateAudioID is recorded on a job whose audio id was already
	// taken by an earlier input with the same output directory. Both would
	// write to the same clip folder.
	ErrDuplicateAudioID = errors.New("job: duplicate audio id")
)

// Runner runs one recording through the pipeline.
// *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Compile-time check that *pipeline.Orchestrator implements Runner.
var _ Runner = (*pipeline.Orchestrator)(nil)

// Input describes one recording to submit.
type Input struct {
	SourcePath string
	AudioID    string
	OutputDir  string
}

// Service creates jobs for recordings and runs them through the pipeline
// with bounded concurrency, publishing clips when storage supports it.
type Service struct {
	repo          Repository
	runner        Runner
	store         storage.Storage
	keyPrefix     string
	maxConcurrent int
	logger        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrent limits how many pipelines run at once. Values below 1
// are ignored.
func WithMaxConcurrent(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithStorage enables clip publishing through store when it can publish.
func WithStorage(store storage.Storage) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// WithKeyPrefix sets the object key prefix for published clips.
func WithKeyPrefix(prefix string) ServiceOption {
	return func(s *Service) {
		s.keyPrefix = prefix
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(repo Repository, runner Runner, opts ...ServiceOption) *Service {
	s := &Service{
		repo:          repo,
		runner:        runner,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process creates one job per input and runs them. It returns the final
// state of every job in input order. Per-recording failures are recorded on
// the job; the error return is reserved for repository failures.
//
// An input reusing the audio id of an earlier input with the same output
// directory fails with ErrDuplicateAudioID and never runs.
func (s *Service) Process(ctx context.Context, inputs []Input) ([]*Job, error) {
	jobs := make([]*Job, 0, len(inputs))
	runnable := make([]*Job, 0, len(inputs))
	claimed := make(map[[2]string]bool, len(inputs))
	for _, in := range inputs {
		j := New(in.AudioID, in.SourcePath, in.OutputDir)
		if err := s.repo.Save(ctx, j); err != nil {
			return nil, fmt.Errorf("save job: %w", err)
		}
		s.logger.Info("job created",
			slog.String("job_id", j.ID),
			slog.String("audio_id", j.AudioID),
			slog.String("source", j.SourcePath),
		)
		jobs = append(jobs, j)

		key := [2]string{filepath.Clean(in.OutputDir), in.AudioID}
		if claimed[key] {
			s.fail(ctx, j, fmt.Errorf("%w: %q", ErrDuplicateAudioID, in.AudioID))
			continue
		}
		claimed[key] = true
		runnable = append(runnable, j)
	}

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for _, j := range runnable {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			s.fail(ctx, j, ctx.Err())
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.run(ctx, j)
		}()
	}
	wg.Wait()

	result := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		result = append(result, j.Clone())
	}
	return result, nil
}

// Summary counts the jobs a Service has seen.
type Summary struct {
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Failed     int            `json:"failed"`
	Unfinished int            `json:"unfinished"`
	Clips      int            `json:"clips"`
	Outcomes   map[string]int `json:"outcomes"`
}

// Summarize reports on every job in the repository.
func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list jobs: %w", err)
	}
	sum := Summary{Total: len(jobs), Outcomes: map[string]int{}}
	for _, j := range jobs {
		if !j.IsTerminal() {
			sum.Unfinished++
			continue
		}
		if j.Status == StatusError {
			sum.Failed++
			continue
		}
		sum.Processed++
		sum.Clips += len(j.Clips)
		sum.Outcomes[j.Outcome]++
	}
	return sum, nil
}

func (s *Service) run(ctx context.Context, j *Job) {
	if err := j.Start(); err != nil {
		s.logger.Error("failed to start job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.save(ctx, j)

	res, err := s.runner.Run(ctx, pipeline.Input{
		SourcePath: j.SourcePath,
		AudioID:    j.AudioID,
		OutputDir:  j.OutputDir,
	})
	if err != nil {
		s.fail(ctx, j, err)
		return
	}

	clips := res.Artifacts
	if s.store != nil && s.store.CanPublish() {
		if clips, err = s.publish(ctx, j.AudioID, clips); err != nil {
			s.fail(ctx, j, err)
			return
		}
	}

	if err := j.Complete(string(res.Outcome), clips); err != nil {
		s.logger.Error("failed to complete job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.save(ctx, j)
	s.logger.Info("job processed",
		slog.String("job_id", j.ID),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("clips", len(clips)),
	)
}

// publish uploads every clip and returns copies carrying their URLs.
func (s *Service) publish(ctx context.Context, audioID string, clips []clip.Artifact) ([]clip.Artifact, error) {
	out := make([]clip.Artifact, len(clips))
	copy(out, clips)
	for i := range out {
		url, err := s.publishOne(ctx, audioID, out[i].Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPublishFailed, out[i].Path, err)
		}
		out[i].URL = url
	}
	return out, nil
}

func (s *Service) publishOne(ctx context.Context, audioID, path string) (string, error) {
	rc, err := s.store.LoadTemp(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	key := storage.ClipKey(s.keyPrefix, audioID, filepath.Base(path))
	return s.store.Publish(ctx, key, rc)
}

func (s *Service) fail(ctx context.Context, j *Job, cause error) {
	if err := j.Fail(cause.Error()); err != nil {
		s.logger.Error("failed to mark job as error",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.save(ctx, j)
	s.logger.Error("job failed",
		slog.String("job_id", j.ID),
		slog.String("audio_id", j.AudioID),
		slog.String("error", cause.Error()),
	)
}

func (s *Service) save(ctx context.Context, j *Job) {
	if err := s.repo.Save(context.WithoutCancel(ctx), j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}
