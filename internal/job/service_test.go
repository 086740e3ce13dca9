package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/speechclip/internal/clip"
	"github.com/maauso/speechclip/internal/pipeline"
	"github.com/maauso/speechclip/internal/storage"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*pipeline.Result)
	return res, args.Error(1)
}

// recordingStore publishes into a map instead of S3.
type recordingStore struct {
	*storage.LocalStorage
	mu      sync.Mutex
	objects map[string]string
	failKey string
}

func (s *recordingStore) CanPublish() bool { return true }

func (s *recordingStore) Publish(_ context.Context, key string, data io.Reader) (string, error) {
	if key == s.failKey {
		return "", errors.New("access denied")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = string(b)
	return "https://cdn.example/" + key, nil
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return &recordingStore{LocalStorage: local, objects: map[string]string{}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeClip(t *testing.T, dir, name, content string) clip.Artifact {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return clip.Artifact{Path: p, Ordinal: 1}
}

func TestService_Process_Success(t *testing.T) {
	runner := new(mockRunner)
	artifact := clip.Artifact{Path: "/out/audio_a/clip_1.wav", Ordinal: 1}
	runner.On("Run", mock.Anything, pipeline.Input{SourcePath: "a.wav", AudioID: "a", OutputDir: "/out"}).
		Return(&pipeline.Result{AudioID: "a", Outcome: pipeline.OutcomeSegmented, Artifacts: []clip.Artifact{artifact}}, nil)

	repo := NewMemoryRepository()
	svc := NewService(repo, runner, WithServiceLogger(quietLogger()))

	jobs, err := svc.Process(context.Background(), []Input{{SourcePath: "a.wav", AudioID: "a", OutputDir: "/out"}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, StatusProcessed, jobs[0].Status)
	assert.Equal(t, "segmented", jobs[0].Outcome)
	assert.Equal(t, []clip.Artifact{artifact}, jobs[0].Clips)
	assert.Empty(t, jobs[0].Clips[0].URL)

	stored, err := repo.FindByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, stored.Status)
	runner.AssertExpectations(t)
}

func TestService_Process_PipelineErrorMarksJobError(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.MatchedBy(func(in pipeline.Input) bool { return in.AudioID == "bad" })).
		Return(nil, errors.New("decode: not a wav file"))
	runner.On("Run", mock.Anything, mock.MatchedBy(func(in pipeline.Input) bool { return in.AudioID == "good" })).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeNoSpeech, Artifacts: []clip.Artifact{}}, nil)

	svc := NewService(NewMemoryRepository(), runner, WithServiceLogger(quietLogger()))
	jobs, err := svc.Process(context.Background(), []Input{
		{SourcePath: "bad.bin", AudioID: "bad", OutputDir: "out"},
		{SourcePath: "good.wav", AudioID: "good", OutputDir: "out"},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "bad", jobs[0].AudioID)
	assert.Equal(t, StatusError, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "not a wav file")

	assert.Equal(t, "good", jobs[1].AudioID)
	assert.Equal(t, StatusProcessed, jobs[1].Status)
	assert.Equal(t, "no_speech", jobs[1].Outcome)
}

func TestService_Process_BoundedConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
		}).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeNoSpeech}, nil)

	inputs := make([]Input, 6)
	for i := range inputs {
		inputs[i] = Input{SourcePath: "x.wav", AudioID: string(rune('a' + i)), OutputDir: "out"}
	}

	svc := NewService(NewMemoryRepository(), runner, WithMaxConcurrent(2), WithServiceLogger(quietLogger()))
	jobs, err := svc.Process(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, jobs, 6)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, j := range jobs {
		assert.Equal(t, inputs[i].AudioID, j.AudioID)
		assert.Equal(t, StatusProcessed, j.Status)
	}
}

func TestService_Process_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, context.Canceled).Maybe()

	svc := NewService(NewMemoryRepository(), runner, WithMaxConcurrent(1), WithServiceLogger(quietLogger()))
	jobs, err := svc.Process(ctx, []Input{
		{SourcePath: "a.wav", AudioID: "a", OutputDir: "out"},
		{SourcePath: "b.wav", AudioID: "b", OutputDir: "out"},
	})
	require.NoError(t, err)
	for _, j := range jobs {
		assert.Equal(t, StatusError, j.Status)
		assert.Contains(t, j.Error, context.Canceled.Error())
	}
}

func TestService_Process_PublishesClips(t *testing.T) {
	out := t.TempDir()
	a1 := writeClip(t, out, "clip_1.wav", "one")
	a2 := writeClip(t, out, "clip_2.wav", "two")
	a2.Ordinal = 2

	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeSegmented, Artifacts: []clip.Artifact{a1, a2}}, nil)

	store := newRecordingStore(t)
	svc := NewService(NewMemoryRepository(), runner,
		WithStorage(store), WithKeyPrefix("speech"), WithServiceLogger(quietLogger()))

	jobs, err := svc.Process(context.Background(), []Input{{SourcePath: "s.wav", AudioID: "7", OutputDir: out}})
	require.NoError(t, err)
	require.Equal(t, StatusProcessed, jobs[0].Status)

	assert.Equal(t, map[string]string{
		"speech/audio_7/clip_1.wav": "one",
		"speech/audio_7/clip_2.wav": "two",
	}, store.objects)
	assert.Equal(t, "https://cdn.example/speech/audio_7/clip_1.wav", jobs[0].Clips[0].URL)
	assert.Equal(t, "https://cdn.example/speech/audio_7/clip_2.wav", jobs[0].Clips[1].URL)
}

func TestService_Process_PublishFailureMarksJobError(t *testing.T) {
	out := t.TempDir()
	a1 := writeClip(t, out, "clip_1.wav", "one")

	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeSegmented, Artifacts: []clip.Artifact{a1}}, nil)

	store := newRecordingStore(t)
	store.failKey = "audio_7/clip_1.wav"
	svc := NewService(NewMemoryRepository(), runner, WithStorage(store), WithServiceLogger(quietLogger()))

	jobs, err := svc.Process(context.Background(), []Input{{SourcePath: "s.wav", AudioID: "7", OutputDir: out}})
	require.NoError(t, err)
	assert.Equal(t, StatusError, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, ErrPublishFailed.Error())
	assert.Empty(t, jobs[0].Clips)
}

func TestService_Process_LocalStorageSkipsPublishing(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeSegmented, Artifacts: []clip.Artifact{{Path: "/nope/clip_1.wav", Ordinal: 1}}}, nil)

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewService(NewMemoryRepository(), runner, WithStorage(local), WithServiceLogger(quietLogger()))

	jobs, err := svc.Process(context.Background(), []Input{{SourcePath: "s.wav", AudioID: "1", OutputDir: "out"}})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, jobs[0].Status)
}

func TestService_Process_RejectsDuplicateAudioID(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeNoSpeech, Artifacts: []clip.Artifact{}}, nil)

	svc := NewService(NewMemoryRepository(), runner, WithServiceLogger(quietLogger()))
	jobs, err := svc.Process(context.Background(), []Input{
		{SourcePath: "a/talk.wav", AudioID: "talk", OutputDir: "out"},
		{SourcePath: "b/talk.mp3", AudioID: "talk", OutputDir: "out/"},
		{SourcePath: "c/talk.wav", AudioID: "talk", OutputDir: "elsewhere"},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, StatusProcessed, jobs[0].Status)
	assert.Equal(t, StatusError, jobs[1].Status)
	assert.Contains(t, jobs[1].Error, ErrDuplicateAudioID.Error())
	assert.Contains(t, jobs[1].Error, `"talk"`)
	assert.True(t, jobs[1].StartedAt.IsZero())
	assert.Equal(t, StatusProcessed, jobs[2].Status)

	runner.AssertNumberOfCalls(t, "Run", 2)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.MatchedBy(func(in pipeline.Input) bool {
		return in.SourcePath == "b/talk.mp3"
	}))
}

func TestService_Summarize(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.MatchedBy(func(in pipeline.Input) bool { return in.AudioID == "bad" })).
		Return(nil, errors.New("decode failed"))
	runner.On("Run", mock.Anything, mock.MatchedBy(func(in pipeline.Input) bool { return in.AudioID == "quiet" })).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeNoSpeech, Artifacts: []clip.Artifact{}}, nil)
	runner.On("Run", mock.Anything, mock.MatchedBy(func(in pipeline.Input) bool { return in.AudioID == "talk" })).
		Return(&pipeline.Result{Outcome: pipeline.OutcomeSegmented, Artifacts: []clip.Artifact{
			{Path: "out/audio_talk/clip_1.wav", Ordinal: 1},
			{Path: "out/audio_talk/clip_2.wav", Ordinal: 2},
		}}, nil)

	repo := NewMemoryRepository()
	pending := New("later", "later.wav", "out")
	require.NoError(t, repo.Save(context.Background(), pending))

	svc := NewService(repo, runner, WithServiceLogger(quietLogger()))
	_, err := svc.Process(context.Background(), []Input{
		{SourcePath: "talk.wav", AudioID: "talk", OutputDir: "out"},
		{SourcePath: "quiet.wav", AudioID: "quiet", OutputDir: "out"},
		{SourcePath: "bad.wav", AudioID: "bad", OutputDir: "out"},
	})
	require.NoError(t, err)

	sum, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Total:      4,
		Processed:  2,
		Failed:     1,
		Unfinished: 1,
		Clips:      2,
		Outcomes:   map[string]int{"segmented": 1, "no_speech": 1},
	}, sum)
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), new(mockRunner), WithMaxConcurrent(0), WithServiceLogger(nil))
	assert.Equal(t, DefaultMaxConcurrent, svc.maxConcurrent)
	assert.NotNil(t, svc.logger)
}
