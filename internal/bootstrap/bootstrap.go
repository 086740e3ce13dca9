// Package bootstrap wires speechclip's components from configuration.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/speechclip/internal/audio"
	"github.com/maauso/speechclip/internal/clip"
	"github.com/maauso/speechclip/internal/config"
	"github.com/maauso/speechclip/internal/job"
	"github.com/maauso/speechclip/internal/model"
	"github.com/maauso/speechclip/internal/pipeline"
	"github.com/maauso/speechclip/internal/storage"
	"github.com/maauso/speechclip/internal/vad"
)

// Dependencies holds the initialized components of the application.
type Dependencies struct {
	Storage      storage.Storage
	ModelCache   *model.Cache
	Classifier   *vad.Lazy
	Orchestrator *pipeline.Orchestrator
	JobService   *job.Service
}

// NewDependencies creates and initializes all dependencies for the application.
// The classifier backend is not built here; it is acquired on first use.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, local, prefix, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	cache, err := NewModelCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	factory, err := vad.NewFactory(vad.FactoryConfig{
		Engine:       vad.Engine(cfg.VADEngine),
		ModelPath:    cache.Path,
		ORTLibPath:   cfg.ORTLibPath,
		ChunkSeconds: cfg.VADChunkSeconds,
		Workers:      cfg.VADWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("create classifier factory: %w", err)
	}
	classifier := vad.NewLazy(factory)

	normalizer := audio.NewFFmpegNormalizer(cfg.FFmpegPath,
		audio.WithSampleRate(cfg.NormalizeSampleRate),
		audio.WithScratchDir(local.TempDir()),
		audio.WithConvertTimeout(cfg.ConvertTimeout),
		audio.WithLogger(logger),
	)

	orchestrator, err := pipeline.New(normalizer, classifier, clip.NewMaterializer(),
		pipeline.WithOptions(pipeline.Options{
			Threshold:           cfg.VADThreshold,
			MinSpeechDurationMs: cfg.VADMinSpeechDurationMs,
			SampleRate:          vad.ModelSampleRate,
			ProcessTimeout:      cfg.ProcessTimeout,
		}),
		pipeline.WithScratchCleaner(store),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	svc := job.NewService(job.NewMemoryRepository(), orchestrator,
		job.WithMaxConcurrent(cfg.MaxConcurrentJobs),
		job.WithStorage(store),
		job.WithKeyPrefix(prefix),
		job.WithServiceLogger(logger),
	)

	return &Dependencies{
		Storage:      store,
		ModelCache:   cache,
		Classifier:   classifier,
		Orchestrator: orchestrator,
		JobService:   svc,
	}, nil
}

// NewModelCache builds the model cache and its downloader from configuration.
func NewModelCache(cfg *config.Config, logger *slog.Logger) (*model.Cache, error) {
	downloader := model.NewDownloader(model.WithMaxRetries(cfg.ModelDownloadRetries))
	cache, err := model.NewCache(cfg.ModelCacheDir, cfg.ModelURL, downloader, logger)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	return cache, nil
}

// initStorage creates the appropriate storage backend based on configuration.
// It also returns the local scratch store and the clip key prefix.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, *storage.LocalStorage, string, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(cfg.TempDir, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", s3Store.Prefix()),
		)
		return s3Store, s3Store.LocalStorage, s3Store.Prefix(), nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, localStore, "", nil
}
