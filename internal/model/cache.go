package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// DefaultURL is the Silero VAD v5 ONNX model.
const DefaultURL = "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx"

// ErrCacheDirRequired is returned when no cache directory is configured.
var ErrCacheDirRequired = errors.New("model: cache directory is required")

// Cache resolves the model file to a local path. A file already present in
// the cache directory is used as is; otherwise it is downloaded once into a
// temporary file and renamed into place.
type Cache struct {
	mu       sync.Mutex
	dir      string
	url      string
	fetcher  Fetcher
	logger   *slog.Logger
	resolved string
}

// NewCache creates a Cache storing url under dir.
func NewCache(dir, url string, fetcher Fetcher, logger *slog.Logger) (*Cache, error) {
	if dir == "" {
		return nil, ErrCacheDirRequired
	}
	if url == "" {
		return nil, ErrURLRequired
	}
	if fetcher == nil {
		fetcher = NewDownloader()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, url: url, fetcher: fetcher, logger: logger}, nil
}

// FilePath returns where the model lives once cached.
func (c *Cache) FilePath() string {
	name := path.Base(c.url)
	if name == "" || name == "." || name == "/" {
		name = "model.onnx"
	}
	return filepath.Join(c.dir, name)
}

// Path returns the local model path, downloading it on first use.
// Concurrent callers in one process share a single download; concurrent
// processes are safe because the file only appears through a rename.
func (c *Cache) Path(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved != "" {
		return c.resolved, nil
	}

	target := c.FilePath()
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		c.logger.Debug("using cached model", slog.String("path", target))
		c.resolved = target
		return target, nil
	}

	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return "", fmt.Errorf("model: create cache directory: %w", err)
	}

	c.logger.Info("downloading model",
		slog.String("url", c.url),
		slog.String("path", target),
	)

	tmp, err := os.CreateTemp(c.dir, filepath.Base(target)+".*.part")
	if err != nil {
		return "", fmt.Errorf("model: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := c.fetcher.Fetch(ctx, c.url, tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("model: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("model: install model: %w", err)
	}

	c.resolved = target
	return target, nil
}

// Reset forgets the resolved path so the next Path call checks disk again.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = ""
}
