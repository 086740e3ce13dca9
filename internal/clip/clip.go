// Package clip writes speech intervals out as numbered audio files.
package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/speechclip/internal/audio"
	"github.com/maauso/speechclip/internal/segment"
)

// ErrMaterializeFailed is returned when clip files cannot be written.
var ErrMaterializeFailed = errors.New("clip: materialize failed")

// Artifact is one written clip.
type Artifact struct {
	// Path is the clip file location.
	Path string `json:"path"`
	// Ordinal is the 1-based position of the clip in its recording.
	Ordinal int `json:"ordinal"`
	// Start and End are the sample range in the source buffer. Both are zero
	// for raw copies of the source file.
	Start int `json:"start"`
	End   int `json:"end"`
	// Duration is the clip length, zero when unknown.
	Duration time.Duration `json:"duration"`
	// URL is set once the clip has been published.
	URL string `json:"url,omitempty"`
}

// DirName returns the per-recording subdirectory name.
func DirName(audioID string) string {
	return "audio_" + audioID
}

// FileName returns the file name of the n-th clip.
func FileName(n int, ext string) string {
	return fmt.Sprintf("clip_%d%s", n, ext)
}

// Materializer writes clips under an output root.
type Materializer struct{}

// NewMaterializer creates a Materializer.
func NewMaterializer() *Materializer {
	return &Materializer{}
}

// Materialize writes one 16-bit mono WAV per interval to
// <outputDir>/audio_<audioID>/clip_<n>.wav, n starting at 1 in interval
// order. On failure the files written by this call are removed.
func (m *Materializer) Materialize(ctx context.Context, buf *audio.Buffer, intervals []segment.Interval, outputDir, audioID string) ([]Artifact, error) {
	dir, err := m.prepareDir(outputDir, audioID)
	if err != nil {
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(intervals))
	for i, iv := range intervals {
		if err := ctx.Err(); err != nil {
			Remove(artifacts)
			return nil, fmt.Errorf("%w: %w", ErrMaterializeFailed, err)
		}

		path := filepath.Join(dir, FileName(i+1, ".wav"))
		clipBuf := &audio.Buffer{
			Samples:    buf.Slice(iv.Start, iv.End),
			SampleRate: buf.SampleRate,
			Channels:   1,
		}
		if err := audio.WriteFile(path, clipBuf); err != nil {
			Remove(artifacts)
			return nil, fmt.Errorf("%w: clip %d: %w", ErrMaterializeFailed, i+1, err)
		}
		artifacts = append(artifacts, Artifact{
			Path:     path,
			Ordinal:  i + 1,
			Start:    iv.Start,
			End:      iv.End,
			Duration: iv.Duration(buf.SampleRate),
		})
	}
	return artifacts, nil
}

// WriteWhole writes the entire buffer as clip_1.wav.
func (m *Materializer) WriteWhole(ctx context.Context, buf *audio.Buffer, outputDir, audioID string) ([]Artifact, error) {
	whole := segment.Interval{Start: 0, End: len(buf.Samples)}
	return m.Materialize(ctx, buf, []segment.Interval{whole}, outputDir, audioID)
}

// CopyWhole copies srcPath byte for byte to clip_1 with the source
// extension. It is used when no decoded audio is available.
func (m *Materializer) CopyWhole(ctx context.Context, srcPath, outputDir, audioID string) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaterializeFailed, err)
	}
	dir, err := m.prepareDir(outputDir, audioID)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(srcPath))
	if ext == "" {
		ext = ".wav"
	}
	dst := filepath.Join(dir, FileName(1, ext))
	if err := copyFile(srcPath, dst); err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("%w: %w", ErrMaterializeFailed, err)
	}
	return []Artifact{{Path: dst, Ordinal: 1}}, nil
}

func (m *Materializer) prepareDir(outputDir, audioID string) (string, error) {
	dir := filepath.Join(outputDir, DirName(audioID))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrMaterializeFailed, dir, err)
	}
	return dir, nil
}

// Remove deletes the files of artifacts, ignoring ones already gone.
func Remove(artifacts []Artifact) {
	for _, a := range artifacts {
		_ = os.Remove(a.Path)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304 - dst is built from the output root
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination file: %w", err)
	}
	return nil
}
