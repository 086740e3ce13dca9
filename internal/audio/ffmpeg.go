package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Compile-time check that FFmpegNormalizer implements Normalizer.
var _ Normalizer = (*FFmpegNormalizer)(nil)

// FFmpegNormalizer implements Normalizer using the ffmpeg CLI.
type FFmpegNormalizer struct {
	ffmpegPath string
	available  bool
	sampleRate int
	scratchDir string
	timeout    time.Duration
	logger     *slog.Logger
}

// NormalizerOption configures an FFmpegNormalizer.
type NormalizerOption func(*FFmpegNormalizer)

// WithSampleRate sets the target sample rate.
func WithSampleRate(rate int) NormalizerOption {
	return func(n *FFmpegNormalizer) {
		if rate > 0 {
			n.sampleRate = rate
		}
	}
}

// WithScratchDir sets where converted files are written.
func WithScratchDir(dir string) NormalizerOption {
	return func(n *FFmpegNormalizer) {
		n.scratchDir = dir
	}
}

// WithConvertTimeout bounds a single ffmpeg run. Zero means no bound.
func WithConvertTimeout(d time.Duration) NormalizerOption {
	return func(n *FFmpegNormalizer) {
		n.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) NormalizerOption {
	return func(n *FFmpegNormalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewFFmpegNormalizer creates an FFmpegNormalizer.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH). When the
// binary cannot be found the normalizer passes every input through unchanged.
func NewFFmpegNormalizer(ffmpegPath string, opts ...NormalizerOption) *FFmpegNormalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	n := &FFmpegNormalizer{
		ffmpegPath: ffmpegPath,
		sampleRate: DefaultSampleRate,
		scratchDir: os.TempDir(),
		timeout:    5 * time.Minute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}

	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		n.logger.Warn("ffmpeg not found, audio will not be normalized",
			slog.String("ffmpeg_path", ffmpegPath),
			slog.String("error", ErrDecodeUnavailable.Error()),
		)
		return n
	}
	n.ffmpegPath = resolved
	n.available = true
	return n
}

// Available reports whether ffmpeg was found.
func (n *FFmpegNormalizer) Available() bool {
	return n.available
}

// SampleRate returns the target sample rate.
func (n *FFmpegNormalizer) SampleRate() int {
	return n.sampleRate
}

// Normalize implements Normalizer.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath string) (Normalized, error) {
	passThrough := Normalized{Path: inputPath}

	if err := ctx.Err(); err != nil {
		return Normalized{}, fmt.Errorf("normalize cancelled: %w", err)
	}

	if n.alreadyNormalized(inputPath) {
		n.logger.Debug("input already normalized", slog.String("source", inputPath))
		return passThrough, nil
	}

	if !n.available {
		return passThrough, nil
	}

	out, err := n.scratchFile(inputPath)
	if err != nil {
		n.logger.Warn("cannot create scratch file, using original audio",
			slog.String("source", inputPath),
			slog.String("stage", "normalize"),
			slog.String("error", err.Error()),
		)
		return passThrough, nil
	}

	runCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	args := []string{
		"-y",            // Overwrite the scratch placeholder
		"-i", inputPath, // Input file
		"-vn",      // Drop any video stream
		"-ac", "1", // Mono
		"-ar", strconv.Itoa(n.sampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		out,
	}
	if err := n.runFFmpeg(runCtx, args); err != nil {
		_ = os.Remove(out)
		if ctx.Err() != nil {
			return Normalized{}, fmt.Errorf("normalize cancelled: %w", ctx.Err())
		}
		attrs := []any{
			slog.String("source", inputPath),
			slog.String("stage", "normalize"),
			slog.String("error", fmt.Errorf("%w: %w", ErrDecodeFailed, err).Error()),
		}
		if fe, ok := err.(*FFmpegError); ok {
			attrs = append(attrs, slog.String("stderr", tail(fe.Stderr, 2048)))
		}
		n.logger.Warn("ffmpeg conversion failed, using original audio", attrs...)
		return passThrough, nil
	}

	return Normalized{Path: out, Scratch: true}, nil
}

// alreadyNormalized reports whether path is a .wav file whose header already
// matches the target format.
func (n *FFmpegNormalizer) alreadyNormalized(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return false
	}
	h, err := Probe(path)
	if err != nil {
		return false
	}
	return h.PCM && h.Channels == 1 && h.BitDepth == 16 && h.SampleRate == n.sampleRate
}

func (n *FFmpegNormalizer) scratchFile(inputPath string) (string, error) {
	if err := os.MkdirAll(n.scratchDir, 0750); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	f, err := os.CreateTemp(n.scratchDir, base+"_normalized_*.wav")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return name, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (n *FFmpegNormalizer) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, n.ffmpegPath, append([]string{"-hide_banner", "-nostdin"}, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
