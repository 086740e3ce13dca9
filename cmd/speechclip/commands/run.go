package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/speechclip/internal/bootstrap"
	"github.com/maauso/speechclip/internal/job"
	"github.com/maauso/speechclip/internal/storage"
)

// errJobsFailed is returned when at least one recording ended in ERROR.
var errJobsFailed = errors.New("one or more recordings failed")

var (
	runAudioID string
	runOutput  string
	runSummary bool
)

var runCmd = &cobra.Command{
	Use:   "run FILE...",
	Short: "Segment recordings into speech clips",
	Long: `Process one or more recordings. The audio id defaults to the file name
without its extension. Use "-" to read a recording from stdin. Recordings
that would share an audio id get a numeric suffix: talk, talk_2, talk_3.

Prints one JSON object per recording. Exits with status 1 if any recording
ends in ERROR.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAudioID, "audio-id", "", "audio id for a single recording")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output root directory (overrides OUTPUT_DIR)")
	runCmd.Flags().BoolVar(&runSummary, "summary", false, "print a JSON run summary to stderr")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runAudioID != "" && len(args) > 1 {
		return errors.New("--audio-id can only be used with a single recording")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if runOutput != "" {
		cfg.OutputDir = runOutput
	}

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	inputs, spooled, err := buildInputs(ctx, deps.Storage, args, cfg.OutputDir)
	defer func() {
		if len(spooled) == 0 {
			return
		}
		if err := deps.Storage.CleanupTemp(context.WithoutCancel(ctx), spooled); err != nil {
			logger.Warn("failed to remove spooled input", slog.String("error", err.Error()))
		}
	}()
	if err != nil {
		return err
	}

	jobs, err := deps.JobService.Process(ctx, inputs)
	if err != nil {
		return err
	}
	if err := reportSummary(cmd, deps.JobService, logger); err != nil {
		return err
	}
	return printJobs(cmd, jobs)
}

func reportSummary(cmd *cobra.Command, svc *job.Service, logger *slog.Logger) error {
	sum, err := svc.Summarize(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("run finished",
		slog.Int("recordings", sum.Total),
		slog.Int("processed", sum.Processed),
		slog.Int("failed", sum.Failed),
		slog.Int("clips", sum.Clips),
	)
	if !runSummary {
		return nil
	}
	if err := json.NewEncoder(cmd.ErrOrStderr()).Encode(sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// buildInputs turns command arguments into job inputs, spooling stdin into a
// scratch file. It returns the spooled paths for cleanup.
func buildInputs(ctx context.Context, store storage.Storage, args []string, outputDir string) ([]job.Input, []string, error) {
	var spooled []string
	inputs := make([]job.Input, 0, len(args))
	taken := make(map[string]bool, len(args))
	for _, arg := range args {
		source, id := arg, audioIDFor(arg)
		if arg == "-" {
			path, err := store.SaveTemp(ctx, "stdin", os.Stdin)
			if err != nil {
				return nil, spooled, fmt.Errorf("read stdin: %w", err)
			}
			spooled = append(spooled, path)
			source = path
		}
		if runAudioID != "" {
			id = runAudioID
		}
		id = uniqueID(id, taken)
		inputs = append(inputs, job.Input{SourcePath: source, AudioID: id, OutputDir: outputDir})
	}
	return inputs, spooled, nil
}

func audioIDFor(arg string) string {
	if arg == "-" {
		return "stdin"
	}
	base := filepath.Base(arg)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// uniqueID returns id, or id with the first free _N suffix, and marks the
// result taken.
func uniqueID(id string, taken map[string]bool) string {
	candidate := id
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	taken[candidate] = true
	return candidate
}

func printJobs(cmd *cobra.Command, jobs []*job.Job) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := false
	for _, j := range jobs {
		if err := enc.Encode(j); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		if j.Status == job.StatusError {
			failed = true
		}
	}
	if failed {
		return errJobsFailed
	}
	return nil
}
