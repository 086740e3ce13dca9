// Package commands implements the speechclip subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/speechclip/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "speechclip",
	Short: "Cut recordings into speech clips",
	Long: `speechclip finds the spoken parts of audio recordings and writes each
one as a numbered WAV clip.

Settings come from environment variables (see README), optionally layered on
top of a YAML file given with --config.

Example:
  speechclip run --output clips interview.mp3
  VAD_ENGINE=stub speechclip run a.wav b.wav`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file; environment variables take precedence")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fetchModelCmd)
}

// loadConfig reads and validates configuration and builds the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.String("config", cfg.String()))
	return cfg, logger, nil
}
