package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/speechclip/internal/bootstrap"
)

var fetchModelCmd = &cobra.Command{
	Use:   "fetch-model",
	Short: "Download the speech model into the cache",
	Long: `Download the voice activity model from MODEL_URL into MODEL_CACHE_DIR so
later runs work offline. Does nothing if the model is already cached.
Prints the model path.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		cache, err := bootstrap.NewModelCache(cfg, logger)
		if err != nil {
			return err
		}
		path, err := cache.Path(ctx)
		if err != nil {
			return fmt.Errorf("fetch model: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	},
}
