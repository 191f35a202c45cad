// Package main implements the loader CLI: a folder watcher and one-shot
// indexing against the configured chunk store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragassist/config"
	"ragassist/indexer"
	"ragassist/loader"
	"ragassist/loader/service"
	"ragassist/model"
	"ragassist/store"
)

var kindFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loader",
	Short: "Index documents into the chunk store",
	Long: `loader indexes PDF, text, HTML and web documents into the chunk store
configured through the environment (and CONFIG_FILE / .env).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Fatal("Error loading .env file: ", err)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source folder and index files as they arrive",
	Long: `Poll LOADER_SOURCE_DIR and index every file that stays unchanged for
LOADER_MONITORING_TIME. Indexed files move to LOADER_ARCHIVE_DIR/<date>,
failed ones to LOADER_BAD_DIR/<date>.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var indexCmd = &cobra.Command{
	Use:   "index <locator>",
	Short: "Index one file, directory or URL",
	Long: `Index a single locator and exit.

Examples:
  # Kind inferred from the extension
  loader index ./docs/guide.pdf

  # Every recognised file below a directory
  loader index ./docs --kind directory

  # A web page
  loader index https://go.dev/doc/effective_go --kind url`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&kindFlag, "kind", "", "pdf, text, html, url or directory (default: from extension)")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(indexCmd)
}

// setup loads the configuration and opens the chunk store. The caller
// closes the store.
func setup(ctx context.Context) (*indexer.Indexer, store.ChunkStore, *config.AppConfig, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := config.NewLogger(cfg.Log)

	chunks, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("error to open chunk store: %w", err)
	}
	ix, err := indexer.FromConfig(cfg, model.NewOllamaEmbedder(cfg.Ollama, logger), chunks, logger)
	if err != nil {
		chunks.Close()
		return nil, nil, nil, nil, err
	}
	return ix, chunks, cfg, logger, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, chunks, cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing chunk store")
		if err := chunks.Close(); err != nil {
			logger.Error("closing chunk store", "error", err)
		}
	}()

	return service.New(cfg.Loader, ix, service.WithLogger(logger)).Run(ctx)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, chunks, _, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer chunks.Close()

	locator := args[0]
	var n int
	switch kindFlag {
	case "directory":
		n, err = ix.IndexDirectory(ctx, locator)
	default:
		n, err = ix.IndexLocator(ctx, locator, loader.Kind(kindFlag))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %s\n", n, locator)
	return nil
}
