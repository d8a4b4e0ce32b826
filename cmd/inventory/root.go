package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vbonduro/inventory/internal/config"
	"github.com/vbonduro/inventory/internal/db"
	"github.com/vbonduro/inventory/internal/logging"
	"github.com/vbonduro/inventory/internal/metrics"
	"github.com/vbonduro/inventory/internal/photostore/local"
	"github.com/vbonduro/inventory/internal/service"
	"github.com/vbonduro/inventory/internal/store"
	"github.com/vbonduro/inventory/internal/web"
	"github.com/vbonduro/inventory/internal/web/static"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "inventory",
		Short:         "Inventory record store",
		Long:          `Serves inventory records with optional photos over HTTP, persisting them to a JSON file in the cache directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer cleanup()

			return run(cmd.Context(), cfg, logger)
		},
	}

	// -h is the host, so help only answers to --help.
	cmd.Flags().Bool("help", false, "help for inventory")

	flags := cmd.Flags()
	flags.StringP("host", "h", "", "host interface to listen on (required)")
	flags.IntP("port", "p", 0, "port to listen on (required)")
	flags.StringP("cache", "c", "", "cache directory for photos and state (required)")
	flags.Bool("persist", true, "persist records to the state file")
	flags.String("state-file", "", "records file (default <cache>/inventory.json)")
	flags.String("ledger-db", "", "upload ledger database (default <cache>/uploads.db)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "also append logs to this file")
	flags.Int64("max-upload-bytes", 50*1024*1024, "max request body size for uploads")

	for _, name := range []string{"host", "port", "cache", "persist", "state-file", "ledger-db", "log-level", "log-file", "max-upload-bytes"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	logger.Info("cache directory ready", "path", cfg.CacheDir)

	database, err := db.Open(cfg.LedgerDB)
	if err != nil {
		return fmt.Errorf("failed to open upload ledger: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	photoStg, err := local.NewLocalPhotoStore(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to initialize photo store: %w", err)
	}

	var persister store.Persister
	if cfg.Persist {
		persister = store.NewJSONFilePersister(cfg.StateFile)
		logger.Info("persisting records", "state_file", cfg.StateFile)
	} else {
		logger.Warn("persistence disabled, records live in memory only")
	}

	items, err := store.NewItemStore(persister, photoStg, logger)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	m := metrics.New()
	svc := service.NewInventoryService(items, store.NewUploadStore(database), photoStg, m, logger)
	server := web.NewServer(svc, static.FS, m, logger, cfg.MaxUploadBytes)

	return server.ListenAndServe(ctx, cfg.Addr())
}
