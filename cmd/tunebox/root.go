package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tunebox/internal/config"
	"tunebox/internal/library"
	"tunebox/internal/logging"
	"tunebox/internal/media"
	"tunebox/internal/metadata"
	"tunebox/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tunebox",
	Short: "tunebox is a self-hosted music library server.",
	Long: `tunebox stores uploaded audio files, organizes them into playlists and
streams them back over HTTP with byte-range support.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "path to the TOML configuration file")
}

// app holds the components shared by the server and the CLI commands
type app struct {
	config   *config.Config
	logger   *logrus.Logger
	store    store.Store
	delivery *media.Delivery
	library  *library.Service
}

// newApp loads configuration and wires the store, storage backend and
// upload pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	logger := logging.New(cfg.Logging)

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	delivery := media.NewDelivery(backend, logger)
	extractor := metadata.NewExtractor(cfg.Library, logger)

	return &app{
		config:   cfg,
		logger:   logger,
		store:    st,
		delivery: delivery,
		library:  library.NewService(st, delivery, extractor, cfg, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(cfg *config.Config, logger *logrus.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory store: the library is lost on restart")
		return store.NewMemoryStore(), nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		st, err := store.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
		return st, nil
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (media.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("Using in-memory storage: uploaded files are lost on restart")
		return media.NewMemoryBackend(), nil
	case "minio":
		backend, err := media.NewMinioBackend(ctx, cfg.Storage.Minio, logger)
		if err != nil {
			return nil, fmt.Errorf("error connecting to object storage: %w", err)
		}
		return backend, nil
	default:
		backend, err := media.NewDiskBackend(cfg.UploadDir())
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}
