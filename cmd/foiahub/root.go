package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foiahub/internal/blob"
	"foiahub/internal/config"
	"foiahub/internal/core"
	"foiahub/internal/logging"
	"foiahub/internal/metrics"
)

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "foiahub",
		Short:        "FOIA agency directory, request intake and document search",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file seeding FOIAHUB_* variables (ignored when missing)")

	cmd.AddCommand(
		serveCmd(&envFile),
		importCmd(&envFile),
		loadAgenciesCmd(&envFile),
	)
	return cmd
}

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	store    core.PersistentStore
	blobs    blob.Store
}

func bootstrap(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	logger.Info("foiahub starting",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", string(blobs.Driver())),
		zap.String("archive", cfg.Archive.Driver))
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: metrics.NewRegistry(),
		store:    store,
		blobs:    blobs,
	}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	// Sync reports EINVAL for console stderr.
	_ = a.logger.Sync()
	return err
}

func closeApp(a *app, errp *error) {
	if cerr := a.Close(); cerr != nil {
		*errp = errors.Join(*errp, cerr)
	}
}
