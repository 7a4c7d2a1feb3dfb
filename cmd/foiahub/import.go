package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foiahub/internal/archive"
	"foiahub/internal/importer"
	"foiahub/internal/metrics"
)

func importCmd(envFile *string) *cobra.Command {
	var workers int

	c := &cobra.Command{
		Use:   "import [agency...]",
		Short: "Import document batches from the archive (all agencies when none are named)",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *envFile)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			source, err := archive.Open(ctx, a.cfg.Archive)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = a.cfg.Archive.Workers
			}
			run := a.runner(source)
			if err := importer.ImportAll(ctx, source, args, workers, run); err != nil {
				return err
			}
			a.logger.Info("import finished", zap.Int("workers", workers))
			return nil
		},
	}
	c.Flags().IntVarP(&workers, "workers", "j", 0, "agencies imported concurrently (default FOIAHUB_IMPORT_WORKERS)")
	return c
}

func (a *app) runner(source archive.Source) importer.RunFunc {
	return importer.Runner(source, a.store, a.blobs,
		importer.WithLogger(a.logger.Named("importer")),
		importer.WithMetrics(metrics.NewImporter(a.registry)),
	)
}

// startWatcher runs an archive watcher feeding run until ctx is cancelled.
// Object-storage archives cannot be watched.
func (a *app) startWatcher(ctx context.Context, source archive.Source, run importer.RunFunc) (stop func(context.Context) error, err error) {
	local, ok := source.(*archive.Local)
	if !ok {
		return nil, fmt.Errorf("watching requires a local archive, have %s", source.Kind())
	}
	w := importer.NewWatcher(local, run,
		importer.WithWatchLogger(a.logger.Named("watcher")))
	if err := w.Start(ctx); err != nil {
		return nil, errors.Join(err, w.Stop(context.Background()))
	}
	a.logger.Info("watching archive", zap.String("root", local.Root()))
	return w.Stop, nil
}
