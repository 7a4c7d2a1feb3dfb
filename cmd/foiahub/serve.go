package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"foiahub/internal/api"
	"foiahub/internal/archive"
	"foiahub/internal/core"
	"foiahub/internal/metrics"
)

func serveCmd(envFile *string) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the directory, request and document API",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *envFile)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			svc := core.NewService(a.store,
				core.WithLogger(a.logger.Named("service")),
				core.WithBlobStore(a.blobs),
				core.WithCache(a.cfg.HTTP.CacheSize, a.cfg.HTTP.CacheTTL),
			)

			if watch {
				// Stores are snapshotted per process, so imports that should
				// be visible here have to run in this process.
				source, err := archive.Open(ctx, a.cfg.Archive)
				if err != nil {
					return err
				}
				run := a.runner(source)
				stop, err := a.startWatcher(ctx, source, func(ctx context.Context, agency string) error {
					defer svc.InvalidateCache()
					return run(ctx, agency)
				})
				if err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					_ = stop(stopCtx)
				}()
			}

			srv := api.NewServer(svc,
				api.WithLogger(a.logger.Named("http")),
				api.WithMetrics(metrics.NewHTTP(a.registry), a.registry),
			)
			return srv.Run(ctx, addr)
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "listen address (default FOIAHUB_HTTP_ADDR)")
	c.Flags().BoolVar(&watch, "watch", false, "import new batches appearing in the local archive while serving")
	return c
}
