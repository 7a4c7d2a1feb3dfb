package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"foiahub/internal/archive"
	"foiahub/internal/blob"
	"foiahub/pkg/domain"
)

// DefaultWorkers bounds ImportAll when workers is not positive.
const DefaultWorkers = 4

// RunFunc imports one agency.
type RunFunc func(ctx context.Context, agency string) error

// Runner returns a RunFunc that builds an Importer per agency.
func Runner(source archive.Source, store domain.PersistentStore, blobs blob.Store, opts ...Option) RunFunc {
	return func(ctx context.Context, agency string) error {
		return New(source, store, blobs, agency, opts...).ImportDocs(ctx)
	}
}

// ImportAll imports agencies concurrently, at most workers at a time. With no
// agencies it imports every top-level directory of the archive. A failing
// agency does not stop the others; all failures are returned joined.
func ImportAll(ctx context.Context, source archive.Source, agencies []string, workers int, run RunFunc) error {
	if len(agencies) == 0 {
		dirs, err := source.ListDir(ctx, "")
		if err != nil {
			return fmt.Errorf("list agencies: %w", err)
		}
		agencies = dirs
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(workers)
	for _, agency := range agencies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := run(ctx, agency); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("agency %s: %w", agency, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
