package modules

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Prefetch resolves and reads several modules concurrently, at most workers
// at a time (0 means one per CPU). Results keep the order of specifiers. The
// first failure cancels the remaining reads and is returned.
func (l *Loader) Prefetch(ctx context.Context, specifiers []string, fromPath string, workers int) ([]*Source, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sources := make([]*Source, len(specifiers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, spec := range specifiers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := l.ReadSource(spec, fromPath)
			if err != nil {
				return err
			}
			sources[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}
