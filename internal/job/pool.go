package job

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// WorkerPool runs work items with a fixed upper bound on concurrency.
type WorkerPool struct {
	workers int
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &WorkerPool{workers: workers}
}

// Run calls work for every index in [0, n). Once ctx is cancelled, items
// that have not started are handed to skip instead. A started item runs to
// completion on a context that ignores cancellation.
func (wp *WorkerPool) Run(ctx context.Context, n int, work func(ctx context.Context, i int), skip func(i int)) {
	var g errgroup.Group
	g.SetLimit(wp.workers)

	detached := context.WithoutCancel(ctx)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			skip(i)
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				skip(i)
				return nil
			}
			work(detached, i)
			return nil
		})
	}

	_ = g.Wait()
}
