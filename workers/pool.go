package workers

import (
	"context"
	"sync"
)

// RunParallel calls fn for every index in [0, n) using at most workers
// goroutines. Once ctx is cancelled no further indices are started; indices
// already running finish. It returns ctx.Err() if any index was skipped.
func RunParallel(ctx context.Context, n, workers int, fn func(ctx context.Context, i int)) error {
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				fn(ctx, i)
			}
		}()
	}

	var err error
feed:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		select {
		case indices <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(indices)
	wg.Wait()
	return err
}
