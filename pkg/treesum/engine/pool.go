package engine

import (
	"context"
	"sync"
)

// runOrdered calls work for each index in [0, n) on at most workers
// goroutines and hands every result to emit in index order, on the calling
// goroutine. At most workers results wait ahead of emit.
//
// When ctx is done no further work is dispatched; work already started is
// still emitted. The returned count is the number of results emitted, which
// is n unless ctx was cancelled.
func runOrdered[T any](ctx context.Context, n, workers int, work func(int) T, emit func(int, T)) int {
	if workers < 1 {
		workers = 1
	}

	type slot struct {
		index int
		done  chan T
	}

	jobs := make(chan slot)
	queue := make(chan slot, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				s.done <- work(s.index)
			}
		}()
	}

	go func() {
		defer close(queue)
		defer close(jobs)
		for i := 0; i < n; i++ {
			s := slot{index: i, done: make(chan T, 1)}
			select {
			case <-ctx.Done():
				return
			case jobs <- s:
			}
			queue <- s
		}
	}()

	emitted := 0
	for s := range queue {
		emit(s.index, <-s.done)
		emitted++
	}
	wg.Wait()
	return emitted
}
