package coffea

import (
	"context"
)

// FuturesExecutor fans units out to a bounded pool of goroutines and merges
// outcomes in completion order. With compression enabled, each worker
// serializes and compresses its outcome before handing it back, keeping the
// number of live decompressed results bounded by the consumer.
type FuturesExecutor[T any, A Accumulatable[A]] struct {
	// Workers bounds the pool; zero means NumCPU.
	Workers int
}

// NewFuturesExecutor builds a pool executor with the given parallelism.
func NewFuturesExecutor[T any, A Accumulatable[A]](workers int) *FuturesExecutor[T, A] {
	return &FuturesExecutor[T, A]{Workers: workers}
}

func (e *FuturesExecutor[T, A]) Execute(ctx context.Context, items Sequence[T], fn UnitFunc[T, A], acc A, opts Options[A]) (A, error) {
	workers := e.Workers
	if workers < 1 {
		workers = opts.workers()
	}
	bar := opts.bar()
	defer func() {
		if bar != nil {
			bar.Finish()
		}
	}()

	merge := func(res Result[A]) {
		if bar != nil {
			bar.Increment()
		}
		if !res.Skipped {
			acc = acc.Merge(res.Value)
		}
	}

	// consume runs on the drain goroutine only, so merging without locks is
	// fine.
	if opts.Compression != nil {
		codec := opts.codec()
		run := compressionWrapper(*opts.Compression, codec, fn)
		err := runFutures(ctx, items, run, workers, opts.TailTimeout, func(payload []byte) error {
			res, err := decodeOutcome(codec, opts.Compression, payload)
			if err != nil {
				return err
			}
			merge(res)
			return nil
		})
		return acc, err
	}

	err := runFutures(ctx, items, fn, workers, opts.TailTimeout, func(res Result[A]) error {
		merge(res)
		return nil
	})
	return acc, err
}
