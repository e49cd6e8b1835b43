package coffea

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// completion carries one finished operation out of the worker pool.
type completion[R any] struct {
	value R
	err   error
}

// runFutures submits items to a bounded worker pool and hands results to
// consume in completion order, not submission order.
//
// A tailTimeout period with zero completions warns and cancels the remaining
// tail, ending the drain early with whatever completed; this is a deliberate
// throughput tradeoff so a stalled tail cannot block the whole job. Context
// cancellation and failures likewise cancel all outstanding operations, but
// already-running units are drained before returning. Results are handed to
// consume exactly once and never retained by the handler.
func runFutures[T, R any](ctx context.Context, items Sequence[T], run func(context.Context, T) (R, error), workers int, tailTimeout time.Duration, consume func(R) error) error {
	if workers < 1 {
		workers = 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		// Cancel the tail, then wait for running units to wind down.
		// Completed-but-unread results are discarded, not retained.
		cancel()
		wg.Wait()
	}()

	done := make(chan completion[R])
	var submitted int64
	submitDone := make(chan struct{})
	go func() {
		defer close(submitDone)
		sem := semaphore.NewWeighted(int64(workers))
		for {
			item, ok := items.Next()
			if !ok {
				return
			}
			if err := sem.Acquire(runCtx, 1); err != nil {
				return
			}
			atomic.AddInt64(&submitted, 1)
			wg.Add(1)
			go func(it T) {
				defer wg.Done()
				defer sem.Release(1)
				value, err := run(runCtx, it)
				select {
				case done <- completion[R]{value: value, err: err}:
				case <-runCtx.Done():
				}
			}(item)
		}
	}()

	var timer *time.Timer
	var timeoutC <-chan time.Time
	if tailTimeout > 0 {
		timer = time.NewTimer(tailTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	received := 0
	submitting := true
	for submitting || received < int(atomic.LoadInt64(&submitted)) {
		select {
		case c := <-done:
			received++
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(tailTimeout)
			}
			if c.err != nil {
				return c.err
			}
			if err := consume(c.value); err != nil {
				return err
			}
		case <-submitDone:
			submitting = false
			submitDone = nil
		case <-timeoutC:
			remaining := int(atomic.LoadInt64(&submitted)) - received
			log.Warnf("No finished jobs after %s, stopping remaining %d jobs early", tailTimeout, remaining)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
