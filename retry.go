package coffea

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Result is the typed outcome of one unit of work after the retry and skip
// policy has been applied: either a value to merge, or a skipped unit that
// is dropped from the logical result.
type Result[A any] struct {
	Value   A
	Skipped bool
	Reason  string
}

// Ok wraps a successful unit value.
func Ok[A any](v A) Result[A] {
	return Result[A]{Value: v}
}

// Skip marks a unit as dropped, recording why.
func Skip[A any](reason error) Result[A] {
	r := Result[A]{Skipped: true}
	if reason != nil {
		r.Reason = reason.Error()
	}
	return r
}

// UnitFunc is the function an executor applies to every input.
type UnitFunc[T, A any] func(ctx context.Context, item T) (Result[A], error)

// wrapRetries applies bounded retry and optional skip semantics to a unit
// function. Each retry is a full re-attempt of the unit. describe labels the
// unit in warnings and error context.
//
// I/O-class failures propagate immediately when skipping is disabled or the
// failure is an authentication failure; otherwise they are retried and, once
// attempts are exhausted, skipped with a warning. Any other failure is
// retried identically and, on the final attempt, propagated with the unit's
// identifying context appended.
func wrapRetries[T, A any](fn func(ctx context.Context, item T) (A, error), retries int, skipBadFiles bool, describe func(T) string) UnitFunc[T, A] {
	if retries < 0 {
		retries = 0
	}
	return func(ctx context.Context, item T) (Result[A], error) {
		for attempt := 0; ; attempt++ {
			if err := ctx.Err(); err != nil {
				return Result[A]{}, err
			}
			out, err := fn(ctx, item)
			if err == nil {
				return Ok(out), nil
			}

			if IsAuthError(err) || (IsIOError(err) && !skipBadFiles) {
				return Result[A]{}, err
			}
			if IsIOError(err) {
				warning := fmt.Sprintf("Bad file source %s.", describe(item))
				if retries > 0 {
					warning += fmt.Sprintf(" Attempt %d of %d.", attempt+1, retries+1)
				}
				if attempt < retries {
					log.Warnf("%s Will retry.", warning)
					continue
				}
				log.Warnf("%s Skipping.", warning)
				return Skip[A](err), nil
			}

			if attempt < retries {
				log.Warnf("Attempt %d of %d. Will retry.", attempt+1, retries+1)
				continue
			}
			return Result[A]{}, fmt.Errorf("failed processing %s: %w", describe(item), err)
		}
	}
}
