package coffea

import (
	"context"
	"runtime"
	"time"

	pb "gopkg.in/cheggaaa/pb.v1"
)

// Sequence is a pull-based stream of work inputs.
type Sequence[T any] interface {
	Next() (item T, ok bool)
}

// Resizable is implemented by sequences that accept a width hint for the
// next unit they produce.
type Resizable interface {
	Resize(n int64)
}

// Sized is implemented by inputs that know their own entry count; dynamic
// resizing needs it to relate walltime to width.
type Sized interface {
	Len() int64
}

type sliceSequence[T any] struct {
	items []T
	idx   int
}

// SequenceOf adapts a fixed set of items into a Sequence.
func SequenceOf[T any](items ...T) Sequence[T] {
	return &sliceSequence[T]{items: items}
}

func (s *sliceSequence[T]) Next() (T, bool) {
	if s.idx >= len(s.items) {
		var zero T
		return zero, false
	}
	item := s.items[s.idx]
	s.idx++
	return item, true
}

// Options configure a single executor invocation. Backends ignore options
// they have no use for.
type Options[A any] struct {
	// Status enables progress reporting; Unit and Desc label it.
	Status bool
	Unit   string
	Desc   string
	// Compression is the in-flight compression level; nil disables.
	Compression *int
	// Codec serializes outcomes for compression and remote dispatch.
	// Defaults to gob.
	Codec Codec[Result[A]]
	// TailTimeout cancels the remaining operations when no completion
	// arrives for this long. Zero disables.
	TailTimeout time.Duration
	// Workers is the degree of parallelism; defaults to NumCPU.
	Workers int
	// TreeReduction is the branching factor for fan-in reduction trees.
	TreeReduction int
	// DynamicTarget is the walltime to aim for per unit when the input
	// sequence accepts resize hints. Zero disables.
	DynamicTarget time.Duration
	// ExpectedItems sizes the progress bar; zero when unknown.
	ExpectedItems int
}

func (o Options[A]) codec() Codec[Result[A]] {
	if o.Codec != nil {
		return o.Codec
	}
	return GobCodec[Result[A]]{}
}

func (o Options[A]) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

func (o Options[A]) bar() *pb.ProgressBar {
	if !o.Status {
		return nil
	}
	bar := pb.New(o.ExpectedItems)
	if o.Desc != "" {
		bar.Prefix(o.Desc)
	}
	if o.Unit != "" {
		bar.Postfix(" " + o.Unit)
	}
	return bar.Start()
}

// Executor dispatches a sequence of inputs through a unit function and
// merges the outcomes into a seed accumulator. An empty sequence returns the
// seed unchanged without invoking the function; merge order is unspecified,
// which is safe because Merge is associative.
type Executor[T any, A Accumulatable[A]] interface {
	Execute(ctx context.Context, items Sequence[T], fn UnitFunc[T, A], acc A, opts Options[A]) (A, error)
}

// inOrder marks executors that process items strictly in submission order;
// only those may drive dynamic chunk resizing.
type inOrder interface {
	InOrder() bool
}

// IterativeExecutor processes items one at a time, in order, on the calling
// goroutine. Compression options are ignored: results never leave the
// process.
type IterativeExecutor[T any, A Accumulatable[A]] struct{}

// NewIterativeExecutor builds the sequential executor.
func NewIterativeExecutor[T any, A Accumulatable[A]]() *IterativeExecutor[T, A] {
	return &IterativeExecutor[T, A]{}
}

// InOrder reports that items are processed in submission order.
func (e *IterativeExecutor[T, A]) InOrder() bool { return true }

func (e *IterativeExecutor[T, A]) Execute(ctx context.Context, items Sequence[T], fn UnitFunc[T, A], acc A, opts Options[A]) (A, error) {
	bar := opts.bar()
	for {
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		item, ok := items.Next()
		if !ok {
			break
		}
		started := time.Now()
		res, err := fn(ctx, item)
		if err != nil {
			return acc, err
		}
		if bar != nil {
			bar.Increment()
		}
		if !res.Skipped {
			acc = acc.Merge(res.Value)
		}
		if opts.DynamicTarget > 0 {
			proposeResize(items, item, time.Since(started), opts.DynamicTarget)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return acc, nil
}

// proposeResize feeds a width hint back to the input sequence so the next
// unit approaches the target walltime. The proposal is dampened against the
// current width to avoid thrash.
func proposeResize[T any](items Sequence[T], item T, elapsed, target time.Duration) {
	rs, ok := items.(Resizable)
	if !ok {
		return
	}
	sized, ok := any(item).(Sized)
	if !ok {
		return
	}
	n := sized.Len()
	if n <= 0 || elapsed <= 0 {
		return
	}
	proposal := int64(float64(n) * target.Seconds() / elapsed.Seconds())
	if proposal < 1 {
		proposal = 1
	}
	rs.Resize((n + proposal) / 2)
}
