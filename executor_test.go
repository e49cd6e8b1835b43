package coffea

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumAcc is the accumulator used across executor tests. Fields are exported
// so it survives gob encoding.
type sumAcc struct {
	Total int64
}

func (a sumAcc) Merge(other sumAcc) sumAcc {
	return sumAcc{Total: a.Total + other.Total}
}

func sumUnit(ctx context.Context, item int64) (Result[sumAcc], error) {
	return Ok(sumAcc{Total: item}), nil
}

func TestIterativeExecutorEmpty(t *testing.T) {
	exec := NewIterativeExecutor[int64, sumAcc]()
	called := false
	out, err := exec.Execute(context.Background(), SequenceOf[int64](),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			called = true
			return Ok(sumAcc{}), nil
		}, sumAcc{Total: 5}, Options[sumAcc]{})
	require.NoError(t, err)
	assert.False(t, called, "unit function must not run for an empty sequence")
	assert.Equal(t, int64(5), out.Total)
}

func TestIterativeExecutorInOrder(t *testing.T) {
	exec := NewIterativeExecutor[int64, sumAcc]()
	var seen []int64
	out, err := exec.Execute(context.Background(), SequenceOf[int64](1, 2, 3, 4),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			seen = append(seen, item)
			return Ok(sumAcc{Total: item}), nil
		}, sumAcc{}, Options[sumAcc]{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, seen)
	assert.Equal(t, int64(10), out.Total)
}

func TestIterativeExecutorSkippedNotMerged(t *testing.T) {
	exec := NewIterativeExecutor[int64, sumAcc]()
	out, err := exec.Execute(context.Background(), SequenceOf[int64](1, 2, 3),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			if item == 2 {
				return Skip[sumAcc](errors.New("bad file")), nil
			}
			return Ok(sumAcc{Total: item}), nil
		}, sumAcc{}, Options[sumAcc]{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Total)
}

func TestIterativeExecutorError(t *testing.T) {
	exec := NewIterativeExecutor[int64, sumAcc]()
	boom := errors.New("boom")
	calls := 0
	_, err := exec.Execute(context.Background(), SequenceOf[int64](1, 2, 3),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			calls++
			if item == 2 {
				return Result[sumAcc]{}, boom
			}
			return Ok(sumAcc{Total: item}), nil
		}, sumAcc{}, Options[sumAcc]{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestIterativeExecutorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := NewIterativeExecutor[int64, sumAcc]()
	_, err := exec.Execute(ctx, SequenceOf[int64](1), sumUnit, sumAcc{}, Options[sumAcc]{})
	assert.ErrorIs(t, err, context.Canceled)
}

// resizeRecorder wraps a sequence and records width hints.
type resizeRecorder struct {
	Sequence[*WorkItem]
	mu    sync.Mutex
	hints []int64
}

func (r *resizeRecorder) Resize(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hints = append(r.hints, n)
}

func TestIterativeExecutorProposesResize(t *testing.T) {
	items := []*WorkItem{
		{Filename: "a.root", EntryStart: 0, EntryStop: 1000},
		{Filename: "a.root", EntryStart: 1000, EntryStop: 2000},
	}
	rec := &resizeRecorder{Sequence: SequenceOf(items...)}

	exec := NewIterativeExecutor[*WorkItem, sumAcc]()
	_, err := exec.Execute(context.Background(), rec,
		func(ctx context.Context, wi *WorkItem) (Result[sumAcc], error) {
			time.Sleep(time.Millisecond)
			return Ok(sumAcc{Total: wi.Len()}), nil
		}, sumAcc{}, Options[sumAcc]{DynamicTarget: 10 * time.Millisecond})
	require.NoError(t, err)

	require.Len(t, rec.hints, 2)
	for _, h := range rec.hints {
		assert.Greater(t, h, int64(0))
	}
}

func TestOptionsBar(t *testing.T) {
	opts := Options[sumAcc]{}
	assert.Nil(t, opts.bar())

	opts = Options[sumAcc]{Status: true, Desc: "Processing", Unit: "chunk", ExpectedItems: 3}
	bar := opts.bar()
	require.NotNil(t, bar)
	assert.Equal(t, int64(3), bar.Total)
	bar.Finish()
}

func TestSequenceOf(t *testing.T) {
	seq := SequenceOf(1, 2)
	v, ok := seq.Next()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = seq.Next()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = seq.Next()
	assert.False(t, ok)
}
