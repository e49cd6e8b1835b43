package coffea

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuturesExecutorMerges(t *testing.T) {
	items := make([]int64, 100)
	var want int64
	for i := range items {
		items[i] = int64(i)
		want += int64(i)
	}

	exec := NewFuturesExecutor[int64, sumAcc](4)
	out, err := exec.Execute(context.Background(), SequenceOf(items...), sumUnit,
		sumAcc{}, Options[sumAcc]{})
	require.NoError(t, err)
	assert.Equal(t, want, out.Total)
}

func TestFuturesExecutorCompressed(t *testing.T) {
	level := 1
	exec := NewFuturesExecutor[int64, sumAcc](4)
	out, err := exec.Execute(context.Background(), SequenceOf[int64](1, 2, 3, 4), sumUnit,
		sumAcc{Total: 10}, Options[sumAcc]{Compression: &level})
	require.NoError(t, err)
	assert.Equal(t, int64(20), out.Total)
}

func TestFuturesExecutorEmpty(t *testing.T) {
	exec := NewFuturesExecutor[int64, sumAcc](4)
	out, err := exec.Execute(context.Background(), SequenceOf[int64](),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			t.Error("unit function must not run for an empty sequence")
			return Ok(sumAcc{}), nil
		}, sumAcc{Total: 3}, Options[sumAcc]{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
}

func TestFuturesExecutorSkippedNotMerged(t *testing.T) {
	exec := NewFuturesExecutor[int64, sumAcc](2)
	out, err := exec.Execute(context.Background(), SequenceOf[int64](1, 2, 3, 4),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			if item%2 == 0 {
				return Skip[sumAcc](errors.New("bad file")), nil
			}
			return Ok(sumAcc{Total: item}), nil
		}, sumAcc{}, Options[sumAcc]{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Total)
}

func TestFuturesExecutorError(t *testing.T) {
	boom := errors.New("boom")
	exec := NewFuturesExecutor[int64, sumAcc](2)
	_, err := exec.Execute(context.Background(), SequenceOf[int64](1, 2, 3),
		func(ctx context.Context, item int64) (Result[sumAcc], error) {
			if item == 2 {
				return Result[sumAcc]{}, boom
			}
			return Ok(sumAcc{Total: item}), nil
		}, sumAcc{}, Options[sumAcc]{})
	assert.ErrorIs(t, err, boom)
}
