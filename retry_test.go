package coffea

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describeString(s string) string { return s }

func TestWrapRetriesSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	fn := wrapRetries(func(ctx context.Context, item string) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("flaky")
		}
		return 7, nil
	}, 3, false, describeString)

	res, err := fn(context.Background(), "item")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 7, res.Value)
	assert.Equal(t, 3, attempts)
}

func TestWrapRetriesExhausted(t *testing.T) {
	attempts := 0
	fn := wrapRetries(func(ctx context.Context, item string) (int, error) {
		attempts++
		return 0, errors.New("broken")
	}, 1, false, describeString)

	_, err := fn(context.Background(), "a.root (0-100)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed processing a.root (0-100)")
	assert.Equal(t, 2, attempts)
}

func TestWrapRetriesSkipsBadFile(t *testing.T) {
	attempts := 0
	fn := wrapRetries(func(ctx context.Context, item string) (int, error) {
		attempts++
		return 0, IOErrorf("cannot open %s", item)
	}, 1, true, describeString)

	res, err := fn(context.Background(), "a.root")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "cannot open a.root")
	assert.Equal(t, 2, attempts)
}

func TestWrapRetriesIOWithoutSkipFailsFast(t *testing.T) {
	attempts := 0
	fn := wrapRetries(func(ctx context.Context, item string) (int, error) {
		attempts++
		return 0, IOErrorf("cannot open %s", item)
	}, 5, false, describeString)

	_, err := fn(context.Background(), "a.root")
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.Equal(t, 1, attempts)
}

func TestWrapRetriesAuthNeverSkipped(t *testing.T) {
	attempts := 0
	fn := wrapRetries(func(ctx context.Context, item string) (int, error) {
		attempts++
		return 0, NewAuthError(errors.New("certificate expired"))
	}, 5, true, describeString)

	_, err := fn(context.Background(), "a.root")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 1, attempts)
}

func TestWrapRetriesWrappedIOErrorDetected(t *testing.T) {
	// Classification must survive wrapping.
	wrapped := func(ctx context.Context, item string) (int, error) {
		return 0, errors.Join(errors.New("while reading"), IOErrorf("disk gone"))
	}
	fn := wrapRetries(wrapped, 0, true, describeString)

	res, err := fn(context.Background(), "a.root")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestWrapRetriesContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn := wrapRetries(func(ctx context.Context, item string) (int, error) {
		t.Fatal("unit must not run on a canceled context")
		return 0, nil
	}, 0, false, describeString)

	_, err := fn(ctx, "a.root")
	assert.ErrorIs(t, err, context.Canceled)
}
