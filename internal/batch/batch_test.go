package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestRun_AllSucceed(t *testing.T) {
	var sum atomic.Int64
	s := Run(context.Background(), Options{Limit: 4}, ints(100), func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})

	assert.Equal(t, 100, s.Total)
	assert.Equal(t, 100, s.Processed)
	assert.Zero(t, s.Failed)
	assert.NoError(t, s.Err())
	assert.Equal(t, int64(4950), sum.Load())
}

func TestRun_IsolatesFailuresAndPanics(t *testing.T) {
	s := Run(context.Background(), Options{Limit: 3}, ints(10), func(_ context.Context, n int) error {
		switch {
		case n == 3:
			return fmt.Errorf("item %d: boom", n)
		case n == 5:
			panic("bad row")
		case n%4 == 0:
			return ErrSkip
		}
		return nil
	})

	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 3, s.Skipped) // 0, 4, 8
	assert.Equal(t, 5, s.Processed)
	require.Error(t, s.Err())
	assert.Len(t, s.ErrorStrings(), 2)
	assert.Contains(t, s.Err().Error(), "boom")
	assert.Contains(t, s.Err().Error(), "panic: bad row")
}

func TestRun_CapsErrorSamples(t *testing.T) {
	s := Run(context.Background(), Options{Limit: 2, MaxErrors: 3}, ints(10), func(context.Context, int) error {
		return errors.New("nope")
	})

	assert.Equal(t, 10, s.Failed)
	assert.Len(t, s.Errors, 3)
}

func TestRun_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	Run(context.Background(), Options{Limit: 3}, ints(30), func(context.Context, int) error {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32

	s := Run(ctx, Options{Limit: 1}, ints(10), func(context.Context, int) error {
		if started.Add(1) == 2 {
			cancel()
		}
		return nil
	})

	assert.Equal(t, 10, s.Total)
	assert.Equal(t, s.Total, s.Processed+s.Canceled)
	assert.Greater(t, s.Canceled, 0)
}

func TestRun_Empty(t *testing.T) {
	s := Run(context.Background(), Options{}, []string(nil), func(context.Context, string) error {
		t.Fatal("must not be called")
		return nil
	})
	assert.Zero(t, s.Total)
	assert.NoError(t, s.Err())
}
