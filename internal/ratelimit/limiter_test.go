package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	l := New(1)
	ctx := context.Background()

	p1, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, ok := l.TryAcquire()
	assert.False(t, ok, "second acquire should fail while capacity is exhausted")

	p1.Release()

	p2, ok := l.TryAcquire()
	require.True(t, ok, "acquire should succeed once the permit is released")
	p2.Release()
}

func TestLimiterCapsConcurrency(t *testing.T) {
	const capacity = 3
	l := New(capacity)

	var inFlight int32
	var maxObserved int32
	done := make(chan struct{})

	for i := 0; i < 20; i++ {
		go func() {
			permit, err := l.Acquire(context.Background())
			require.NoError(t, err)
			defer permit.Release()

			cur := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxObserved)
				if cur <= max || atomic.CompareAndSwapInt32(&maxObserved, max, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			done <- struct{}{}
		}()
	}

	for i := 0; i < 20; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(capacity))
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New(1)
	ctx := context.Background()

	permit, err := l.Acquire(ctx)
	require.NoError(t, err)
	defer permit.Release()

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(cancelCtx)
	assert.Error(t, err)
}
