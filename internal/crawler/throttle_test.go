package crawler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainThrottleSpacesSameHostRequests(t *testing.T) {
	t.Parallel()

	const (
		interval = 40 * time.Millisecond
		n        = 4
	)
	throttle := NewDomainThrottle(interval, n)

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			permit, err := throttle.Acquire(context.Background(), "docs.example.com")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
			permit.Release()
		}()
	}
	wg.Wait()

	require.Len(t, times, n)
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(n-1)*interval)
	for i := 1; i < len(times); i++ {
		// Timestamps are taken after the gate opens, so allow scheduler slack.
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), interval-5*time.Millisecond)
	}
}

func TestDomainThrottleDoesNotDelayDifferentHosts(t *testing.T) {
	t.Parallel()

	throttle := NewDomainThrottle(time.Second, 3)
	start := time.Now()
	for _, host := range []string{"a.example", "b.example", "c.example"} {
		permit, err := throttle.Acquire(context.Background(), host)
		require.NoError(t, err)
		permit.Release()
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 3, throttle.Hosts())
}

func TestDomainThrottleHostKeyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	throttle := NewDomainThrottle(time.Millisecond, 1)
	for _, host := range []string{"Docs.Example.com", "docs.example.com"} {
		permit, err := throttle.Acquire(context.Background(), host)
		require.NoError(t, err)
		permit.Release()
	}
	assert.Equal(t, 1, throttle.Hosts())
}

func TestDomainThrottleCapsGlobalConcurrency(t *testing.T) {
	t.Parallel()

	throttle := NewDomainThrottle(time.Millisecond, 2)
	p1, err := throttle.Acquire(context.Background(), "a.example")
	require.NoError(t, err)
	p2, err := throttle.Acquire(context.Background(), "b.example")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = throttle.Acquire(ctx, "c.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p1.Release()
	p3, err := throttle.Acquire(context.Background(), "c.example")
	require.NoError(t, err)
	p2.Release()
	p3.Release()
}

func TestDomainThrottleCancellationReleasesEverything(t *testing.T) {
	t.Parallel()

	throttle := NewDomainThrottle(time.Hour, 2)
	first, err := throttle.Acquire(context.Background(), "slow.example")
	require.NoError(t, err)
	first.Release()

	// The second request to the host must wait an hour; cancel it.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = throttle.Acquire(ctx, "slow.example")
	require.Error(t, err)

	// Both slots must be free again.
	a, err := throttle.Acquire(context.Background(), "a.example")
	require.NoError(t, err)
	b, err := throttle.Acquire(context.Background(), "b.example")
	require.NoError(t, err)
	a.Release()
	b.Release()

	// The host gate must not be stuck either: a canceled waiter behind the
	// interval fails on its own deadline rather than blocking forever.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = throttle.Acquire(ctx2, "slow.example")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPermitReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	throttle := NewDomainThrottle(time.Millisecond, 1)
	permit, err := throttle.Acquire(context.Background(), "a.example")
	require.NoError(t, err)
	require.NotPanics(t, func() {
		permit.Release()
		permit.Release()
	})

	var nilPermit *Permit
	require.NotPanics(t, nilPermit.Release)
}
