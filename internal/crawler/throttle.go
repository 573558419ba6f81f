package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/docs-crawler/internal/metrics"
)

// DomainThrottle enforces a minimum interval between requests to the same
// host and caps the number of in-flight requests across all hosts.
type DomainThrottle struct {
	interval time.Duration
	limit    int
	slots    *semaphore.Weighted

	mu    sync.Mutex
	hosts map[string]*domainState

	now func() time.Time
}

// domainState is only read or written while its gate is held.
type domainState struct {
	gate          chan struct{}
	lastRequestAt time.Time
}

// NewDomainThrottle builds a throttle. Non-positive limits fall back to one slot.
func NewDomainThrottle(interval time.Duration, concurrentLimit int) *DomainThrottle {
	if concurrentLimit <= 0 {
		concurrentLimit = 1
	}
	return &DomainThrottle{
		interval: interval,
		limit:    concurrentLimit,
		slots:    semaphore.NewWeighted(int64(concurrentLimit)),
		hosts:    make(map[string]*domainState),
		now:      time.Now,
	}
}

// Interval returns the minimum spacing between requests to one host.
func (t *DomainThrottle) Interval() time.Duration { return t.interval }

// Limit returns the global concurrency cap.
func (t *DomainThrottle) Limit() int { return t.limit }

// Acquire blocks until a global slot is free and the host's interval has
// elapsed. The returned permit holds the global slot until released. On
// cancellation nothing stays held.
func (t *DomainThrottle) Acquire(ctx context.Context, host string) (*Permit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("wait for concurrency slot: %w", err)
	}
	start := t.now()
	if err := t.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for concurrency slot: %w", err)
	}
	if err := t.waitTurn(ctx, normalizeHost(host)); err != nil {
		t.slots.Release(1)
		return nil, err
	}
	metrics.IncInFlight()
	metrics.ObserveThrottleWait(host, t.now().Sub(start))
	return &Permit{release: func() {
		metrics.DecInFlight()
		t.slots.Release(1)
	}}, nil
}

func (t *DomainThrottle) waitTurn(ctx context.Context, host string) error {
	state := t.state(host)
	select {
	case state.gate <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for host %s: %w", host, ctx.Err())
	}
	defer func() { <-state.gate }()

	if !state.lastRequestAt.IsZero() {
		if wait := t.interval - t.now().Sub(state.lastRequestAt); wait > 0 {
			if err := sleepContext(ctx, wait); err != nil {
				return fmt.Errorf("rate limit wait for host %s: %w", host, err)
			}
		}
	}
	// Recorded before the gate opens so the next waiter measures from here.
	state.lastRequestAt = t.now()
	return nil
}

func (t *DomainThrottle) state(host string) *domainState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.hosts[host]
	if !ok {
		state = &domainState{gate: make(chan struct{}, 1)}
		t.hosts[host] = state
	}
	return state
}

// Hosts returns the number of distinct hosts observed so far.
func (t *DomainThrottle) Hosts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hosts)
}

// Permit is a scoped hold on one global concurrency slot.
type Permit struct {
	once    sync.Once
	release func()
}

// Release returns the slot. Calling it more than once is a no-op.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
