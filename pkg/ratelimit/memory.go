package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a single-process fixed-window limiter. Construct it with
// NewMemoryLimiter, which starts the background sweep; call Stop on shutdown.
type MemoryLimiter struct {
	opts    Options
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates the limiter and starts its sweep goroutine.
func NewMemoryLimiter(opts Options) *MemoryLimiter {
	return newMemoryLimiter(opts, time.Now)
}

func newMemoryLimiter(opts Options, now func() time.Time) *MemoryLimiter {
	l := &MemoryLimiter{
		opts:    opts.normalized(),
		now:     now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Check records a request for key and reports whether it is admitted.
func (l *MemoryLimiter) Check(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.opts.Window)}
		return Decision{Allowed: true}, nil
	}

	if e.count >= l.opts.MaxRequests {
		return Decision{Allowed: false, RetryAfter: retryAfterSeconds(e.resetAt.Sub(now))}, nil
	}

	e.count++
	return Decision{Allowed: true}, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes every entry whose window has elapsed.
func (l *MemoryLimiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
		}
	}
}

// Stop halts the sweep goroutine. It is safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
}

func (l *MemoryLimiter) sweepLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}
