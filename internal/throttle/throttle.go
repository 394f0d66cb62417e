// Package throttle bounds in-flight concurrency with a semaphore whose
// capacity adapts at runtime: sustained healthy latency raises it one slot at
// a time, rate-limit feedback halves it. Capacity changes take effect on the
// next acquire; slots already held are never revoked.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Config bounds the adaptive behavior.
type Config struct {
	Initial int
	Min     int
	Max     int
	// HealthyLatency is the per-operation latency below which a success
	// counts toward the raise streak.
	HealthyLatency time.Duration
	// RaiseStreak is the number of consecutive healthy successes required
	// before capacity grows by one.
	RaiseStreak int
}

// Defaults for unset Config fields.
const (
	DefaultInitial        = 4
	DefaultMin            = 1
	DefaultMax            = 16
	DefaultHealthyLatency = 500 * time.Millisecond
	DefaultRaiseStreak    = 10
)

func (c Config) withDefaults() Config {
	if c.Min <= 0 {
		c.Min = DefaultMin
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.Initial <= 0 {
		c.Initial = DefaultInitial
	}
	if c.Initial < c.Min {
		c.Initial = c.Min
	}
	if c.Initial > c.Max {
		c.Initial = c.Max
	}
	if c.HealthyLatency <= 0 {
		c.HealthyLatency = DefaultHealthyLatency
	}
	if c.RaiseStreak <= 0 {
		c.RaiseStreak = DefaultRaiseStreak
	}
	return c
}

// Metrics is a point-in-time snapshot of throttle state.
type Metrics struct {
	Capacity     int
	InFlight     int
	AvgLatencyMs float64
	Acquired     int64
	Successes    int64
	Failures     int64
	RateLimits   int64
	Raises       int64
	Halves       int64
}

// Throttle is safe for concurrent use.
type Throttle struct {
	cfg Config

	mu         sync.Mutex
	capacity   int
	inFlight   int
	streak     int
	avgLatency float64 // EWMA, milliseconds
	acquired   int64
	successes  int64
	failures   int64
	rateLimits int64
	raises     int64
	halves     int64
	// waitCh is closed and replaced whenever a slot frees or capacity
	// rises, waking every waiter to re-check.
	waitCh chan struct{}
}

// ewmaAlpha weights recent latency samples.
const ewmaAlpha = 0.3

// New returns a throttle with capacity cfg.Initial clamped to [Min, Max].
func New(cfg Config) *Throttle {
	cfg = cfg.withDefaults()
	return &Throttle{
		cfg:      cfg,
		capacity: cfg.Initial,
		waitCh:   make(chan struct{}),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (t *Throttle) Acquire(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.inFlight < t.capacity {
			t.inFlight++
			t.acquired++
			t.mu.Unlock()
			return nil
		}
		wait := t.waitCh
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Release frees a slot. Must pair with a successful Acquire.
func (t *Throttle) Release() {
	t.mu.Lock()
	if t.inFlight > 0 {
		t.inFlight--
	}
	t.wakeLocked()
	t.mu.Unlock()
}

// RecordSuccess feeds one completed operation's latency into the moving
// average and advances the raise streak.
func (t *Throttle) RecordSuccess(latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.successes++
	if t.avgLatency == 0 {
		t.avgLatency = ms
	} else {
		t.avgLatency = ewmaAlpha*ms + (1-ewmaAlpha)*t.avgLatency
	}

	if latency <= t.cfg.HealthyLatency && t.avgLatency <= float64(t.cfg.HealthyLatency)/float64(time.Millisecond) {
		t.streak++
		if t.streak >= t.cfg.RaiseStreak && t.capacity < t.cfg.Max {
			t.capacity++
			t.raises++
			t.streak = 0
			t.wakeLocked()
		}
	} else {
		t.streak = 0
	}
}

// RecordFailure counts a failed operation. A rate-limit failure halves
// capacity, floored at the configured minimum.
func (t *Throttle) RecordFailure(isRateLimit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures++
	t.streak = 0
	if !isRateLimit {
		return
	}
	t.rateLimits++
	next := t.capacity / 2
	if next < t.cfg.Min {
		next = t.cfg.Min
	}
	if next != t.capacity {
		t.capacity = next
		t.halves++
	}
}

// Capacity returns the current slot count.
func (t *Throttle) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity
}

// Metrics returns a snapshot of counters and state.
func (t *Throttle) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		Capacity:     t.capacity,
		InFlight:     t.inFlight,
		AvgLatencyMs: t.avgLatency,
		Acquired:     t.acquired,
		Successes:    t.successes,
		Failures:     t.failures,
		RateLimits:   t.rateLimits,
		Raises:       t.raises,
		Halves:       t.halves,
	}
}

func (t *Throttle) wakeLocked() {
	close(t.waitCh)
	t.waitCh = make(chan struct{})
}
