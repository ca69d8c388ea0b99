// Package ratelimit paces outgoing probe traffic.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket limiter shared by all probe workers. A global
// bucket caps total request rate; per-host buckets keep one slow target
// from absorbing the whole budget.
type Limiter struct {
	mu           sync.RWMutex
	global       *rate.Limiter
	perHost      map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond with the given
// burst size. A non-positive rate means unlimited.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		global:       rate.NewLimiter(limit, burst),
		perHost:      make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until a request is allowed or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.globalLimiter().Wait(ctx)
}

// WaitHost blocks on the global bucket and then on the host's own bucket.
func (l *Limiter) WaitHost(ctx context.Context, host string) error {
	if err := l.globalLimiter().Wait(ctx); err != nil {
		return err
	}
	return l.hostLimiter(host).Wait(ctx)
}

// Allow reports whether a request is allowed right now without blocking.
func (l *Limiter) Allow() bool {
	return l.globalLimiter().Allow()
}

// SetRate updates the global rate. Existing host buckets keep their rate.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// A fresh limiter starts with a full bucket. SetLimit/SetBurst would
	// carry the old token count over and starve the first burst at the new
	// rate.
	l.global = rate.NewLimiter(limit, burst)
	l.defaultRate = limit
	l.defaultBurst = burst
}

func (l *Limiter) globalLimiter() *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.global
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	hl, ok := l.perHost[host]
	l.mu.RUnlock()
	if ok {
		return hl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if hl, ok = l.perHost[host]; ok {
		return hl
	}
	hl = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.perHost[host] = hl
	return hl
}

// Stats reports the limiter's current configuration.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		HostCount:    len(l.perHost),
		DefaultRate:  float64(l.defaultRate),
		DefaultBurst: l.defaultBurst,
	}
}

// Stats describes limiter configuration and per-host bucket count.
type Stats struct {
	HostCount    int     `json:"host_count"`
	DefaultRate  float64 `json:"default_rate"`
	DefaultBurst int     `json:"default_burst"`
}

// SleepContext waits for d or until ctx is cancelled, whichever is first.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
