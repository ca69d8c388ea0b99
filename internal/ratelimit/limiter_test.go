package ratelimit

import (
	"context"
	"testing"
	"time"
)

// ===== Limiter Tests =====

func TestLimiterAllowWithinBurst(t *testing.T) {
	l := NewLimiter(10, 5)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("expected burst of 5 allowed, got %d", allowed)
	}
}

func TestLimiterUnlimitedWhenRateNonPositive(t *testing.T) {
	l := NewLimiter(0, 1)

	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("unlimited limiter denied a request")
		}
	}
}

func TestLimiterWaitRespectsCancellation(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Allow() // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("expected context error from Wait on drained bucket")
	}
}

func TestLimiterWaitHostCreatesBucket(t *testing.T) {
	l := NewLimiter(100, 10)

	ctx := context.Background()
	if err := l.WaitHost(ctx, "a.test"); err != nil {
		t.Fatalf("WaitHost: %v", err)
	}
	if err := l.WaitHost(ctx, "b.test"); err != nil {
		t.Fatalf("WaitHost: %v", err)
	}

	if got := l.Stats().HostCount; got != 2 {
		t.Errorf("expected 2 host buckets, got %d", got)
	}
}

func TestLimiterSetRate(t *testing.T) {
	l := NewLimiter(1, 1)
	l.SetRate(1000, 100)

	allowed := 0
	for i := 0; i < 100; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed < 50 {
		t.Errorf("expected raised rate to allow most requests, got %d", allowed)
	}
}

func TestSleepContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := SleepContext(ctx, time.Second); err == nil {
		t.Error("expected cancellation error")
	}
}
