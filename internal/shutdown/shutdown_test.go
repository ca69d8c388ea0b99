package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// ===== Shutdown Handler Tests =====

func TestShutdownRunsCallbacksInReverseOrder(t *testing.T) {
	h := New(Config{Timeout: time.Second})

	var order []string
	h.RegisterFunc("first", func() { order = append(order, "first") })
	h.RegisterFunc("second", func() { order = append(order, "second") })
	h.RegisterFunc("third", func() { order = append(order, "third") })

	h.Shutdown()

	if len(order) != 3 || order[0] != "third" || order[2] != "first" {
		t.Errorf("callback order = %v, want reverse registration order", order)
	}
}

func TestShutdownCancelsContext(t *testing.T) {
	h := New(Config{Timeout: time.Second})

	ctx := h.Context()
	h.Shutdown()

	select {
	case <-ctx.Done():
	default:
		t.Error("context should be cancelled after shutdown")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	h := New(Config{Timeout: time.Second})

	var calls atomic.Int32
	h.RegisterFunc("counter", func() { calls.Add(1) })

	h.Shutdown()
	h.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("callback ran %d times, want 1", calls.Load())
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	h := New(Config{Timeout: time.Second})

	h.Register("ok", func(context.Context) error { return nil })
	h.Register("fail", func(context.Context) error { return errors.New("cleanup failed") })

	errs := h.Shutdown()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestShutdownTimesOutStuckCallback(t *testing.T) {
	h := New(Config{Timeout: 100 * time.Millisecond})

	h.Register("stuck", func(context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	})

	start := time.Now()
	errs := h.Shutdown()
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("shutdown took %v, should be bounded by timeout", elapsed)
	}
	if len(errs) != 1 {
		t.Fatalf("expected timeout error, got %v", errs)
	}
	var te *TimeoutError
	if !errors.As(errs[0], &te) || te.CallbackName != "stuck" {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestTriggerInitiatesShutdown(t *testing.T) {
	h := New(Config{Timeout: time.Second})

	var ran atomic.Bool
	h.RegisterFunc("cleanup", func() { ran.Store(true) })

	h.Trigger()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete after trigger")
	}
	if !ran.Load() {
		t.Error("callback did not run")
	}
	if !h.IsShuttingDown() {
		t.Error("IsShuttingDown should be true")
	}
}
