// Package shutdown coordinates graceful teardown of the discovery CLI:
// browser sessions, the endpoint store, and output writers all register
// cleanup callbacks here.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback is a cleanup function run during shutdown.
type Callback func(ctx context.Context) error

// Handler manages graceful shutdown.
type Handler struct {
	mu    sync.Mutex
	names []string
	cbs   []Callback

	shuttingDown atomic.Bool
	done         chan struct{}
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a shutdown handler and starts listening for signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	go h.wait()

	return h
}

// NewDefault creates a handler with default configuration.
func NewDefault() *Handler {
	return New(DefaultConfig())
}

// Register registers a named cleanup callback. Callbacks run in reverse
// registration order, like defers.
func (h *Handler) Register(name string, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names = append(h.names, name)
	h.cbs = append(h.cbs, cb)
}

// RegisterFunc registers a cleanup function with no error or context.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled when shutdown begins. Long-running work should run
// under it.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown reports whether shutdown has started.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Done is closed when shutdown completes.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

func (h *Handler) wait() {
	select {
	case <-h.sigChan:
		h.Shutdown()
	case <-h.ctx.Done():
	}
}

// Shutdown cancels the context and runs callbacks in reverse order, each
// bounded by the shutdown timeout. Safe to call more than once.
func (h *Handler) Shutdown() []error {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return nil
	}

	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	cbs := make([]Callback, len(h.cbs))
	names := make([]string, len(h.names))
	copy(cbs, h.cbs)
	copy(names, h.names)
	h.mu.Unlock()

	var errs []error
	for i := len(cbs) - 1; i >= 0; i-- {
		if err := runCallback(ctx, names[i], cbs[i]); err != nil {
			errs = append(errs, err)
		}
	}

	close(h.done)
	return errs
}

// Trigger initiates shutdown programmatically, as if a signal arrived.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

func runCallback(ctx context.Context, name string, cb Callback) error {
	done := make(chan error, 1)
	go func() {
		done <- cb(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// TimeoutError is returned when a callback outlives the shutdown timeout.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
