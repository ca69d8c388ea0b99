// Package browser provides the driver contract the pipeline scripts logins
// through, plus a headless Chrome implementation via Rod.
package browser

import (
	"context"
	"net/http"
	"time"
)

// EventKind distinguishes request and response records in the capture log.
type EventKind string

const (
	EventRequest  EventKind = "request"
	EventResponse EventKind = "response"
)

// RawEvent is one low-level network event observed while a scripted login
// executes. Request and response events referring to the same exchange
// share an ID.
type RawEvent struct {
	ID        string
	Kind      EventKind
	URL       string
	Method    string
	Headers   map[string]string
	Body      string
	Status    int
	MimeType  string
	Timestamp time.Time
}

// Driver is the control surface over a real browser session. The pipeline
// owns a driver exclusively for the locate+capture stages and releases it
// before probing begins. Implementations are not safe for concurrent use.
type Driver interface {
	// Navigate loads a URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// SetExtraHeaders applies headers to every request the page issues.
	// Must be called before Navigate.
	SetExtraHeaders(headers map[string]string) error

	// SetCookies seeds the session with cookies before navigation, for
	// targets that gate the login page behind consent or tenant cookies.
	SetCookies(cookies []*http.Cookie) error

	// FillField focuses the element matching the CSS selector, clears it,
	// and types the value.
	FillField(selector, value string) error

	// Click clicks the element matching the CSS selector.
	Click(selector string) error

	// PressEnter sends an Enter keystroke to the element matching the
	// selector. Used when a form has no clickable submit control.
	PressEnter(selector string) error

	// EnableNetworkCapture starts recording protocol-level network events.
	EnableNetworkCapture() error

	// CaptureLog returns the events recorded since capture was enabled.
	CaptureLog() []RawEvent

	// ExecuteScript evaluates JavaScript in the page and returns the
	// result serialized as JSON.
	ExecuteScript(code string) (string, error)

	// HTML returns the current DOM serialized to HTML.
	HTML() (string, error)

	// CurrentURL returns the page URL after any redirects.
	CurrentURL() string

	// Cookies returns the session cookies currently held by the browser.
	Cookies() ([]*http.Cookie, error)

	// Close releases the browser session. Safe to call more than once.
	Close() error
}

// Config defines browser configuration.
type Config struct {
	Headless          bool          `json:"headless" yaml:"headless"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	// SettleDelay is how long to wait after submit for late XHR traffic
	// before reading the capture log.
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Timeout:           15 * time.Second,
		UserAgent:         "AuthScope/1.0 (Security Scanner)",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
		SettleDelay:       2 * time.Second,
	}
}
