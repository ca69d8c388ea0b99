// Package capture parses the browser's network event log and selects the
// one request that is the application's real login call.
package capture

import (
	"net/http"
	"time"
)

// CapturedRequest is one network request observed during the scripted
// login. Never mutated after creation.
type CapturedRequest struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CapturedResponse is the response correlated to a CapturedRequest by ID.
// A request without a response is valid (fire-and-forget).
type CapturedResponse struct {
	RequestID  string            `json:"request_id"`
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	BodySample string            `json:"body_sample,omitempty"`
}

// ScoredCandidate is a request under evaluation. Ephemeral: it exists only
// during selection and never outlives the selection step.
type ScoredCandidate struct {
	Request CapturedRequest
	Score   int
	Reasons []string
}

// LoginCapture is the pipeline's capture-stage output: the selected login
// request plus every token visible in the exchange.
type LoginCapture struct {
	SelectedRequest CapturedRequest   `json:"selected_request"`
	Tokens          map[string]string `json:"tokens"`
	Cookies         []*http.Cookie    `json:"cookies"`
}

// bodySampleLimit bounds how much response body is retained per record.
const bodySampleLimit = 16 * 1024
