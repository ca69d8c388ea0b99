package pipeline

import (
	"time"

	"github.com/PentesterFlow/AuthScope/internal/capture"
	"github.com/PentesterFlow/AuthScope/internal/probe"
)

// Result is the complete output of one discovery run.
type Result struct {
	// Target is the URL discovery started from.
	Target string `json:"target"`

	// LoginPageURL is the resolved login page, or the target itself when
	// no strategy resolved one.
	LoginPageURL string `json:"login_page_url"`

	// LoginPageResolved reports whether a location strategy succeeded.
	LoginPageResolved bool `json:"login_page_resolved"`

	// LoginStrategy names the strategy that found the page.
	LoginStrategy string `json:"login_strategy,omitempty"`

	// LoginCallCaptured reports whether a genuine login API call was
	// identified in the network capture.
	LoginCallCaptured bool `json:"login_call_captured"`

	// Capture holds the selected login request and extracted tokens.
	// Nil when LoginCallCaptured is false.
	Capture *capture.LoginCapture `json:"capture,omitempty"`

	// Endpoints are the discovered API endpoints.
	Endpoints []probe.Endpoint `json:"endpoints"`

	// EndpointsFound is len(Endpoints), kept explicit for consumers that
	// only read the summary.
	EndpointsFound int `json:"endpoints_found"`

	Stats Stats `json:"stats"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Stats summarizes run activity.
type Stats struct {
	RequestsCaptured  int `json:"requests_captured"`
	ObservedAPIShapes int `json:"observed_api_shapes"`
	EndpointsProbed   int `json:"endpoints_probed"`
	EndpointsFound    int `json:"endpoints_found"`
	AccessibleCount   int `json:"accessible_count"`
	RejectedCount     int `json:"rejected_count"`
}
