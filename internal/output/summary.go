package output

import (
	"fmt"
	"io"
	"time"

	"github.com/PentesterFlow/AuthScope/pkg/pipeline"
)

// WriteSummary writes a short human-readable run summary, meant for stderr
// alongside the machine-readable JSON on stdout.
func WriteSummary(w io.Writer, result *pipeline.Result) {
	fmt.Fprintf(w, "Target:          %s\n", result.Target)
	if result.LoginPageResolved {
		fmt.Fprintf(w, "Login page:      %s (via %s)\n", result.LoginPageURL, result.LoginStrategy)
	} else {
		fmt.Fprintf(w, "Login page:      not found, used %s\n", result.LoginPageURL)
	}
	if result.LoginCallCaptured {
		fmt.Fprintf(w, "Login call:      %s %s\n", result.Capture.SelectedRequest.Method, result.Capture.SelectedRequest.URL)
		fmt.Fprintf(w, "Tokens:          %d\n", len(result.Capture.Tokens))
	} else {
		fmt.Fprintln(w, "Login call:      not captured")
	}
	fmt.Fprintf(w, "Endpoints found: %d (%d accessible, %d rejected)\n",
		result.EndpointsFound, result.Stats.AccessibleCount, result.Stats.RejectedCount)
	fmt.Fprintf(w, "Duration:        %s\n", result.Duration.Round(time.Millisecond))
}
