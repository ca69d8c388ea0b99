package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/AuthScope/internal/logger"
)

// probeWebSocket verifies a ws:// or wss:// candidate by attempting the
// upgrade handshake instead of a GET. A completed handshake means the
// endpoint exists and accepts the session; a 401/403 handshake rejection
// means it exists but the session was refused. Anything else drops the
// candidate like any transient probe failure.
func (p *Prober) probeWebSocket(ctx context.Context, candidate Endpoint, headers map[string]string, wlog *logger.Logger) (Endpoint, bool) {
	dialer := websocket.Dialer{
		HandshakeTimeout: p.cfg.Timeout,
		// Same TLS behavior as the HTTP probes.
		TLSClientConfig: p.client.TLSConfig(),
	}

	reqHeader := make(http.Header, len(headers))
	for k, v := range headers {
		reqHeader.Set(k, v)
	}

	start := time.Now()
	conn, resp, err := dialer.DialContext(ctx, candidate.URL, reqHeader)

	status := 0
	if resp != nil {
		status = resp.StatusCode
		resp.Body.Close()
	}

	if err == nil {
		conn.Close()
		accessible := true
		candidate.Tested = true
		candidate.Accessible = &accessible
		candidate.StatusCode = &status
		wlog.ProbeEvent("WEBSOCKET", candidate.URL, status, true, time.Since(start))
		return candidate, true
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		accessible := false
		candidate.Tested = true
		candidate.Accessible = &accessible
		candidate.StatusCode = &status
		wlog.ProbeEvent("WEBSOCKET", candidate.URL, status, true, time.Since(start))
		return candidate, true
	}

	wlog.ProbeEvent("WEBSOCKET", candidate.URL, status, false, time.Since(start))
	return candidate, false
}
