// Package probe discovers authenticated API endpoints by probing a fixed
// path catalog and capture-observed URLs with the captured session.
package probe

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PentesterFlow/AuthScope/internal/dedup"
	"github.com/PentesterFlow/AuthScope/internal/httpclient"
	"github.com/PentesterFlow/AuthScope/internal/logger"
	"github.com/PentesterFlow/AuthScope/internal/ratelimit"
)

// Config controls prober concurrency and pacing.
type Config struct {
	// Workers is the number of concurrent probe workers.
	Workers int
	// Timeout bounds each individual probe.
	Timeout time.Duration
	// RequestsPerSecond caps total probe rate. Zero means unlimited.
	RequestsPerSecond float64
	// Burst for the rate limiter.
	Burst int
}

// DefaultConfig returns the prober defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           20,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 0,
		Burst:             10,
	}
}

// Credentials carries the session artifacts attached to every probe.
type Credentials struct {
	// Bearer is the full Authorization header value, e.g. "Bearer eyJ...".
	Bearer string
	// Cookie is the raw Cookie header value.
	Cookie string
}

// CredentialsFromTokens builds probe credentials from the capture stage's
// token map. A bare three-segment token gets the Bearer prefix; a value
// already carrying a scheme is used as is.
func CredentialsFromTokens(tokens map[string]string, cookies []*http.Cookie) Credentials {
	var creds Credentials

	if v := tokens["authorization_header"]; v != "" {
		creds.Bearer = v
	} else {
		for _, key := range []string{"access_token", "token", "jwt", "id_token"} {
			if v := tokens[key]; v != "" {
				creds.Bearer = "Bearer " + v
				break
			}
		}
	}
	if creds.Bearer != "" && !strings.Contains(creds.Bearer, " ") {
		creds.Bearer = "Bearer " + creds.Bearer
	}

	if len(cookies) > 0 {
		pairs := make([]string, 0, len(cookies))
		for _, c := range cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		creds.Cookie = strings.Join(pairs, "; ")
	} else if v := tokens["cookies"]; v != "" {
		creds.Cookie = v
	}

	return creds
}

func (c Credentials) headers() map[string]string {
	h := make(map[string]string, 2)
	if c.Bearer != "" {
		h["Authorization"] = c.Bearer
	}
	if c.Cookie != "" {
		h["Cookie"] = c.Cookie
	}
	return h
}

// Prober probes endpoint candidates concurrently with a shared session.
type Prober struct {
	client  *httpclient.Client
	engine  *dedup.Engine
	limiter *ratelimit.Limiter
	log     *logger.Logger
	cfg     Config
}

// New creates a prober. A nil engine gets a private dedup engine so the
// prober is usable standalone.
func New(client *httpclient.Client, engine *dedup.Engine, log *logger.Logger, cfg Config) *Prober {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if engine == nil {
		engine = dedup.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Prober{
		client:  client,
		engine:  engine,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		log:     log.WithComponent("probe"),
		cfg:     cfg,
	}
}

// Run probes the catalog plus observed URLs against the target and returns
// every endpoint that exists. Probe failures are dropped per candidate;
// cancellation stops new probes and returns what completed.
func (p *Prober) Run(ctx context.Context, targetURL string, creds Credentials, observed []string) []Endpoint {
	base, err := url.Parse(targetURL)
	if err != nil || base.Host == "" {
		return nil
	}

	candidates := CatalogCandidates(base)
	candidates = append(candidates, ObservedCandidates(base, observed)...)

	// Dedup on (method, url) before any probe goes out.
	unique := candidates[:0]
	for _, c := range candidates {
		if p.engine.Seen(c.Method + " " + c.URL) {
			continue
		}
		unique = append(unique, c)
	}

	headers := creds.headers()

	jobs := make(chan Endpoint)
	results := make(chan Endpoint, len(unique))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			wlog := p.log.WithWorker(worker)
			for candidate := range jobs {
				if ep, ok := p.probeOne(ctx, candidate, headers, wlog); ok {
					results <- ep
				}
			}
		}(i)
	}

	go func() {
	feed:
		for _, c := range unique {
			select {
			case jobs <- c:
			case <-ctx.Done():
				break feed
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	endpoints := make([]Endpoint, 0, len(unique))
	for ep := range results {
		endpoints = append(endpoints, ep)
	}

	p.log.Event(logger.InfoLevel).
		Int("candidates", len(unique)).
		Int("found", len(endpoints)).
		Msg("Endpoint discovery finished")

	return endpoints
}

// probeOne issues a single probe. The boolean is false when the endpoint
// should be discarded (errors, timeouts, non-existence statuses).
func (p *Prober) probeOne(ctx context.Context, candidate Endpoint, headers map[string]string, wlog *logger.Logger) (Endpoint, bool) {
	if err := p.limiter.Wait(ctx); err != nil {
		return candidate, false
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if isWebSocketURL(candidate.URL) {
		return p.probeWebSocket(pctx, candidate, headers, wlog)
	}

	start := time.Now()
	status, respHeaders, err := p.client.Probe(pctx, http.MethodGet, candidate.URL, headers)
	if err != nil {
		// Transient failure, drop the candidate and move on.
		wlog.Event(logger.DebugLevel).Str("url", candidate.URL).Err(err).Msg("Candidate dropped")
		return candidate, false
	}

	exists := status >= 200 && status < 300 || status == http.StatusUnauthorized || status == http.StatusForbidden
	wlog.ProbeEvent(http.MethodGet, candidate.URL, status, exists, time.Since(start))
	if !exists {
		return candidate, false
	}

	accessible := status >= 200 && status < 300
	candidate.Tested = true
	candidate.Accessible = &accessible
	candidate.StatusCode = &status
	candidate.Headers = selectHeaders(respHeaders)
	return candidate, true
}

// selectHeaders keeps the response headers worth reporting.
func selectHeaders(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, 4)
	for _, name := range []string{"Content-Type", "Server", "X-Powered-By", "WWW-Authenticate"} {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isWebSocketURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "ws://") || strings.HasPrefix(rawURL, "wss://")
}
