// Package pipeline orchestrates login-call capture and endpoint discovery:
// locate the login page, script a login through a real browser while
// recording network traffic, select the genuine login call, then probe for
// authenticated API endpoints with the captured session.
package pipeline

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PentesterFlow/AuthScope/internal/browser"
	"github.com/PentesterFlow/AuthScope/internal/capture"
	"github.com/PentesterFlow/AuthScope/internal/dedup"
	"github.com/PentesterFlow/AuthScope/internal/errors"
	"github.com/PentesterFlow/AuthScope/internal/httpclient"
	"github.com/PentesterFlow/AuthScope/internal/locator"
	"github.com/PentesterFlow/AuthScope/internal/logger"
	"github.com/PentesterFlow/AuthScope/internal/probe"
	"github.com/PentesterFlow/AuthScope/internal/ratelimit"
	"github.com/PentesterFlow/AuthScope/internal/store"
)

// DriverFactory builds a browser driver. Tests substitute a fake.
type DriverFactory func(cfg browser.Config) (browser.Driver, error)

// Pipeline runs the full discovery flow against one target.
type Pipeline struct {
	cfg       *Config
	log       *logger.Logger
	client    *httpclient.Client
	engine    *dedup.Engine
	locator   *locator.Locator
	scorer    *capture.Scorer
	prober    *probe.Prober
	store     *store.Store
	newDriver DriverFactory
}

// New creates a pipeline from configuration. The dedup engine and every
// stage are fresh per pipeline, so building a new pipeline per run keeps
// runs idempotent.
func New(cfg *Config, log *logger.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	clientCfg := httpclient.DefaultConfig()
	if cfg.HTTP.Timeout > 0 {
		clientCfg.Timeout = cfg.HTTP.Timeout
	}
	if cfg.HTTP.UserAgent != "" {
		clientCfg.UserAgent = cfg.HTTP.UserAgent
	}
	clientCfg.SkipTLSVerify = cfg.HTTP.SkipTLSVerify
	clientCfg.Headers = cfg.HTTP.Headers
	client := httpclient.New(clientCfg)
	if seed := cfg.SeedCookies(); len(seed) > 0 {
		client.SetCookies(seed)
	}

	engine := dedup.New()

	p := &Pipeline{
		cfg:     cfg,
		log:     log,
		client:  client,
		engine:  engine,
		locator: locator.New(client, log),
		scorer:  capture.NewScorer(log),
		prober: probe.New(client, engine, log, probe.Config{
			Workers:           cfg.Probe.Workers,
			Timeout:           cfg.Probe.Timeout,
			RequestsPerSecond: cfg.Probe.RequestsPerSecond,
			Burst:             cfg.Probe.Burst,
		}),
		newDriver: func(bcfg browser.Config) (browser.Driver, error) {
			return browser.NewRodDriver(bcfg)
		},
	}

	if cfg.StorePath != "" {
		s, err := store.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		p.store = s

		// Seed the dedup engine with endpoints from earlier runs so a
		// resumed discovery only reports what is new.
		keys, err := s.KnownKeys(cfg.Target)
		if err != nil {
			log.WithError(err).Warn("dedup seed from endpoint store failed")
		}
		for _, key := range keys {
			engine.Remember(key)
		}
	}

	return p, nil
}

// SetDriverFactory overrides how browser sessions are created.
func (p *Pipeline) SetDriverFactory(f DriverFactory) {
	p.newDriver = f
}

// Close releases pipeline-owned resources.
func (p *Pipeline) Close() error {
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// Run executes the full flow. Failure to find a login page, a login call,
// or any endpoint is reported through Result fields, not errors; the only
// error Run returns is a browser session that could not start.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now()
	result := &Result{
		Target:    p.cfg.Target,
		StartedAt: startedAt,
		Endpoints: []probe.Endpoint{},
	}

	// Stage 1: find the login page. An explicit LoginURL skips the
	// strategies entirely.
	var loc locator.Result
	if p.cfg.LoginURL != "" {
		loc = locator.Result{LoginURL: p.cfg.LoginURL, Strategy: "explicit", Resolved: true}
	} else {
		loc = p.locator.Locate(ctx, p.cfg.Target)
	}
	result.LoginPageURL = loc.LoginURL
	result.LoginPageResolved = loc.Resolved
	result.LoginStrategy = loc.Strategy

	// Stage 2: scripted login with network capture. The browser session is
	// owned exclusively by this stage and released before probing starts,
	// on every path.
	driver, err := p.newDriver(p.cfg.Browser)
	if err != nil {
		result.Duration = time.Since(startedAt)
		return result, errors.NewBrowserError(p.cfg.Target, "start session", err)
	}

	released := false
	release := func() {
		if !released {
			released = true
			if cerr := driver.Close(); cerr != nil {
				p.log.WithError(cerr).Warn("browser session close failed")
			}
		}
	}
	defer release()

	events, sessionCookies := p.scriptLogin(ctx, driver, loc.LoginURL)
	release()

	// Stage 3: pick the real login call out of the capture.
	requests, responses := capture.ParseLog(events)
	result.Stats.RequestsCaptured = len(requests)

	loginCapture, captured := p.scorer.SelectParsed(requests, responses)
	result.LoginCallCaptured = captured
	if captured {
		// The browser's cookie jar backfills anything Set-Cookie parsing
		// missed, HttpOnly session cookies included.
		if len(loginCapture.Cookies) == 0 && len(sessionCookies) > 0 {
			loginCapture.Cookies = sessionCookies
		}
		result.Capture = loginCapture
	}

	// Stage 4: probe for endpoints with whatever session we have.
	var creds probe.Credentials
	if captured {
		creds = probe.CredentialsFromTokens(loginCapture.Tokens, loginCapture.Cookies)
	}

	observed := observedURLs(requests)
	result.Stats.ObservedAPIShapes = len(observed)

	endpoints := p.prober.Run(ctx, p.cfg.Target, creds, observed)
	result.Endpoints = endpoints
	result.EndpointsFound = len(endpoints)
	result.Stats.EndpointsFound = len(endpoints)
	result.Stats.EndpointsProbed = p.engine.Count()
	for _, ep := range endpoints {
		if ep.Accessible != nil && *ep.Accessible {
			result.Stats.AccessibleCount++
		} else {
			result.Stats.RejectedCount++
		}
	}

	result.Duration = time.Since(startedAt)

	p.persist(result)
	p.log.StatsEvent(map[string]interface{}{
		"login_page_resolved": result.LoginPageResolved,
		"login_call_captured": result.LoginCallCaptured,
		"requests_captured":   result.Stats.RequestsCaptured,
		"endpoints_found":     result.EndpointsFound,
		"duration":            result.Duration.String(),
	})

	return result, nil
}

// scriptLogin drives the browser through the login flow and returns the
// capture log plus the browser's cookie jar. Every failure in here is
// recoverable: the pipeline continues with whatever was captured.
func (p *Pipeline) scriptLogin(ctx context.Context, driver browser.Driver, loginURL string) ([]browser.RawEvent, []*http.Cookie) {
	if err := driver.EnableNetworkCapture(); err != nil {
		p.log.WithError(err).Warn("network capture unavailable")
		return nil, nil
	}

	if len(p.cfg.HTTP.Headers) > 0 {
		if err := driver.SetExtraHeaders(p.cfg.HTTP.Headers); err != nil {
			p.log.ErrorEvent(err, loginURL, "set headers")
		}
	}
	if seed := p.cfg.SeedCookies(); len(seed) > 0 {
		if err := driver.SetCookies(seed); err != nil {
			p.log.ErrorEvent(err, loginURL, "seed cookies")
		}
	}

	if err := driver.Navigate(ctx, loginURL); err != nil {
		p.log.ErrorEvent(err, loginURL, "navigate")
		return driver.CaptureLog(), nil
	}

	classification := p.classifyPage(ctx, driver)

	if classification.Identity != nil {
		if err := driver.FillField(classification.Identity.Selector, p.cfg.Credentials.Identity); err != nil {
			p.log.ErrorEvent(err, loginURL, "fill identity")
		}
	}
	if classification.Password != nil {
		if err := driver.FillField(classification.Password.Selector, p.cfg.Credentials.Password); err != nil {
			p.log.ErrorEvent(err, loginURL, "fill password")
		}
	}

	submitted := false
	if classification.Submit != nil {
		if err := driver.Click(classification.Submit.Selector); err == nil {
			submitted = true
		} else {
			p.log.ErrorEvent(err, loginURL, "click submit")
		}
	}
	if !submitted && classification.Password != nil {
		if err := driver.PressEnter(classification.Password.Selector); err != nil {
			p.log.ErrorEvent(err, loginURL, "press enter")
		}
	}

	// Let post-submit XHR traffic land before reading the log.
	settle := p.cfg.Browser.SettleDelay
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if err := ratelimit.SleepContext(ctx, settle); err != nil {
		return driver.CaptureLog(), nil
	}

	cookies, err := driver.Cookies()
	if err != nil {
		p.log.WithError(err).Debug("cookie read failed")
	}
	return driver.CaptureLog(), cookies
}

// classifyPage classifies the login form, retrying on the settled dynamic
// DOM when the first render has no form, and falling back to bare CSS
// selectors when classification never completes.
func (p *Pipeline) classifyPage(ctx context.Context, driver browser.Driver) *locator.Classification {
	html, err := driver.HTML()
	if err != nil {
		p.log.WithError(err).Warn("page markup unavailable, using selector fallback")
		return locator.DynamicFallback()
	}

	classification, err := locator.ClassifyHTML(html)
	if err == nil && classification.Complete {
		return classification
	}

	// SPAs often mount the form after the load event. Wait once and
	// classify inputs without requiring a form element.
	settle := p.cfg.Browser.SettleDelay
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if serr := ratelimit.SleepContext(ctx, settle); serr != nil {
		return locator.DynamicFallback()
	}

	if html, err = driver.HTML(); err == nil {
		if retried, rerr := locator.ClassifyInputs(html); rerr == nil && retried.Complete {
			return retried
		}
	}

	p.log.Info("field classification incomplete, probing selectors directly")
	return locator.DynamicFallback()
}

// persist saves endpoints and the run summary when a store is configured.
func (p *Pipeline) persist(result *Result) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveEndpoints(result.Target, result.Endpoints); err != nil {
		p.log.WithError(err).Warn("endpoint store save failed")
	}
	if err := p.store.SaveRun(store.RunRecord{
		Target:         result.Target,
		StartedAt:      result.StartedAt,
		Duration:       result.Duration.String(),
		EndpointsFound: result.EndpointsFound,
		LoginCaptured:  result.LoginCallCaptured,
	}); err != nil {
		p.log.WithError(err).Warn("run record save failed")
	}
}

// observedURLs collects capture-observed URLs worth probing.
func observedURLs(requests []capture.CapturedRequest) []string {
	urls := make([]string, 0, len(requests))
	for _, req := range requests {
		if probe.LooksLikeAPI(req.URL) || isWS(req.URL) {
			urls = append(urls, req.URL)
		}
	}
	return urls
}

func isWS(url string) bool {
	return strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
}
