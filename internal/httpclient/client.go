// Package httpclient provides the HTTP client shared by the login-page
// locator and the endpoint prober.
package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/PentesterFlow/AuthScope/internal/errors"
)

// Client is a tuned HTTP client for page fetches and single-shot probes.
type Client struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	cookies   []*http.Cookie
	retrier   *errors.Retrier
	mu        sync.RWMutex
}

// Config holds client configuration.
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	UserAgent           string
	Headers             map[string]string
	SkipTLSVerify       bool
	MaxRedirects        int
}

// DefaultConfig returns defaults tuned for probing many paths on one host.
func DefaultConfig() Config {
	return Config{
		Timeout:             10 * time.Second,
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 50,
		MaxConnsPerHost:     50,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		SkipTLSVerify:       true,
		MaxRedirects:        5,
	}
}

// New creates a new client.
func New(config Config) *Client {
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = 5
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	maxRedirects := config.MaxRedirects

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: config.UserAgent,
		headers:   config.Headers,
		retrier:   errors.NewDefaultRetrier(),
	}
}

// TLSConfig exposes the transport's TLS configuration so other dialers,
// such as websocket upgrades, verify certificates the same way.
func (c *Client) TLSConfig() *tls.Config {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		return t.TLSClientConfig
	}
	return nil
}

// SetCookies sets cookies for all subsequent requests.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.mu.Lock()
	c.cookies = cookies
	c.mu.Unlock()
}

// SetHeaders sets custom headers for all subsequent requests.
func (c *Client) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	c.headers = headers
	c.mu.Unlock()
}

// Result contains the result of a page fetch.
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	HTML        string
	Title       string
	Links       []Link
	Headers     http.Header
	Redirected  bool
	Duration    time.Duration
	Error       error
}

// Link is an anchor or button-like element found in a fetched page.
type Link struct {
	URL     string
	Text    string
	OnClick string
}

// Get fetches a URL and, for HTML responses, extracts the title and anchors.
func (c *Client) Get(ctx context.Context, targetURL string) (*Result, error) {
	return c.do(ctx, http.MethodGet, targetURL, true)
}

// Head issues a HEAD request. Some servers reject HEAD; callers fall back
// to Get on method errors.
func (c *Client) Head(ctx context.Context, targetURL string) (*Result, error) {
	return c.do(ctx, http.MethodHead, targetURL, false)
}

// GetWithRetry fetches a URL, retrying transient failures with backoff.
func (c *Client) GetWithRetry(ctx context.Context, targetURL string) (*Result, error) {
	var result *Result
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var doErr error
		result, doErr = c.Get(ctx, targetURL)
		return doErr
	})
	if result == nil {
		result = &Result{URL: targetURL, Error: err}
	}
	return result, err
}

func (c *Client) do(ctx context.Context, method, targetURL string, parseBody bool) (*Result, error) {
	start := time.Now()
	result := &Result{URL: targetURL}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
	if err != nil {
		pErr := errors.NewParseError(targetURL, "request_creation", err)
		result.Error = pErr
		return result, pErr
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		pErr := errors.Categorize(err, targetURL)
		result.Error = pErr
		return result, pErr
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")
	result.Headers = resp.Header
	result.Redirected = result.FinalURL != targetURL
	result.Duration = time.Since(start)

	if httpErr := errors.CategorizeHTTPStatus(resp.StatusCode, targetURL); httpErr != nil {
		result.Error = httpErr
	}

	if !parseBody || !strings.Contains(result.ContentType, "text/html") {
		io.Copy(io.Discard, resp.Body)
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		netErr := errors.NewNetworkError(targetURL, "body_read", err)
		result.Error = netErr
		return result, netErr
	}
	result.HTML = string(body)

	base, _ := url.Parse(result.FinalURL)
	result.Links, result.Title = parseHTML(result.HTML, base)
	result.Duration = time.Since(start)

	return result, nil
}

// Probe issues a single request with no retries and without reading the
// body beyond draining it. Used for endpoint probes and login-path checks.
func (c *Client) Probe(ctx context.Context, method, targetURL string, extraHeaders map[string]string) (statusCode int, respHeaders http.Header, err error) {
	req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
	if err != nil {
		return 0, nil, errors.NewParseError(targetURL, "request_creation", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")

	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.RUnlock()
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, resp.Header, nil
}

// parseHTML extracts anchors, clickable elements, and the title.
func parseHTML(htmlContent string, base *url.URL) ([]Link, string) {
	links := make([]Link, 0, 64)
	title := ""
	seen := make(map[string]bool)

	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return links, title
	}

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "button":
				link := Link{Text: nodeText(n)}
				for _, attr := range n.Attr {
					switch attr.Key {
					case "href":
						link.URL = resolveURL(attr.Val, base)
					case "onclick":
						link.OnClick = attr.Val
					}
				}
				key := link.URL + "|" + link.OnClick
				if (link.URL != "" || link.OnClick != "") && !seen[key] {
					seen[key] = true
					links = append(links, link)
				}
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)

	return links, title
}

// nodeText collects the visible text under a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// resolveURL resolves a possibly relative URL against a base.
func resolveURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}
