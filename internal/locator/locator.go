// Package locator finds an application's login page and classifies the
// form fields needed to script a login through the browser.
package locator

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PentesterFlow/AuthScope/internal/httpclient"
	"github.com/PentesterFlow/AuthScope/internal/logger"
)

// Result is the outcome of login-page location.
type Result struct {
	// LoginURL is the resolved login page, or the original input URL when
	// every strategy failed.
	LoginURL string
	// Strategy names the strategy that resolved the URL, empty on failure.
	Strategy string
	// Resolved reports whether any strategy succeeded. A false value is
	// not fatal; downstream stages run against the original URL.
	Resolved bool
}

// Locator locates login pages by trying strategies in fixed priority order.
type Locator struct {
	client *httpclient.Client
	log    *logger.Logger
}

// New creates a locator.
func New(client *httpclient.Client, log *logger.Logger) *Locator {
	if log == nil {
		log = logger.Nop()
	}
	return &Locator{
		client: client,
		log:    log.WithComponent("locator"),
	}
}

// strategy is one named way of resolving a login page URL. It returns the
// resolved absolute URL or "" for no match.
type strategy struct {
	name string
	run  func(ctx context.Context, base *url.URL) string
}

// commonLoginPaths is the fixed catalog probed by the first strategy,
// ordered by how often each shows up in the wild.
var commonLoginPaths = []string{
	"/login",
	"/signin",
	"/sign-in",
	"/sign_in",
	"/account/login",
	"/auth/login",
	"/user/login",
	"/users/sign_in",
	"/accounts/login",
	"/admin/login",
	"/session/new",
	"/auth",
	"/wp-login.php",
	"/login.php",
	"/login.html",
}

// protectedPaths are paths likely to redirect anonymous visitors to login.
var protectedPaths = []string{
	"/account",
	"/dashboard",
	"/profile",
	"/settings",
	"/orders",
	"/admin",
}

// loginKeywords match login-related link text, hrefs, and redirect targets.
var loginKeywords = []string{
	"login",
	"log in",
	"log-in",
	"signin",
	"sign in",
	"sign-in",
	"auth",
	"session",
	"account",
}

// Locate tries every strategy in order and returns the first resolved URL.
// When all strategies fail it returns the input URL with Resolved=false.
func (l *Locator) Locate(ctx context.Context, baseURL string) Result {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return Result{LoginURL: baseURL}
	}

	strategies := []strategy{
		{name: "path_catalog", run: l.probePathCatalog},
		{name: "homepage_links", run: l.scanHomepageLinks},
		{name: "protected_redirect", run: l.followProtectedRedirects},
	}

	for _, s := range strategies {
		select {
		case <-ctx.Done():
			return Result{LoginURL: baseURL}
		default:
		}

		if resolved := s.run(ctx, base); resolved != "" {
			l.log.StrategyEvent(s.name, resolved, true)
			return Result{LoginURL: resolved, Strategy: s.name, Resolved: true}
		}
		l.log.StrategyEvent(s.name, baseURL, false)
	}

	return Result{LoginURL: baseURL}
}

// probePathCatalog issues lightweight requests against the common login
// path catalog and returns the first path answering with a success status.
func (l *Locator) probePathCatalog(ctx context.Context, base *url.URL) string {
	root := base.Scheme + "://" + base.Host

	for _, path := range commonLoginPaths {
		candidate := root + path

		status, _, err := l.client.Probe(ctx, http.MethodHead, candidate, nil)
		if err != nil {
			continue
		}
		// Servers that reject HEAD get one GET retry.
		if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
			status, _, err = l.client.Probe(ctx, http.MethodGet, candidate, nil)
			if err != nil {
				continue
			}
		}
		if status >= 200 && status < 300 {
			return candidate
		}
	}
	return ""
}

// scanHomepageLinks fetches the homepage and looks for anchors or buttons
// whose text, href, or onclick handler mentions a login keyword.
func (l *Locator) scanHomepageLinks(ctx context.Context, base *url.URL) string {
	res, err := l.client.GetWithRetry(ctx, base.String())
	if err != nil || res.HTML == "" {
		return ""
	}

	for _, link := range res.Links {
		if !mentionsLogin(link.Text) && !mentionsLogin(link.URL) && !mentionsLogin(link.OnClick) {
			continue
		}
		if link.URL != "" {
			return link.URL
		}
		// onclick-only handlers sometimes embed the target path.
		if target := extractOnClickTarget(link.OnClick, base); target != "" {
			return target
		}
	}
	return ""
}

// followProtectedRedirects requests paths that typically require a session
// and checks whether the redirect chain lands on a login-looking URL.
func (l *Locator) followProtectedRedirects(ctx context.Context, base *url.URL) string {
	root := base.Scheme + "://" + base.Host

	for _, path := range protectedPaths {
		res, err := l.client.Get(ctx, root+path)
		if err != nil || !res.Redirected {
			continue
		}
		if mentionsLogin(res.FinalURL) {
			return res.FinalURL
		}
	}
	return ""
}

// mentionsLogin reports whether the string contains a login keyword.
func mentionsLogin(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, kw := range loginKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractOnClickTarget pulls a quoted path out of an onclick handler like
// location.href='/login' and resolves it against the base URL.
func extractOnClickTarget(onclick string, base *url.URL) string {
	start := strings.IndexAny(onclick, `'"`)
	if start == -1 {
		return ""
	}
	quote := onclick[start]
	rest := onclick[start+1:]
	end := strings.IndexByte(rest, quote)
	if end == -1 {
		return ""
	}
	raw := rest[:end]
	if raw == "" || !mentionsLogin(raw) {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
