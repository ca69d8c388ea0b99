package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/AuthScope/internal/errors"
)

// RodDriver implements Driver on a headless Chrome session via Rod.
type RodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	config   Config

	mu        sync.Mutex
	capturing bool
	events    []RawEvent
	closed    bool
}

// NewRodDriver launches a browser and opens a blank page. A launch or
// connect failure here is the pipeline's one fatal error.
func NewRodDriver(config Config) (*RodDriver, error) {
	l := launcher.New()
	if config.Headless {
		l = l.Headless(true)
	}
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.NewBrowserError("", "launch", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, errors.NewBrowserError("", "connect", err)
	}
	b = b.Timeout(config.Timeout)

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, errors.NewBrowserError("", "create_page", err)
	}

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  config.ViewportWidth,
		Height: config.ViewportHeight,
	})

	if config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: config.UserAgent,
		}.Call(page)
	}

	return &RodDriver{
		browser:  b,
		page:     page,
		launcher: l,
		config:   config,
	}, nil
}

// SetExtraHeaders applies headers to every request the page issues.
func (d *RodDriver) SetExtraHeaders(headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	networkHeaders := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		networkHeaders[k] = gson.New(v)
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}).Call(d.page); err != nil {
		return errors.NewBrowserError("", "set_headers", err)
	}
	return nil
}

// SetCookies seeds the session with cookies before navigation.
func (d *RodDriver) SetCookies(cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, cookie := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HttpOnly,
		})
	}
	if err := d.page.SetCookies(params); err != nil {
		return errors.NewBrowserError("", "set_cookies", err)
	}
	return nil
}

// Navigate loads a URL and waits for the load event.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return errors.NewBrowserError(url, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.NewBrowserError(url, "wait_load", err)
	}
	return nil
}

// FillField clears and types into the element matching the selector.
func (d *RodDriver) FillField(selector, value string) error {
	el, err := d.element(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(value); err != nil {
		return errors.NewBrowserError(selector, "fill_field", err)
	}
	return nil
}

// Click clicks the element matching the selector.
func (d *RodDriver) Click(selector string) error {
	el, err := d.element(selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.NewBrowserError(selector, "click", err)
	}
	return nil
}

// PressEnter sends Enter to the element matching the selector.
func (d *RodDriver) PressEnter(selector string) error {
	el, err := d.element(selector)
	if err != nil {
		return err
	}
	if err := el.Type(input.Enter); err != nil {
		return errors.NewBrowserError(selector, "press_enter", err)
	}
	return nil
}

func (d *RodDriver) element(selector string) (*rod.Element, error) {
	el, err := d.page.Timeout(d.config.Timeout).Element(selector)
	if err != nil || el == nil {
		return nil, errors.NewBrowserError(selector, "find_element", fmt.Errorf("element not found: %s", selector))
	}
	return el, nil
}

// EnableNetworkCapture subscribes to CDP network events and records them.
func (d *RodDriver) EnableNetworkCapture() error {
	d.mu.Lock()
	if d.capturing {
		d.mu.Unlock()
		return nil
	}
	d.capturing = true
	d.events = make([]RawEvent, 0, 64)
	d.mu.Unlock()

	if err := (proto.NetworkEnable{}).Call(d.page); err != nil {
		return errors.NewBrowserError("", "network_enable", err)
	}

	go d.page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			d.record(RawEvent{
				ID:        string(e.RequestID),
				Kind:      EventRequest,
				URL:       e.Request.URL,
				Method:    e.Request.Method,
				Headers:   headerMap(e.Request.Headers),
				Body:      e.Request.PostData,
				Timestamp: e.WallTime.Time(),
			})
		},
		func(e *proto.NetworkResponseReceived) {
			// The CDP response timestamp is monotonic, so stamp wall time.
			ev := RawEvent{
				ID:        string(e.RequestID),
				Kind:      EventResponse,
				URL:       e.Response.URL,
				Status:    e.Response.Status,
				Headers:   headerMap(e.Response.Headers),
				MimeType:  e.Response.MIMEType,
				Timestamp: time.Now(),
			}
			// Body fetch is best effort; streaming responses refuse it.
			if body, err := (proto.NetworkGetResponseBody{RequestID: e.RequestID}).Call(d.page); err == nil {
				ev.Body = body.Body
				if body.Base64Encoded {
					if decoded, err := base64.StdEncoding.DecodeString(body.Body); err == nil {
						ev.Body = string(decoded)
					}
				}
			}
			d.record(ev)
		},
	)()

	return nil
}

func (d *RodDriver) record(ev RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capturing {
		d.events = append(d.events, ev)
	}
}

// CaptureLog returns a copy of the events recorded so far.
func (d *RodDriver) CaptureLog() []RawEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RawEvent, len(d.events))
	copy(out, d.events)
	return out
}

// ExecuteScript evaluates JavaScript and returns the result as JSON.
func (d *RodDriver) ExecuteScript(code string) (string, error) {
	res, err := d.page.Eval(code)
	if err != nil {
		return "", errors.NewBrowserError("", "execute_script", err)
	}
	raw, err := json.Marshal(res.Value.Val())
	if err != nil {
		return "", errors.NewParseError("", "script_result", err)
	}
	return string(raw), nil
}

// HTML returns the current DOM serialized to HTML.
func (d *RodDriver) HTML() (string, error) {
	html, err := d.page.HTML()
	if err != nil {
		return "", errors.NewBrowserError("", "html", err)
	}
	return html, nil
}

// CurrentURL returns the page URL after any redirects.
func (d *RodDriver) CurrentURL() string {
	info, err := d.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Cookies returns the session cookies held by the browser.
func (d *RodDriver) Cookies() ([]*http.Cookie, error) {
	rodCookies, err := d.page.Cookies(nil)
	if err != nil {
		return nil, errors.NewBrowserError("", "cookies", err)
	}

	cookies := make([]*http.Cookie, 0, len(rodCookies))
	for _, c := range rodCookies {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

// Close releases the page, browser, and launcher. Safe to call twice.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.capturing = false
	d.mu.Unlock()

	_ = d.page.Close()
	err := d.browser.Close()
	d.launcher.Cleanup()
	return err
}

// headerMap flattens CDP headers into a plain string map.
func headerMap(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}
