package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/AuthScope/internal/httpclient"
)

func newTestProber(cfg Config) *Prober {
	client := httpclient.New(httpclient.Config{Timeout: 10 * time.Second})
	return New(client, nil, nil, cfg)
}

// ===== Catalog Tests =====

func TestCatalogCandidatesCoverAllTypes(t *testing.T) {
	base, _ := url.Parse("https://app.test")

	candidates := CatalogCandidates(base)

	seen := make(map[EndpointType]bool)
	for _, c := range candidates {
		seen[c.Type] = true
		if !strings.HasPrefix(c.URL, "https://app.test/") {
			t.Errorf("candidate not resolved against origin: %s", c.URL)
		}
		if c.Method != "GET" {
			t.Errorf("catalog candidate method = %s", c.Method)
		}
	}

	for _, typ := range []EndpointType{TypeProfile, TypePayment, TypeOrders, TypeAddresses, TypeWallet} {
		if !seen[typ] {
			t.Errorf("catalog missing type %s", typ)
		}
	}
}

func TestLooksLikeAPI(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://app.test/api/users", true},
		{"https://app.test/v2/items", true},
		{"https://app.test/graphql", true},
		{"https://app.test/static/app.js", false},
		{"https://app.test/login", false},
		{"https://app.test/service/v10/data", true},
	}

	for _, tt := range tests {
		if got := LooksLikeAPI(tt.url); got != tt.want {
			t.Errorf("LooksLikeAPI(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestObservedCandidatesFiltersByHostAndShape(t *testing.T) {
	base, _ := url.Parse("https://app.test")
	observed := []string{
		"https://app.test/api/cart?item=1",
		"https://cdn.other.test/api/tracking",
		"https://app.test/images/logo.png",
		"wss://app.test/socket",
		"not a url at all ://",
	}

	candidates := ObservedCandidates(base, observed)

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].URL != "https://app.test/api/cart" {
		t.Errorf("expected query stripped, got %s", candidates[0].URL)
	}
	if candidates[1].URL != "wss://app.test/socket" {
		t.Errorf("expected websocket candidate kept, got %s", candidates[1].URL)
	}
	for _, c := range candidates {
		if c.Type != TypeUnknown {
			t.Errorf("observed candidate type = %s, want unknown", c.Type)
		}
	}
}

// ===== Credentials Tests =====

func TestCredentialsFromTokens(t *testing.T) {
	tests := []struct {
		name       string
		tokens     map[string]string
		cookies    []*http.Cookie
		wantBearer string
		wantCookie string
	}{
		{
			name:       "full authorization header wins",
			tokens:     map[string]string{"authorization_header": "Bearer abc", "access_token": "xyz"},
			wantBearer: "Bearer abc",
		},
		{
			name:       "bare access token gets prefix",
			tokens:     map[string]string{"access_token": "abc.def.ghi"},
			wantBearer: "Bearer abc.def.ghi",
		},
		{
			name:       "cookies from parsed slice",
			tokens:     map[string]string{},
			cookies:    []*http.Cookie{{Name: "session", Value: "s1"}, {Name: "csrf", Value: "c1"}},
			wantCookie: "session=s1; csrf=c1",
		},
		{
			name:       "cookie token fallback",
			tokens:     map[string]string{"cookies": "session=s1"},
			wantCookie: "session=s1",
		},
		{
			name:   "nothing captured",
			tokens: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := CredentialsFromTokens(tt.tokens, tt.cookies)
			if creds.Bearer != tt.wantBearer {
				t.Errorf("Bearer = %q, want %q", creds.Bearer, tt.wantBearer)
			}
			if creds.Cookie != tt.wantCookie {
				t.Errorf("Cookie = %q, want %q", creds.Cookie, tt.wantCookie)
			}
		})
	}
}

// ===== Prober Tests =====

func TestRunClassifiesStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
		case "/api/payments":
			w.WriteHeader(http.StatusUnauthorized)
		case "/api/orders":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := newTestProber(Config{Workers: 5, Timeout: 2 * time.Second})
	endpoints := p.Run(context.Background(), srv.URL, Credentials{}, nil)

	byURL := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		byURL[ep.URL] = ep
	}

	user, ok := byURL[srv.URL+"/api/user"]
	if !ok {
		t.Fatal("expected /api/user to be discovered")
	}
	if !user.Tested || user.Accessible == nil || !*user.Accessible {
		t.Errorf("/api/user should be tested and accessible: %+v", user)
	}
	if user.StatusCode == nil || *user.StatusCode != 200 {
		t.Errorf("/api/user status = %v", user.StatusCode)
	}
	if user.Headers["Content-Type"] != "application/json" {
		t.Errorf("/api/user headers = %v", user.Headers)
	}

	payments, ok := byURL[srv.URL+"/api/payments"]
	if !ok {
		t.Fatal("expected /api/payments to be discovered")
	}
	if !payments.Tested {
		t.Error("/api/payments should be marked tested")
	}
	if payments.Accessible == nil || *payments.Accessible {
		t.Error("401 endpoint must be recorded with Accessible=false")
	}

	orders, ok := byURL[srv.URL+"/api/orders"]
	if !ok {
		t.Fatal("expected /api/orders to be discovered")
	}
	if orders.Accessible == nil || *orders.Accessible {
		t.Error("403 endpoint must be recorded with Accessible=false")
	}

	if _, found := byURL[srv.URL+"/api/wallet"]; found {
		t.Error("404 endpoint must be discarded")
	}
}

func TestRunAttachesCredentials(t *testing.T) {
	var gotAuth, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/user" {
			gotAuth = r.Header.Get("Authorization")
			gotCookie = r.Header.Get("Cookie")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProber(Config{Workers: 3, Timeout: 2 * time.Second})
	creds := Credentials{Bearer: "Bearer tok123", Cookie: "session=abc"}
	p.Run(context.Background(), srv.URL, creds, nil)

	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotCookie != "session=abc" {
		t.Errorf("Cookie = %q", gotCookie)
	}
}

func TestRunDedupsAcrossCatalogAndObserved(t *testing.T) {
	hits := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		if r.URL.Path == "/api/user" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProber(Config{Workers: 1, Timeout: 2 * time.Second})
	// /api/user is already in the catalog; the observed duplicate must not
	// produce a second probe.
	observed := []string{srv.URL + "/api/user?from=capture"}
	endpoints := p.Run(context.Background(), srv.URL, Credentials{}, observed)

	if hits["/api/user"] != 1 {
		t.Errorf("expected exactly 1 probe of /api/user, got %d", hits["/api/user"])
	}

	count := 0
	for _, ep := range endpoints {
		if strings.HasSuffix(ep.URL, "/api/user") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected /api/user once in results, got %d", count)
	}
}

func TestRunSlowEndpointDoesNotStallBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/user" {
			time.Sleep(2 * time.Second)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(Config{Workers: 10, Timeout: 500 * time.Millisecond})

	start := time.Now()
	endpoints := p.Run(context.Background(), srv.URL, Credentials{}, nil)
	elapsed := time.Since(start)

	// One hanging endpoint costs at most one probe timeout, not the sum.
	if elapsed > 1500*time.Millisecond {
		t.Errorf("batch took %v, expected roughly one probe timeout", elapsed)
	}
	for _, ep := range endpoints {
		if strings.HasSuffix(ep.URL, "/api/user") {
			t.Error("timed-out endpoint must be discarded")
		}
	}
	if len(endpoints) == 0 {
		t.Error("fast endpoints should still be discovered")
	}
}

func TestRunCancellationStopsNewProbes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProber(Config{Workers: 5, Timeout: time.Second})
	endpoints := p.Run(ctx, srv.URL, Credentials{}, nil)

	if len(endpoints) != 0 {
		t.Errorf("cancelled run returned %d endpoints", len(endpoints))
	}
}

func TestRunInvalidTarget(t *testing.T) {
	p := newTestProber(Config{Workers: 2, Timeout: time.Second})

	if got := p.Run(context.Background(), "://bad", Credentials{}, nil); got != nil {
		t.Errorf("expected nil for unparseable target, got %v", got)
	}
}

// ===== WebSocket Probe Tests =====

func TestRunVerifiesWebSocketEndpoint(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/socket" {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"

	p := newTestProber(Config{Workers: 2, Timeout: 2 * time.Second})
	endpoints := p.Run(context.Background(), srv.URL, Credentials{}, []string{wsURL})

	var found *Endpoint
	for i := range endpoints {
		if endpoints[i].URL == wsURL {
			found = &endpoints[i]
		}
	}
	if found == nil {
		t.Fatal("expected websocket endpoint in results")
	}
	if found.Accessible == nil || !*found.Accessible {
		t.Error("handshake succeeded, endpoint should be accessible")
	}
}

func TestRunWebSocketRejectedSessionStillExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/socket" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"

	p := newTestProber(Config{Workers: 2, Timeout: 2 * time.Second})
	endpoints := p.Run(context.Background(), srv.URL, Credentials{}, []string{wsURL})

	var found *Endpoint
	for i := range endpoints {
		if endpoints[i].URL == wsURL {
			found = &endpoints[i]
		}
	}
	if found == nil {
		t.Fatal("expected rejected websocket endpoint to be recorded")
	}
	if found.Accessible == nil || *found.Accessible {
		t.Error("401 handshake must record Accessible=false")
	}
}
