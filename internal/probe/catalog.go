package probe

import (
	"net/url"
	"regexp"
	"strings"
)

// EndpointType groups endpoints by the data they expose. The type of a
// catalog endpoint comes from its catalog group and is never re-inferred
// from probe responses.
type EndpointType string

const (
	TypeProfile   EndpointType = "profile"
	TypePayment   EndpointType = "payment"
	TypeOrders    EndpointType = "orders"
	TypeAddresses EndpointType = "addresses"
	TypeWallet    EndpointType = "wallet"
	TypeAuth      EndpointType = "auth"
	TypeUnknown   EndpointType = "unknown"
)

// Endpoint is one discovered API endpoint. Unique per (method, url) in the
// final result set.
type Endpoint struct {
	URL    string       `json:"url"`
	Method string       `json:"method"`
	Type   EndpointType `json:"type"`
	// Tested is true once a probe completed against the endpoint.
	Tested bool `json:"tested"`
	// Accessible is nil until tested. False means the endpoint exists but
	// rejected the session (401/403).
	Accessible *bool `json:"accessible,omitempty"`
	StatusCode *int  `json:"status_code,omitempty"`
	// Headers holds selected response headers from the probe.
	Headers map[string]string `json:"headers,omitempty"`
}

// catalog is the fixed relative-path catalog, grouped by endpoint type.
// Paths cover the common REST layouts seen across commercial and
// open-source applications.
var catalog = map[EndpointType][]string{
	TypeProfile: {
		"/api/user",
		"/api/users/me",
		"/api/me",
		"/api/profile",
		"/api/account",
		"/api/v1/user",
		"/api/v1/me",
		"/api/customer",
		"/rest/user/whoami",
	},
	TypePayment: {
		"/api/payments",
		"/api/payment-methods",
		"/api/billing",
		"/api/cards",
		"/api/v1/payments",
		"/rest/payment",
	},
	TypeOrders: {
		"/api/orders",
		"/api/order-history",
		"/api/purchases",
		"/api/v1/orders",
		"/rest/order-history",
	},
	TypeAddresses: {
		"/api/addresses",
		"/api/address",
		"/api/user/addresses",
		"/api/v1/addresses",
		"/api/Addresss", // juice-shop style pluralization bug, still common
	},
	TypeWallet: {
		"/api/wallet",
		"/api/wallets",
		"/api/balance",
		"/api/v1/wallet",
		"/rest/wallet/balance",
	},
}

// catalogOrder fixes the iteration order so candidate lists are stable
// across runs.
var catalogOrder = []EndpointType{TypeProfile, TypePayment, TypeOrders, TypeAddresses, TypeWallet}

// versionSegment matches /v1/, /v2/ style path segments.
var versionSegment = regexp.MustCompile(`/v\d+/`)

// CatalogCandidates expands the path catalog against the target's origin.
func CatalogCandidates(base *url.URL) []Endpoint {
	root := base.Scheme + "://" + base.Host
	candidates := make([]Endpoint, 0, 32)
	for _, typ := range catalogOrder {
		for _, path := range catalog[typ] {
			candidates = append(candidates, Endpoint{
				URL:    root + path,
				Method: "GET",
				Type:   typ,
			})
		}
	}
	return candidates
}

// LooksLikeAPI reports whether a capture-observed URL has an API shape
// worth probing: an /api/ segment, a version segment, or /graphql.
func LooksLikeAPI(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	switch {
	case strings.Contains(path, "/api/"), strings.HasSuffix(path, "/api"):
		return true
	case versionSegment.MatchString(path):
		return true
	case strings.Contains(path, "/graphql"):
		return true
	}
	return false
}

// ObservedCandidates converts capture-observed URLs on the target host into
// probe candidates. Observed URLs carry no catalog group, so their type is
// unknown. WebSocket URLs keep their scheme and are verified by dialing.
func ObservedCandidates(base *url.URL, observed []string) []Endpoint {
	candidates := make([]Endpoint, 0, len(observed))
	for _, raw := range observed {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		if !sameHost(u.Host, base.Host) {
			continue
		}
		isWS := u.Scheme == "ws" || u.Scheme == "wss"
		if !isWS && !LooksLikeAPI(raw) {
			continue
		}
		// Strip query and fragment so probes hit the bare endpoint.
		u.RawQuery = ""
		u.Fragment = ""
		candidates = append(candidates, Endpoint{
			URL:    u.String(),
			Method: "GET",
			Type:   TypeUnknown,
		})
	}
	return candidates
}

// sameHost compares hosts ignoring an explicit default port.
func sameHost(a, b string) bool {
	return strings.EqualFold(stripDefaultPort(a), stripDefaultPort(b))
}

func stripDefaultPort(host string) string {
	host = strings.TrimSuffix(host, ":80")
	return strings.TrimSuffix(host, ":443")
}
