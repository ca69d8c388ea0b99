package capture

import (
	"encoding/json"
	"net/http"
	"strings"
)

// jwtSegments is the segment count of a compact JWS/JWT.
const jwtSegments = 3

// extractTokens walks the selected request and its response and records
// every session artifact it can see. First discovery wins per token key;
// later sightings of the same key never overwrite.
func extractTokens(cap *LoginCapture, req CapturedRequest, resp *CapturedResponse) {
	// Bearer token already attached by the app's own JS.
	if auth := headerValue(req.Headers, "Authorization"); auth != "" {
		putToken(cap, "authorization_header", auth)
	}

	if resp == nil {
		return
	}

	if auth := headerValue(resp.Headers, "Authorization"); auth != "" {
		putToken(cap, "authorization_header", auth)
	}

	if setCookie := headerValue(resp.Headers, "Set-Cookie"); setCookie != "" {
		cookies := parseSetCookies(setCookie)
		if len(cookies) > 0 {
			cap.Cookies = append(cap.Cookies, cookies...)
			putToken(cap, "cookies", joinCookiePairs(cookies))
		}
	}

	// JSON response bodies commonly carry the token under access_token,
	// token, jwt, or a nested data object. Rather than guess key names,
	// walk the whole document for JWT-shaped string values.
	if resp.BodySample != "" {
		extractJSONTokens(cap, resp.BodySample)
	}
}

func putToken(cap *LoginCapture, key, value string) {
	if _, exists := cap.Tokens[key]; exists {
		return
	}
	cap.Tokens[key] = value
}

// headerValue does a case-insensitive lookup in a raw header map.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// parseSetCookies parses one or more Set-Cookie lines. The protocol log
// folds multiple cookies into a single newline-joined header value.
func parseSetCookies(raw string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		header := http.Header{"Set-Cookie": []string{line}}
		resp := http.Response{Header: header}
		cookies = append(cookies, resp.Cookies()...)
	}
	return cookies
}

func joinCookiePairs(cookies []*http.Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// extractJSONTokens decodes the body and records every string value shaped
// like a JWT, keyed by its JSON field name. Non-JSON bodies are ignored.
func extractJSONTokens(cap *LoginCapture, body string) {
	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return
	}
	walkJSON(cap, "", doc)
}

func walkJSON(cap *LoginCapture, key string, node interface{}) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			walkJSON(cap, k, child)
		}
	case []interface{}:
		for _, child := range v {
			walkJSON(cap, key, child)
		}
	case string:
		if key != "" && looksLikeJWT(v) {
			putToken(cap, key, v)
		}
	}
}

// looksLikeJWT matches the compact serialization shape: three non-empty
// base64url segments joined by dots.
func looksLikeJWT(s string) bool {
	if len(s) < 20 {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) != jwtSegments {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if !isBase64URLChar(r) {
				return false
			}
		}
	}
	return true
}

func isBase64URLChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '=':
		return true
	}
	return false
}
