package capture

import (
	"net/url"
	"strings"

	"github.com/PentesterFlow/AuthScope/internal/browser"
	"github.com/PentesterFlow/AuthScope/internal/logger"
)

// authKeywords gate the candidate filter: a POST/PUT qualifies when its URL
// mentions one of these or when it carries a body.
var authKeywords = []string{"login", "signin", "auth", "token", "session", "oauth"}

// Body field-name shapes. Matching is textual: the scripted login posts
// known values, so a field name appearing anywhere in the body is signal.
var (
	credentialFieldNames = []string{"email", "password", "passwd", "pwd"}
	usernameFieldNames   = []string{"username", "user", "login"}
)

// scoreRule is one named additive scoring rule. The weights are heuristic
// constants carried over as baseline policy; tuning them is a policy
// change, not a bug fix.
type scoreRule struct {
	name   string
	points int
	match  func(req CapturedRequest) bool
}

var scoreRules = []scoreRule{
	{
		name:   "auth_path_segment",
		points: 10,
		match: func(req CapturedRequest) bool {
			return strings.Contains(strings.ToLower(pathOf(req.URL)), "/auth/")
		},
	},
	{
		name:   "login_keyword",
		points: 8,
		match: func(req CapturedRequest) bool {
			return strings.Contains(strings.ToLower(req.URL), "login")
		},
	},
	{
		name:   "signin_keyword",
		points: 8,
		match: func(req CapturedRequest) bool {
			return strings.Contains(strings.ToLower(req.URL), "signin")
		},
	},
	{
		name:   "token_keyword",
		points: 5,
		match: func(req CapturedRequest) bool {
			return strings.Contains(strings.ToLower(req.URL), "token")
		},
	},
	{
		name:   "session_keyword",
		points: 5,
		match: func(req CapturedRequest) bool {
			return strings.Contains(strings.ToLower(req.URL), "session")
		},
	},
	{
		name:   "json_content_type",
		points: 3,
		match: func(req CapturedRequest) bool {
			return strings.Contains(strings.ToLower(contentTypeOf(req.Headers)), "json")
		},
	},
	{
		name:   "has_body",
		points: 5,
		match: func(req CapturedRequest) bool {
			return req.Body != ""
		},
	},
	{
		name:   "credential_field_in_body",
		points: 10,
		match: func(req CapturedRequest) bool {
			return containsAnyFold(req.Body, credentialFieldNames)
		},
	},
	{
		name:   "username_field_in_body",
		points: 8,
		match: func(req CapturedRequest) bool {
			return containsAnyFold(req.Body, usernameFieldNames)
		},
	},
}

// Scorer picks the genuine login call out of a noisy capture log.
type Scorer struct {
	log *logger.Logger
}

// NewScorer creates a scorer.
func NewScorer(log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.Nop()
	}
	return &Scorer{log: log.WithComponent("capture")}
}

// Select parses the event log, scores candidate requests, and returns the
// capture built from the single best candidate. The second return value is
// false when no candidate scores above zero; that outcome is recoverable
// and the pipeline continues without a login call.
func (s *Scorer) Select(events []browser.RawEvent) (*LoginCapture, bool) {
	requests, responses := ParseLog(events)
	return s.SelectParsed(requests, responses)
}

// SelectParsed scores already parsed records. Ties are broken by earliest
// timestamp: the scripted flow submits exactly one form, so the first
// matching request is the submission.
func (s *Scorer) SelectParsed(requests []CapturedRequest, responses map[string]CapturedResponse) (*LoginCapture, bool) {
	var best *ScoredCandidate
	candidates := 0

	for _, req := range requests {
		if !isCandidate(req) {
			continue
		}
		candidates++

		scored := scoreRequest(req)
		if scored.Score <= 0 {
			continue
		}

		// Earlier timestamp wins on equal score; requests arrive in
		// timestamp order, so strictly-greater keeps the earliest.
		if best == nil || scored.Score > best.Score {
			best = scored
		}
	}

	if best == nil {
		s.log.Info("no login call captured")
		return nil, false
	}

	s.log.CaptureEvent(best.Request.URL, best.Request.Method, best.Score, candidates)

	cap := &LoginCapture{
		SelectedRequest: best.Request,
		Tokens:          make(map[string]string),
	}

	resp, hasResp := responses[best.Request.ID]
	if hasResp {
		extractTokens(cap, best.Request, &resp)
	} else {
		extractTokens(cap, best.Request, nil)
	}

	return cap, true
}

// isCandidate applies the candidate filter: POST or PUT, and either an
// auth-flavored URL or a non-empty body.
func isCandidate(req CapturedRequest) bool {
	if req.Method != "POST" && req.Method != "PUT" {
		return false
	}
	if req.Body != "" {
		return true
	}
	return containsAnyFold(req.URL, authKeywords)
}

// scoreRequest runs every rule and records the ones that fired.
func scoreRequest(req CapturedRequest) *ScoredCandidate {
	scored := &ScoredCandidate{Request: req, Reasons: make([]string, 0, 4)}
	for _, rule := range scoreRules {
		if rule.match(req) {
			scored.Score += rule.points
			scored.Reasons = append(scored.Reasons, rule.name)
		}
	}
	return scored
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

func contentTypeOf(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	return ""
}

func containsAnyFold(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
