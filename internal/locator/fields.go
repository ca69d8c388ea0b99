package locator

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldRole is the semantic classification of a form input.
type FieldRole string

const (
	RoleEmail    FieldRole = "email"
	RoleUsername FieldRole = "username"
	RolePassword FieldRole = "password"
	RoleSubmit   FieldRole = "submit"
	RoleCSRF     FieldRole = "csrf"
	RoleOther    FieldRole = "other"
)

// CandidateField is a classified form input. Immutable once classified;
// the browser driver consumes the selector to fill or click it.
type CandidateField struct {
	Role       FieldRole
	Selector   string
	Attributes map[string]string
}

// Classification is the result of classifying a page's inputs.
type Classification struct {
	Fields   []CandidateField
	Identity *CandidateField // email or username field
	Password *CandidateField
	Submit   *CandidateField
	CSRF     *CandidateField
	// Complete is true when both an identity field and a password field
	// were found. Incomplete classification triggers the browser-driven
	// dynamic fallback.
	Complete bool
}

// Keyword lists for attribute matching. Matching is substring-based over
// the lowercased name, id, and placeholder attributes.
var (
	emailKeywords    = []string{"email", "e-mail", "mail", "correo", "courriel"}
	usernameKeywords = []string{"user", "username", "login", "account", "uid", "identifier", "nick"}
	csrfKeywords     = []string{"csrf", "xsrf", "token", "nonce", "authenticity", "verification", "antiforgery"}
)

// fieldRule is one named classification predicate. Rules run in order and
// the first match wins, so priority is the slice order below.
type fieldRule struct {
	name  string
	match func(attrs map[string]string) (FieldRole, bool)
}

// classificationRules is the ordered rule list. The password rule runs
// first: type=password is authoritative and never reclassified.
var classificationRules = []fieldRule{
	{
		name: "password_type",
		match: func(attrs map[string]string) (FieldRole, bool) {
			if attrs["type"] == "password" {
				return RolePassword, true
			}
			return RoleOther, false
		},
	},
	{
		name: "csrf_hidden",
		match: func(attrs map[string]string) (FieldRole, bool) {
			if attrs["type"] != "hidden" {
				return RoleOther, false
			}
			if matchesAny(attrs["name"], csrfKeywords) {
				return RoleCSRF, true
			}
			return RoleOther, false
		},
	},
	{
		name: "email_keyword",
		match: func(attrs map[string]string) (FieldRole, bool) {
			if !isTextLike(attrs["type"]) {
				return RoleOther, false
			}
			if matchesAnyAttr(attrs, emailKeywords) {
				return RoleEmail, true
			}
			return RoleOther, false
		},
	},
	{
		name: "username_keyword",
		match: func(attrs map[string]string) (FieldRole, bool) {
			if !isTextLike(attrs["type"]) {
				return RoleOther, false
			}
			if matchesAnyAttr(attrs, usernameKeywords) {
				return RoleUsername, true
			}
			return RoleOther, false
		},
	},
	{
		name: "submit_type",
		match: func(attrs map[string]string) (FieldRole, bool) {
			if attrs["type"] == "submit" {
				return RoleSubmit, true
			}
			return RoleOther, false
		},
	},
}

// isTextLike reports whether the input type can carry an identity value.
// An absent type attribute defaults to text per the HTML standard. The
// identity rules additionally require a keyword match on name, id, or
// placeholder, so a bare type=email field alone is not enough.
func isTextLike(inputType string) bool {
	return inputType == "" || inputType == "text" || inputType == "email"
}

func matchesAny(value string, keywords []string) bool {
	lower := strings.ToLower(value)
	if lower == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// matchesAnyAttr checks name, id, and placeholder against the keywords.
func matchesAnyAttr(attrs map[string]string, keywords []string) bool {
	return matchesAny(attrs["name"], keywords) ||
		matchesAny(attrs["id"], keywords) ||
		matchesAny(attrs["placeholder"], keywords)
}

// ErrNoForm is returned when the server-rendered markup contains no form
// element. The pipeline re-renders through the browser and retries once.
type ErrNoForm struct{}

func (ErrNoForm) Error() string { return "no form element found in markup" }

// ClassifyHTML parses the page markup and classifies the login form's
// inputs. When multiple forms exist, the form containing a password input
// wins; otherwise the first form is used.
func ClassifyHTML(html string) (*Classification, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	forms := doc.Find("form")
	if forms.Length() == 0 {
		return nil, ErrNoForm{}
	}

	form := pickLoginForm(forms)
	return classify(form.Find("input"), form.Find("button")), nil
}

// ClassifyInputs classifies inputs anywhere in the markup, ignoring form
// boundaries. Used on the dynamic DOM after a browser re-render, where SPA
// login fields commonly float free of form elements.
func ClassifyInputs(html string) (*Classification, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return classify(doc.Find("input"), doc.Find("button")), nil
}

// classify runs every input through the ordered rule list, then resolves
// the role slots. Exactly one submit control is selected: an explicit
// type=submit input wins, else the first button near the fields.
func classify(inputs, buttons *goquery.Selection) *Classification {
	fields := make([]CandidateField, 0, 8)

	inputs.Each(func(_ int, sel *goquery.Selection) {
		attrs := attributesOf(sel)
		role := RoleOther
		for _, rule := range classificationRules {
			if r, ok := rule.match(attrs); ok {
				role = r
				break
			}
		}
		fields = append(fields, CandidateField{
			Role:       role,
			Selector:   selectorFor("input", attrs),
			Attributes: attrs,
		})
	})

	hasSubmit := false
	for _, f := range fields {
		if f.Role == RoleSubmit {
			hasSubmit = true
			break
		}
	}
	if !hasSubmit && buttons != nil && buttons.Length() > 0 {
		attrs := attributesOf(buttons.First())
		fields = append(fields, CandidateField{
			Role:       RoleSubmit,
			Selector:   selectorFor("button", attrs),
			Attributes: attrs,
		})
	}

	c := &Classification{Fields: fields}
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Role {
		case RolePassword:
			if c.Password == nil {
				c.Password = field
			}
		case RoleEmail:
			// Email beats username when both are present.
			if c.Identity == nil || c.Identity.Role == RoleUsername {
				c.Identity = field
			}
		case RoleUsername:
			if c.Identity == nil {
				c.Identity = field
			}
		case RoleSubmit:
			if c.Submit == nil {
				c.Submit = field
			}
		case RoleCSRF:
			if c.CSRF == nil {
				c.CSRF = field
			}
		}
	}

	c.Complete = c.Identity != nil && c.Password != nil
	return c
}

// pickLoginForm returns the form containing a password input, or the first
// form when none does.
func pickLoginForm(forms *goquery.Selection) *goquery.Selection {
	var found *goquery.Selection
	forms.EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if form.Find("input[type='password']").Length() > 0 {
			found = form
			return false
		}
		return true
	})
	if found != nil {
		return found
	}
	return forms.First()
}

// attributesOf collects the attributes relevant to classification.
func attributesOf(sel *goquery.Selection) map[string]string {
	attrs := make(map[string]string, 4)
	for _, key := range []string{"type", "name", "id", "placeholder", "value", "class"} {
		if v, ok := sel.Attr(key); ok {
			attrs[key] = v
		}
	}
	return attrs
}

// selectorFor builds the most specific CSS selector available for an
// element: id first, then name, then type.
func selectorFor(tag string, attrs map[string]string) string {
	if id := attrs["id"]; id != "" {
		return "#" + id
	}
	if name := attrs["name"]; name != "" {
		return fmt.Sprintf("%s[name='%s']", tag, name)
	}
	if typ := attrs["type"]; typ != "" {
		return fmt.Sprintf("%s[type='%s']", tag, typ)
	}
	return tag
}

// DynamicFallback returns selector-only candidate fields for the pure
// CSS-probing fallback, used when neither static nor re-rendered markup
// yields a complete classification.
func DynamicFallback() *Classification {
	fields := []CandidateField{
		{Role: RoleEmail, Selector: "input[type='email'], input[name*='email'], input[name*='user']", Attributes: map[string]string{}},
		{Role: RolePassword, Selector: "input[type='password']", Attributes: map[string]string{}},
		{Role: RoleSubmit, Selector: "button[type='submit'], input[type='submit'], button", Attributes: map[string]string{}},
	}
	return &Classification{
		Fields:   fields,
		Identity: &fields[0],
		Password: &fields[1],
		Submit:   &fields[2],
		Complete: true,
	}
}
