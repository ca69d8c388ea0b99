package locator

import (
	"testing"
)

// ===== Field Classification Tests =====

func TestClassifyHTMLStandardLoginForm(t *testing.T) {
	html := `<html><body>
	<form action="/login" method="post">
	  <input type="hidden" name="csrf_token" value="abc">
	  <input type="email" name="email" id="email" placeholder="Email">
	  <input type="password" name="password" id="password">
	  <button type="submit">Sign in</button>
	</form>
	</body></html>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatalf("ClassifyHTML: %v", err)
	}

	if !c.Complete {
		t.Fatal("classification should be complete")
	}
	if c.Identity == nil || c.Identity.Role != RoleEmail || c.Identity.Selector != "#email" {
		t.Errorf("identity = %+v", c.Identity)
	}
	if c.Password == nil || c.Password.Selector != "#password" {
		t.Errorf("password = %+v", c.Password)
	}
	if c.CSRF == nil || c.CSRF.Role != RoleCSRF {
		t.Errorf("csrf = %+v", c.CSRF)
	}
	if c.Submit == nil {
		t.Error("submit not found")
	}
}

func TestClassifyHTMLUsernameForm(t *testing.T) {
	html := `<form>
	  <input type="text" name="username">
	  <input type="password" name="pass">
	  <input type="submit" value="Login">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Identity == nil || c.Identity.Role != RoleUsername {
		t.Errorf("identity = %+v", c.Identity)
	}
	// no id or name on the submit input, so the type selector is used
	if c.Submit == nil || c.Submit.Selector != "input[type='submit']" {
		t.Errorf("submit = %+v", c.Submit)
	}
}

func TestClassifyPasswordTypeIsAuthoritative(t *testing.T) {
	// A password input whose name mentions "email" stays a password field.
	html := `<form>
	  <input type="text" name="user">
	  <input type="password" name="email_password">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Password == nil {
		t.Fatal("password field not found")
	}
	if c.Password.Attributes["name"] != "email_password" {
		t.Errorf("password = %+v", c.Password)
	}
}

func TestClassifySearchBoxIsNotIdentity(t *testing.T) {
	html := `<form>
	  <input type="text" name="q" placeholder="Search products">
	  <input type="text" name="email">
	  <input type="password" name="password">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Identity == nil {
		t.Fatal("identity not found")
	}
	if c.Identity.Attributes["name"] != "email" {
		t.Errorf("search box misclassified as identity: %+v", c.Identity)
	}
}

func TestClassifyEmailBeatsUsername(t *testing.T) {
	html := `<form>
	  <input type="text" name="username">
	  <input type="email" name="email">
	  <input type="password" name="password">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Identity == nil || c.Identity.Role != RoleEmail {
		t.Errorf("email field should win over username: %+v", c.Identity)
	}
}

func TestClassifyEmailTypeAloneIsNotIdentity(t *testing.T) {
	// Identity roles need a keyword match; a contact field that happens to
	// be type=email must not be mistaken for the login identity.
	html := `<form>
	  <input type="email" name="contact">
	  <input type="text" name="username">
	  <input type="password" name="password">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Identity == nil || c.Identity.Role != RoleUsername {
		t.Errorf("identity = %+v, want the username field", c.Identity)
	}
	for _, f := range c.Fields {
		if f.Attributes["name"] == "contact" && f.Role != RoleOther {
			t.Errorf("contact field classified as %s", f.Role)
		}
	}
}

func TestClassifyTelInputIsNotIdentity(t *testing.T) {
	html := `<form>
	  <input type="tel" name="username">
	  <input type="text" name="email">
	  <input type="password" name="password">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Identity == nil || c.Identity.Attributes["name"] != "email" {
		t.Errorf("identity = %+v, want the text email field", c.Identity)
	}
	for _, f := range c.Fields {
		if f.Attributes["type"] == "tel" && f.Role != RoleOther {
			t.Errorf("tel field classified as %s", f.Role)
		}
	}
}

func TestClassifyHTMLNoForm(t *testing.T) {
	html := `<html><body><div id="app"></div></body></html>`

	_, err := ClassifyHTML(html)
	if err == nil {
		t.Fatal("expected error for markup without a form")
	}
	if _, ok := err.(ErrNoForm); !ok {
		t.Errorf("error type = %T", err)
	}
}

func TestClassifyHTMLPicksPasswordForm(t *testing.T) {
	// The search form comes first; the login form must win.
	html := `
	<form action="/search"><input type="text" name="q"></form>
	<form action="/login">
	  <input type="email" name="email">
	  <input type="password" name="password">
	</form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Complete {
		t.Error("login form should classify completely")
	}
	if c.Password == nil {
		t.Error("password field from the second form not found")
	}
}

func TestClassifyInputsIgnoresFormBoundaries(t *testing.T) {
	// SPA-style markup with no form element at all.
	html := `<div class="login-panel">
	  <input type="text" id="user-field" placeholder="Username">
	  <input type="password" id="pass-field">
	  <button>Log in</button>
	</div>`

	c, err := ClassifyInputs(html)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Complete {
		t.Fatal("free-floating inputs should classify")
	}
	if c.Identity.Selector != "#user-field" {
		t.Errorf("identity selector = %s", c.Identity.Selector)
	}
	if c.Submit == nil {
		t.Error("first button should become the submit control")
	}
}

func TestClassifyIncompleteWithoutPassword(t *testing.T) {
	html := `<form><input type="text" name="email"></form>`

	c, err := ClassifyHTML(html)
	if err != nil {
		t.Fatal(err)
	}
	if c.Complete {
		t.Error("classification without a password field must be incomplete")
	}
}

func TestDynamicFallback(t *testing.T) {
	c := DynamicFallback()

	if !c.Complete {
		t.Error("fallback must be usable")
	}
	if c.Identity == nil || c.Password == nil || c.Submit == nil {
		t.Fatalf("fallback slots missing: %+v", c)
	}
	if c.Password.Selector != "input[type='password']" {
		t.Errorf("password selector = %s", c.Password.Selector)
	}
}

func TestSelectorPriority(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		want  string
	}{
		{"id wins", map[string]string{"id": "login", "name": "user", "type": "text"}, "#login"},
		{"name next", map[string]string{"name": "user", "type": "text"}, "input[name='user']"},
		{"type last", map[string]string{"type": "password"}, "input[type='password']"},
		{"bare tag", map[string]string{}, "input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectorFor("input", tt.attrs); got != tt.want {
				t.Errorf("selectorFor() = %s, want %s", got, tt.want)
			}
		})
	}
}
