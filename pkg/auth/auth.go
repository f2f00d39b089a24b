// Package auth performs a best-effort form login before a crawl
// starts. The flow is heuristic: probe ordered selector candidates for
// the username and password fields, type the credentials, then submit
// via the first matching button or an Enter keypress. Callers treat a
// failure here as a warning, not a fatal error; the crawl continues
// unauthenticated.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitehawk/sitehawk/pkg/browser"
	"github.com/sitehawk/sitehawk/pkg/defaults"
)

// Credentials configures the login flow. Authentication runs only when
// Enabled reports true.
type Credentials struct {
	LoginURL string `json:"login_url,omitempty" yaml:"login_url,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Enabled reports whether the credentials are complete enough to try.
func (c Credentials) Enabled() bool {
	return c.LoginURL != "" && c.Username != ""
}

// Probe order matters: the specific selectors come first so a page
// with several text inputs gets its dedicated login field, and the
// loose type-based fallbacks only fire when nothing better matched.
var usernameSelectors = []string{
	`input[name="username"]`,
	`input[name="email"]`,
	`input[name="login"]`,
	`input[name="user"]`,
	`input[id="username"]`,
	`input[id="email"]`,
	`input[type="email"]`,
	`input[type="text"]`,
}

var passwordSelectors = []string{
	`input[name="password"]`,
	`input[name="pass"]`,
	`input[name="pwd"]`,
	`input[id="password"]`,
	`input[type="password"]`,
}

var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button[name="login"]`,
	`button[id="login"]`,
	`form button`,
}

var (
	// ErrNoUsernameField means no username selector candidate matched.
	ErrNoUsernameField = errors.New("auth: no username field found on login page")

	// ErrNoPasswordField means no password selector candidate matched.
	ErrNoPasswordField = errors.New("auth: no password field found on login page")
)

// Authenticate loads the login page on page and walks the heuristic
// flow. It returns an error when either credential field cannot be
// located or the browser fails; on success the page session carries
// the authenticated cookies for the rest of the crawl.
func Authenticate(ctx context.Context, page browser.Page, creds Credentials) error {
	if _, err := page.Navigate(ctx, creds.LoginURL); err != nil {
		return fmt.Errorf("load login page: %w", err)
	}

	if _, err := fillFirst(ctx, page, usernameSelectors, creds.Username); err != nil {
		if errors.Is(err, errNoMatch) {
			return ErrNoUsernameField
		}
		return err
	}

	passSel, err := fillFirst(ctx, page, passwordSelectors, creds.Password)
	if err != nil {
		if errors.Is(err, errNoMatch) {
			return ErrNoPasswordField
		}
		return err
	}

	for _, sel := range submitSelectors {
		clicked, err := page.Click(ctx, sel)
		if err != nil {
			return fmt.Errorf("submit login form: %w", err)
		}
		if clicked {
			return waitForNavigation(ctx)
		}
	}

	// No submit control matched; Enter in the password field submits
	// most login forms.
	if err := page.PressEnter(ctx, passSel); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	return waitForNavigation(ctx)
}

var errNoMatch = errors.New("auth: no selector matched")

// fillFirst types value into the first selector candidate present on
// the page and returns which one matched.
func fillFirst(ctx context.Context, page browser.Page, selectors []string, value string) (string, error) {
	for _, sel := range selectors {
		filled, err := page.Fill(ctx, sel, value)
		if err != nil {
			return "", fmt.Errorf("fill %s: %w", sel, err)
		}
		if filled {
			return sel, nil
		}
	}
	return "", errNoMatch
}

var navigationWait = defaults.AuthNavigationWait

// waitForNavigation gives the post-submit redirect a moment to land.
func waitForNavigation(ctx context.Context) error {
	select {
	case <-time.After(navigationWait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
