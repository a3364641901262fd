// Package auth handles the x.com login flow: restoring a previous session
// from cookies when possible, otherwise walking the multi-step login form
// with humanized typing. Verification challenges and captchas are detected
// and surfaced as sentinel errors; they require a human and are never
// solved automatically.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
	"github.com/so032019/browser-automation/selectors"
)

var (
	// ErrLoginFailed means the credentials were rejected or the flow never
	// reached a logged-in state.
	ErrLoginFailed = errors.New("auth: login failed")

	// ErrVerificationRequired means the site asked for additional identity
	// confirmation (email or phone code).
	ErrVerificationRequired = errors.New("auth: verification challenge requires manual intervention")

	// ErrCaptchaRequired means a captcha blocked the login.
	ErrCaptchaRequired = errors.New("auth: captcha challenge requires manual intervention")
)

const (
	loginURL = "https://x.com/login"
	homeURL  = "https://x.com/home"

	stepTimeout  = 10 * time.Second
	checkTimeout = 3 * time.Second
)

// Typer performs humanized clicking and typing. Satisfied by
// stealth.Humanizer.
type Typer interface {
	Click(c page.Control) error
	Type(c page.Control, text string) error
}

// Pacer supplies navigation pacing. Satisfied by delay.Manager.
type Pacer interface {
	WaitPageTransition()
	Wait(base time.Duration, varianceFactor float64)
}

// Manager drives authentication for one account.
type Manager struct {
	driver    page.Driver
	registry  *selectors.Registry
	humanizer Typer
	delays    Pacer
	account   *config.AccountConfig
	logger    *logger.Logger
}

// NewManager creates an auth manager.
func NewManager(d page.Driver, reg *selectors.Registry, hum Typer, pacer Pacer, account *config.AccountConfig, log *logger.Logger) *Manager {
	return &Manager{
		driver:    d,
		registry:  reg,
		humanizer: hum,
		delays:    pacer,
		account:   account,
		logger:    log.WithModule("auth"),
	}
}

// IsLoggedIn reports whether the current page shows a logged-in session.
func (m *Manager) IsLoggedIn() bool {
	for _, sel := range m.registry.Lookup(selectors.CategoryLogin, "logged_in_indicator") {
		if c, err := m.driver.Find(sel, checkTimeout); err == nil && c.Visible() {
			return true
		}
	}
	return false
}

// RestoreSession opens the home timeline and reports whether the restored
// cookies produced a live session.
func (m *Manager) RestoreSession() bool {
	if err := m.driver.Navigate(homeURL); err != nil {
		m.logger.WithError(err).Debug("Failed to open home for session check")
		return false
	}
	m.delays.WaitPageTransition()

	if m.IsLoggedIn() {
		m.logger.Info("Session restored from cookies")
		return true
	}
	m.logger.Info("Stored session is no longer valid")
	return false
}

// Login walks the login form. The flow is multi-step: username first, a
// Next control, then the password field and the submit control. Each step
// uses humanized typing so the form's timing telemetry looks organic.
func (m *Manager) Login() error {
	m.logger.Infof("Logging in as %s", m.account.Username)

	if err := m.driver.Navigate(loginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	m.delays.WaitPageTransition()

	username := m.findLoginControl("username_input")
	if username == nil {
		if m.IsLoggedIn() {
			m.logger.Info("Already logged in")
			return nil
		}
		return fmt.Errorf("%w: username field not found", ErrLoginFailed)
	}

	if err := m.humanizer.Type(username, m.account.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := m.clickNext(); err != nil {
		return err
	}
	m.delays.Wait(2*time.Second, 0.3)

	if err := m.checkChallenges(); err != nil {
		return err
	}

	password := m.findLoginControl("password_input")
	if password == nil {
		return fmt.Errorf("%w: password field not found", ErrLoginFailed)
	}
	if err := m.humanizer.Type(password, m.account.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}

	if err := m.clickSubmit(); err != nil {
		return err
	}
	m.delays.WaitPageTransition()

	if err := m.checkChallenges(); err != nil {
		return err
	}

	if !m.IsLoggedIn() {
		m.logger.SecurityEvent("login_failed", "no logged-in indicator after submit")
		return ErrLoginFailed
	}

	m.logger.Info("Login successful")
	return nil
}

// clickNext advances the multi-step form. The Next control has no stable
// test id, so it is located by its visible text in both languages.
func (m *Manager) clickNext() error {
	for _, text := range []string{"Next", "次へ"} {
		c, err := m.driver.FindByText(`div[role="button"]`, text, checkTimeout)
		if err == nil && c.Visible() {
			if err := m.humanizer.Click(c); err != nil {
				return fmt.Errorf("failed to click next: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: next control not found", ErrLoginFailed)
}

func (m *Manager) clickSubmit() error {
	for _, sel := range m.registry.Lookup(selectors.CategoryLogin, "login_button") {
		c, err := m.driver.Find(sel, checkTimeout)
		if err == nil && c.Visible() {
			if err := m.humanizer.Click(c); err != nil {
				return fmt.Errorf("failed to click login: %w", err)
			}
			return nil
		}
	}

	for _, text := range []string{"Log in", "ログイン"} {
		c, err := m.driver.FindByText(`div[role="button"]`, text, checkTimeout)
		if err == nil && c.Visible() {
			if err := m.humanizer.Click(c); err != nil {
				return fmt.Errorf("failed to click login: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: login control not found", ErrLoginFailed)
}

// checkChallenges detects blocking challenges. They are reported, never
// solved; the operator has to finish them by hand.
func (m *Manager) checkChallenges() error {
	if c, err := m.driver.Find(`input[data-testid="ocfEnterTextTextInput"]`, time.Second); err == nil && c.Visible() {
		m.logger.SecurityEvent("verification_challenge", "identity confirmation requested")
		return ErrVerificationRequired
	}

	for _, sel := range []string{`iframe[src*="arkoselabs"]`, `#arkose_iframe`} {
		if c, err := m.driver.Find(sel, time.Second); err == nil && c.Visible() {
			m.logger.SecurityEvent("captcha_challenge", "arkose captcha shown")
			return ErrCaptchaRequired
		}
	}
	return nil
}

func (m *Manager) findLoginControl(key string) page.Control {
	timeout := stepTimeout
	for _, sel := range m.registry.Lookup(selectors.CategoryLogin, key) {
		c, err := m.driver.Find(sel, timeout)
		if err == nil && c.Visible() {
			return c
		}
		timeout = checkTimeout
	}
	return nil
}
