package engagement

import (
	"time"

	"github.com/so032019/browser-automation/action"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
	"github.com/so032019/browser-automation/selectors"
)

const (
	findTimeout    = 3 * time.Second
	confirmTimeout = 2 * time.Second
)

// Clicker performs a (humanized) click. Satisfied by stealth.Humanizer.
type Clicker interface {
	Click(c page.Control) error
}

// Pacer sleeps the inter-action interval. Satisfied by delay.Manager.
type Pacer interface {
	WaitActionInterval(kind action.Kind)
}

// localized button texts used as a last-resort lookup when every CSS
// candidate missed.
var fallbackTexts = map[action.Kind][]string{
	action.Follow: {"フォロー", "Follow"},
	action.Repost: {"リポスト", "Repost"},
	action.Like:   {"いいね", "Like"},
}

// Executor performs engagement actions on the open post page. Execution is
// idempotent: state is verified immediately before clicking, and an
// already-engaged kind reports success without touching the page.
type Executor struct {
	driver    page.Driver
	registry  *selectors.Registry
	prober    *Prober
	humanizer Clicker
	delays    Pacer
	logger    *logger.Logger
}

// NewExecutor creates an executor sharing the prober's driver and registry.
func NewExecutor(d page.Driver, reg *selectors.Registry, hum Clicker, pacer Pacer, log *logger.Logger) *Executor {
	return &Executor{
		driver:    d,
		registry:  reg,
		prober:    NewProber(d, reg, log),
		humanizer: hum,
		delays:    pacer,
		logger:    log.WithModule("engagement"),
	}
}

// Execute performs one engagement action and reports whether the post ends
// up engaged for that kind. It returns true both for a fresh click and for
// a kind found already engaged; false means the action could not be done.
// Execute never panics; any runtime failure is reported as false.
func (e *Executor) Execute(kind action.Kind) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Recovered during %s execution: %v", kind, r)
			done = false
		}
	}()

	// Re-verify right before acting; the page may have changed since the
	// orchestrator's probe.
	if e.prober.ProbeKind(kind) {
		e.logger.EngagementAction(kind.String(), true, true)
		return true
	}

	c := e.findControl(kind)
	if c == nil {
		e.logger.Warnf("No %s control found", kind)
		e.logger.EngagementAction(kind.String(), false, false)
		return false
	}

	if err := e.humanizer.Click(c); err != nil {
		e.logger.WithError(err).Errorf("Failed to click %s control", kind)
		e.logger.EngagementAction(kind.String(), false, false)
		return false
	}

	if kind == action.Repost {
		e.confirmRepost()
	}

	e.delays.WaitActionInterval(kind)
	e.logger.EngagementAction(kind.String(), true, false)
	return true
}

// findControl tries the registered CSS candidates in order, then falls back
// to a text lookup over generic button containers.
func (e *Executor) findControl(kind action.Kind) page.Control {
	ks := selectorsFor(kind)

	timeout := findTimeout
	for _, sel := range e.registry.Lookup(selectors.CategoryPostActions, ks.buttonKey) {
		c, err := e.driver.Find(sel, timeout)
		if err == nil && c.Visible() {
			return c
		}
		timeout = probeNextTimeout
	}

	for _, text := range fallbackTexts[kind] {
		c, err := e.driver.FindByText(`div[role="button"], button`, text, probeNextTimeout)
		if err == nil && c.Visible() {
			e.logger.Debugf("%s control found via text fallback %q", kind, text)
			return c
		}
	}

	return nil
}

// confirmRepost clicks the confirmation menu item that opens after the
// repost button. When no confirmation appears the click is assumed to have
// hit an already-reposted state, which is logged but not treated as a
// failure.
func (e *Executor) confirmRepost() {
	timeout := confirmTimeout
	for _, sel := range e.registry.Lookup(selectors.CategoryPostActions, "repost_confirm") {
		c, err := e.driver.Find(sel, timeout)
		if err == nil && c.Visible() {
			if err := e.humanizer.Click(c); err != nil {
				e.logger.WithError(err).Warn("Failed to click repost confirmation")
			}
			return
		}
		timeout = probeNextTimeout
	}

	for _, text := range []string{"リポスト", "Repost"} {
		c, err := e.driver.FindByText(`div[role="menuitem"]`, text, probeNextTimeout)
		if err == nil && c.Visible() {
			if err := e.humanizer.Click(c); err != nil {
				e.logger.WithError(err).Warn("Failed to click repost confirmation")
			}
			return
		}
	}

	e.logger.Debug("No repost confirmation appeared, assuming already reposted")
}
