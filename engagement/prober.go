package engagement

import (
	"strings"
	"time"

	"github.com/so032019/browser-automation/action"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
	"github.com/so032019/browser-automation/selectors"
)

// probe timeouts stay short: the page is already rendered when probing
// runs, so a missing control is genuinely absent, not still loading.
const (
	probeFirstTimeout = 1500 * time.Millisecond
	probeNextTimeout  = 400 * time.Millisecond
)

// per-kind registry keys and recognition patterns.
type kindSelectors struct {
	buttonKey string
	undoKey   string
	// substrings of the accessible label that mean "already engaged"
	engagedLabels []string
	// exact visible button texts that mean "already engaged"
	engagedTexts []string
}

func selectorsFor(kind action.Kind) kindSelectors {
	switch kind {
	case action.Follow:
		return kindSelectors{
			buttonKey:     "follow_button",
			undoKey:       "unfollow_button",
			engagedLabels: []string{"Following", "フォロー中"},
			engagedTexts:  []string{"Following", "フォロー中"},
		}
	case action.Repost:
		return kindSelectors{
			buttonKey:     "repost_button",
			undoKey:       "unretweet_button",
			engagedLabels: []string{"Reposted", "リポスト済み"},
			engagedTexts:  []string{"Reposted", "リポスト済み"},
		}
	case action.Like:
		return kindSelectors{
			buttonKey:     "like_button",
			undoKey:       "unlike_button",
			engagedLabels: []string{"Liked", "いいね済み"},
			engagedTexts:  []string{"Liked", "いいね済み"},
		}
	default:
		return kindSelectors{}
	}
}

// Prober reads the current engagement state of the open post page.
type Prober struct {
	driver   page.Driver
	registry *selectors.Registry
	logger   *logger.Logger
}

// NewProber creates a prober over the given driver and selector registry.
func NewProber(d page.Driver, reg *selectors.Registry, log *logger.Logger) *Prober {
	return &Prober{
		driver:   d,
		registry: reg,
		logger:   log.WithModule("engagement"),
	}
}

// Probe reads the engagement state for all kinds on the current page.
// Probing never fails the session: an unresolvable kind is reported as
// not engaged so the executor re-verifies before acting.
func (p *Prober) Probe() State {
	var s State
	for _, k := range action.All() {
		if p.ProbeKind(k) {
			s.SetEngaged(k)
		}
	}
	p.logger.Debugf("Engagement state: follow=%t repost=%t like=%t", s.Followed, s.Reposted, s.Liked)
	return s
}

// ProbeKind determines whether one kind is already engaged, trying signals
// in priority order and short-circuiting on the first conclusive one:
// an undo control, the aria-pressed attribute, the accessible label, then
// the visible button text.
func (p *Prober) ProbeKind(kind action.Kind) bool {
	ks := selectorsFor(kind)
	if ks.buttonKey == "" {
		return false
	}

	// An undo control only exists when the action is already done.
	if c := p.find(ks.undoKey); c != nil {
		p.logger.Debugf("%s: undo control present, already engaged", kind)
		return true
	}

	c := p.find(ks.buttonKey)
	if c == nil {
		// No control either way; treat as not engaged and let the
		// executor's own verification decide.
		p.logger.Debugf("%s: no engagement control found", kind)
		return false
	}

	if pressed, ok := c.Attribute("aria-pressed"); ok {
		switch pressed {
		case "true":
			return true
		case "false":
			return false
		}
	}

	if label, ok := c.Attribute("aria-label"); ok {
		for _, pat := range ks.engagedLabels {
			if strings.Contains(label, pat) {
				return true
			}
		}
	}

	if text, err := c.Text(); err == nil {
		trimmed := strings.TrimSpace(text)
		for _, et := range ks.engagedTexts {
			if trimmed == et {
				return true
			}
		}
	}

	return false
}

// find tries each registered candidate in order with a bounded wait and
// returns the first visible match, or nil.
func (p *Prober) find(key string) page.Control {
	timeout := probeFirstTimeout
	for _, sel := range p.registry.Lookup(selectors.CategoryPostActions, key) {
		c, err := p.driver.Find(sel, timeout)
		if err == nil && c.Visible() {
			return c
		}
		timeout = probeNextTimeout
	}
	return nil
}
