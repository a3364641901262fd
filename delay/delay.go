// Package delay implements the randomized delay model used to pace every
// browser interaction. Delays combine a uniform base variation with two
// session-adaptive corrections: a consecutive-action penalty and a burst
// correction for actions fired in quick succession. Every delay request is
// stateful; the manager tracks the session's action rhythm.
package delay

import (
	"math/rand"
	"time"

	"github.com/so032019/browser-automation/action"
	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
)

// minimum floor applied to every computed delay; sleeps are never zero or
// negative.
const epsilon = 100 * time.Millisecond

// Manager produces context-sensitive randomized delays. Not safe for
// concurrent use; the orchestrator owns one instance per session.
type Manager struct {
	cfg    *config.DelayConfig
	logger *logger.Logger
	rand   *rand.Rand

	lastAction  time.Time
	consecutive int

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager creates a delay manager with the given tuning.
func NewManager(cfg *config.DelayConfig, log *logger.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: log.WithModule("delay"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Delay computes an adjusted random delay around base. The result is
// uniform in [base*(1-varianceFactor), base*(1+varianceFactor)], floored at
// a small positive epsilon, then scaled by the consecutive-action penalty
// and widened by the burst correction when the previous action was under
// the burst window ago. Calling Delay records an action: it updates the
// last-action timestamp and increments the consecutive-action counter.
func (m *Manager) Delay(base time.Duration, varianceFactor float64) time.Duration {
	if base < epsilon {
		base = epsilon
	}
	if varianceFactor < 0 || varianceFactor > 1 {
		varianceFactor = m.cfg.VariationFactor
	}

	variation := time.Duration(float64(base) * varianceFactor)
	lower := base - variation
	if lower < epsilon {
		lower = epsilon
	}
	upper := base + variation

	d := m.uniform(lower, upper)

	// Consecutive-action penalty
	if m.consecutive > m.cfg.ConsecutiveLimit {
		multiplier := 1.0 + float64(m.consecutive-m.cfg.ConsecutiveLimit)*m.cfg.ConsecutivePenalty
		d = time.Duration(float64(d) * multiplier)
		m.logger.Debugf("Consecutive action penalty: %.2fx", multiplier)
	}

	// Burst correction
	current := m.now()
	if !m.lastAction.IsZero() {
		elapsed := current.Sub(m.lastAction)
		if elapsed < time.Duration(m.cfg.BurstWindowSeconds*float64(time.Second)) {
			extra := m.uniform(time.Second, 3*time.Second)
			d += extra
			m.logger.Debugf("Burst correction: +%.2fs", extra.Seconds())
		}
	}

	m.lastAction = current
	m.consecutive++

	if d < epsilon {
		d = base
	}

	m.logger.Debugf("Delay: %.2fs (base: %.2fs)", d.Seconds(), base.Seconds())
	return d
}

// Wait computes a delay via Delay and sleeps for it.
func (m *Manager) Wait(base time.Duration, varianceFactor float64) {
	m.sleep(m.Delay(base, varianceFactor))
}

// PageTransition returns a delay for page navigations: a 1-3s base scaled
// by a time-of-day multiplier. Daytime browsing is a little quicker, late
// night noticeably slower. Stateless with respect to the action counters.
func (m *Manager) PageTransition() time.Duration {
	base := m.uniform(time.Second, 3*time.Second)

	var multiplier float64
	hour := m.now().Hour()
	switch {
	case hour >= 9 && hour <= 17:
		multiplier = 0.8 + m.rand.Float64()*0.2
	case hour >= 22 || hour <= 6:
		multiplier = 1.2 + m.rand.Float64()*0.3
	default:
		multiplier = 0.9 + m.rand.Float64()*0.2
	}

	d := time.Duration(float64(base) * multiplier)
	m.logger.Debugf("Page transition delay: %.2fs", d.Seconds())
	return d
}

// WaitPageTransition sleeps for a page-transition delay.
func (m *Manager) WaitPageTransition() {
	m.sleep(m.PageTransition())
}

// Reading returns a delay simulating reading content of the given length.
// A zero or negative length means the length is unknown and a standard
// 2-5s reading time is used. Known lengths scale at roughly 0.05-0.1s per
// character, clamped to [1s, 10s], with a further ±30% variation.
func (m *Manager) Reading(contentLength int) time.Duration {
	var base time.Duration
	if contentLength <= 0 {
		base = m.uniform(2*time.Second, 5*time.Second)
	} else {
		perChar := 0.05 + m.rand.Float64()*0.05
		base = time.Duration(float64(contentLength) * perChar * float64(time.Second))
		if base < time.Second {
			base = time.Second
		}
		if base > 10*time.Second {
			base = 10 * time.Second
		}
	}

	variation := time.Duration(float64(base) * 0.3)
	d := m.uniform(base-variation, base+variation)
	if d < epsilon {
		d = epsilon
	}

	m.logger.Debugf("Reading delay: %.2fs (length: %d)", d.Seconds(), contentLength)
	return d
}

// ActionInterval returns the pacing delay between engagement actions, with
// a distinct base range per kind, passed through the stateful Delay
// adjustment with a 0.4 variance.
func (m *Manager) ActionInterval(kind action.Kind) time.Duration {
	var base time.Duration
	switch kind {
	case action.Follow:
		base = m.uniform(2*time.Second, 4*time.Second)
	case action.Repost:
		base = m.uniform(1500*time.Millisecond, 3*time.Second)
	case action.Like:
		base = m.uniform(time.Second, 2500*time.Millisecond)
	default:
		base = m.uniform(1500*time.Millisecond, 3*time.Second)
	}

	d := m.Delay(base, 0.4)
	m.logger.Debugf("Action interval delay (%s): %.2fs", kind, d.Seconds())
	return d
}

// WaitActionInterval sleeps for an action-interval delay.
func (m *Manager) WaitActionInterval(kind action.Kind) {
	m.sleep(m.ActionInterval(kind))
}

// InterPost returns the pause between two posts, drawn from the configured
// range and passed through the stateful Delay adjustment.
func (m *Manager) InterPost() time.Duration {
	base := m.uniform(
		time.Duration(m.cfg.InterPostMinSeconds*float64(time.Second)),
		time.Duration(m.cfg.InterPostMaxSeconds*float64(time.Second)),
	)
	return m.Delay(base, 0.3)
}

// WaitInterPost sleeps for an inter-post delay.
func (m *Manager) WaitInterPost() {
	m.sleep(m.InterPost())
}

// Scroll returns a flat 0.5-1.5s scroll pause. Stateless.
func (m *Manager) Scroll() time.Duration {
	d := m.uniform(500*time.Millisecond, 1500*time.Millisecond)
	m.logger.Debugf("Scroll delay: %.2fs", d.Seconds())
	return d
}

// WaitScroll sleeps for a scroll delay.
func (m *Manager) WaitScroll() {
	m.sleep(m.Scroll())
}

// Reset clears the session rhythm state. Counter and timestamp are always
// reinitialized together.
func (m *Manager) Reset() {
	m.lastAction = time.Time{}
	m.consecutive = 0
	m.logger.Info("Delay session reset")
}

// ConsecutiveActions returns the number of delay-recorded actions since the
// last reset.
func (m *Manager) ConsecutiveActions() int {
	return m.consecutive
}

// LastActionAt returns the timestamp of the most recent recorded action.
func (m *Manager) LastActionAt() time.Time {
	return m.lastAction
}

func (m *Manager) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(m.rand.Int63n(int64(max-min)))
}
