// Package filler provides the disguise action library: low-stakes browsing
// behaviors woven between engagement actions so the session's click stream
// looks like a person wandering the site. Filler actions are best-effort
// decorations; they never fail the session.
package filler

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
	"github.com/so032019/browser-automation/selectors"
)

const homeURL = "https://x.com/home"

// Kind identifies a filler behavior.
type Kind int

const (
	HomeBrowsing Kind = iota
	PostReading
	ReplyChecking
	PreActionWait
	PostActionWait
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case HomeBrowsing:
		return "home_browsing"
	case PostReading:
		return "post_reading"
	case ReplyChecking:
		return "reply_checking"
	case PreActionWait:
		return "pre_action_wait"
	case PostActionWait:
		return "post_action_wait"
	default:
		return "unknown"
	}
}

// Outcome describes one filler run. Err is informational; a failed filler
// run never propagates as a session error.
type Outcome struct {
	Kind      Kind
	Executed  bool
	Duration  time.Duration
	Succeeded bool
	Err       error
}

// Scroller performs humanized scrolling. Satisfied by stealth.Humanizer.
type Scroller interface {
	Scroll(totalY float64) error
}

// Pacer supplies the browsing-rhythm delays. Satisfied by delay.Manager.
type Pacer interface {
	WaitScroll()
	WaitPageTransition()
	Reading(contentLength int) time.Duration
}

// Executor runs filler behaviors over the current page.
type Executor struct {
	driver   page.Driver
	registry *selectors.Registry
	scroller Scroller
	delays   Pacer
	cfg      *config.FillerConfig
	logger   *logger.Logger
	rand     *rand.Rand

	sleep func(time.Duration)
}

// NewExecutor creates a filler executor.
func NewExecutor(d page.Driver, reg *selectors.Registry, sc Scroller, pacer Pacer, cfg *config.FillerConfig, log *logger.Logger) *Executor {
	return &Executor{
		driver:   d,
		registry: reg,
		scroller: sc,
		delays:   pacer,
		cfg:      cfg,
		logger:   log.WithModule("filler"),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    time.Sleep,
	}
}

// Run executes one filler behavior and reports its outcome. Run never
// panics and never returns without an Outcome; errors are captured in the
// outcome and logged, nothing more.
func (e *Executor) Run(kind Kind) (out Outcome) {
	start := time.Now()
	out = Outcome{Kind: kind, Executed: true}

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("filler %s panicked: %v", kind, r)
			out.Succeeded = false
		}
		out.Duration = time.Since(start)
		e.logger.FillerAction(kind.String(), out.Executed, out.Duration.Seconds())
	}()

	var err error
	switch kind {
	case HomeBrowsing:
		err = e.homeBrowsing()
	case PostReading:
		err = e.postReading()
	case ReplyChecking:
		err = e.replyChecking()
	case PreActionWait:
		e.sleep(e.randomSeconds(e.cfg.PreActionWaitMin, e.cfg.PreActionWaitMax))
	case PostActionWait:
		e.sleep(e.randomSeconds(e.cfg.PostActionWaitMin, e.cfg.PostActionWaitMax))
	default:
		out.Executed = false
		return out
	}

	out.Err = err
	out.Succeeded = err == nil
	return out
}

// DoubleCheckScroll is the small up-then-down glance occasionally inserted
// after an action, as if confirming it landed.
func (e *Executor) DoubleCheckScroll() {
	_ = e.scroller.Scroll(-(100 + e.rand.Float64()*100))
	e.delays.WaitScroll()
	_ = e.scroller.Scroll(100 + e.rand.Float64()*100)
}

// homeBrowsing visits the home timeline, scrolls through it a few times
// and glances at one or two posts before the session moves on.
func (e *Executor) homeBrowsing() error {
	returnURL := e.driver.CurrentURL()

	if err := e.driver.Navigate(homeURL); err != nil {
		return fmt.Errorf("failed to open home timeline: %w", err)
	}
	e.delays.WaitPageTransition()

	nscrolls := e.randomCount(e.cfg.HomeScrollCountMin, e.cfg.HomeScrollCountMax)
	for i := 0; i < nscrolls; i++ {
		if err := e.scroller.Scroll(300 + e.rand.Float64()*500); err != nil {
			return err
		}
		e.delays.WaitScroll()
	}

	e.glanceAtPosts()

	if returnURL != "" && returnURL != homeURL {
		if err := e.driver.Navigate(returnURL); err != nil {
			return fmt.Errorf("failed to return from home timeline: %w", err)
		}
		e.delays.WaitPageTransition()
	}
	return nil
}

// glanceAtPosts pauses on 1-2 visible posts as if skimming them.
func (e *Executor) glanceAtPosts() {
	var posts []page.Control
	for _, sel := range e.registry.Lookup(selectors.CategoryTimeline, "article_container") {
		found, err := e.driver.FindAll(sel)
		if err == nil && len(found) > 0 {
			posts = found
			break
		}
	}
	if len(posts) == 0 {
		return
	}

	nglances := 1 + e.rand.Intn(2)
	for i := 0; i < nglances && i < len(posts); i++ {
		p := posts[e.rand.Intn(len(posts))]
		length := 0
		if text, err := p.Text(); err == nil {
			length = len(text)
		}
		e.sleep(e.delays.Reading(length))
	}
}

// postReading dwells on the current post for a reading-sized span filled
// with micro-scrolls and, when the post has images, a longer look at them.
func (e *Executor) postReading() error {
	target := e.randomSeconds(e.cfg.PostReadingDurationMin, e.cfg.PostReadingDurationMax)
	start := time.Now()

	nscrolls := 1 + e.rand.Intn(3)
	for i := 0; i < nscrolls; i++ {
		dy := 100 + e.rand.Float64()*200
		if e.rand.Float64() < 0.5 {
			dy = -dy
		}
		if err := e.scroller.Scroll(dy); err != nil {
			return err
		}
		e.delays.WaitScroll()
	}

	if imgs := e.findAll(selectors.CategoryTimeline, "post_images"); len(imgs) > 0 {
		e.sleep(e.randomSeconds(1, 2))
	}

	if remaining := target - time.Since(start); remaining > 0 {
		e.sleep(remaining)
	}
	return nil
}

// replyChecking scrolls one or two replies into view; a page without any
// reply elements just gets a plain downward scroll.
func (e *Executor) replyChecking() error {
	replies := e.findAll(selectors.CategoryTimeline, "reply_items")
	if len(replies) == 0 {
		if err := e.scroller.Scroll(400 + e.rand.Float64()*300); err != nil {
			return err
		}
		e.delays.WaitScroll()
		return nil
	}

	nchecks := e.randomCount(e.cfg.ReplyCheckCountMin, e.cfg.ReplyCheckCountMax)
	for i := 0; i < nchecks && i < len(replies); i++ {
		if err := replies[i].ScrollIntoView(); err != nil {
			continue
		}
		e.delays.WaitScroll()
		length := 0
		if text, err := replies[i].Text(); err == nil {
			length = len(text)
		}
		e.sleep(e.delays.Reading(length))
	}
	return nil
}

func (e *Executor) findAll(category, key string) []page.Control {
	for _, sel := range e.registry.Lookup(category, key) {
		found, err := e.driver.FindAll(sel)
		if err == nil && len(found) > 0 {
			return found
		}
	}
	return nil
}

func (e *Executor) randomSeconds(min, max float64) time.Duration {
	if max <= min {
		return time.Duration(min * float64(time.Second))
	}
	secs := min + e.rand.Float64()*(max-min)
	return time.Duration(secs * float64(time.Second))
}

func (e *Executor) randomCount(min, max int) int {
	if min < 1 {
		min = 1
	}
	if max <= min {
		return min
	}
	return min + e.rand.Intn(max-min+1)
}
