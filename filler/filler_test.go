// Package filler - Tests for disguise behaviors
package filler

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page/pagetest"
	"github.com/so032019/browser-automation/selectors"
)

type fakeScroller struct {
	calls  int
	deltas []float64
	err    error
}

func (s *fakeScroller) Scroll(totalY float64) error {
	s.calls++
	s.deltas = append(s.deltas, totalY)
	return s.err
}

type fakePacer struct {
	scrollWaits     int
	transitionWaits int
}

func (p *fakePacer) WaitScroll()         { p.scrollWaits++ }
func (p *fakePacer) WaitPageTransition() { p.transitionWaits++ }
func (p *fakePacer) Reading(contentLength int) time.Duration {
	return time.Millisecond
}

func testExecutor(t *testing.T, d *pagetest.Driver) (*Executor, *fakeScroller, *fakePacer) {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	sc := &fakeScroller{}
	pacer := &fakePacer{}
	cfg := config.DefaultConfig().Filler
	e := NewExecutor(d, selectors.Default(), sc, pacer, &cfg, log)
	e.rand = rand.New(rand.NewSource(42))
	e.sleep = func(time.Duration) {}
	return e, sc, pacer
}

func TestHomeBrowsingNavigatesAndReturns(t *testing.T) {
	d := pagetest.NewDriver()
	d.URL = "https://x.com/user/status/123"
	e, sc, pacer := testExecutor(t, d)

	out := e.Run(HomeBrowsing)
	if !out.Succeeded {
		t.Fatalf("Home browsing failed: %v", out.Err)
	}

	if len(d.Navigated) != 2 || d.Navigated[0] != "https://x.com/home" {
		t.Errorf("Expected navigation to home and back, got %v", d.Navigated)
	}
	if d.Navigated[1] != "https://x.com/user/status/123" {
		t.Errorf("Expected return to the post, got %s", d.Navigated[1])
	}
	if sc.calls < 2 || sc.calls > 4 {
		t.Errorf("Expected 2-4 timeline scrolls, got %d", sc.calls)
	}
	if pacer.transitionWaits != 2 {
		t.Errorf("Expected 2 page-transition waits, got %d", pacer.transitionWaits)
	}
}

func TestHomeBrowsingNavigationError(t *testing.T) {
	d := pagetest.NewDriver()
	d.NavErr["https://x.com/home"] = errors.New("net::ERR_FAILED")
	e, _, _ := testExecutor(t, d)

	out := e.Run(HomeBrowsing)
	if out.Succeeded {
		t.Error("Expected outcome to record the navigation failure")
	}
	if out.Err == nil {
		t.Error("Expected error in outcome")
	}
	if !out.Executed {
		t.Error("A failed run still counts as executed")
	}
}

func TestPostReadingMicroScrolls(t *testing.T) {
	d := pagetest.NewDriver()
	e, sc, _ := testExecutor(t, d)

	out := e.Run(PostReading)
	if !out.Succeeded {
		t.Fatalf("Post reading failed: %v", out.Err)
	}

	if sc.calls < 1 || sc.calls > 3 {
		t.Errorf("Expected 1-3 micro scrolls, got %d", sc.calls)
	}
	for _, dy := range sc.deltas {
		if dy > 300 || dy < -300 {
			t.Errorf("Micro scroll %f outside ±300px", dy)
		}
	}
}

func TestReplyCheckingWithReplies(t *testing.T) {
	d := pagetest.NewDriver()
	d.Lists[`[data-testid="reply"]`] = []*pagetest.Control{
		{Name: "reply1", Content: "nice"},
		{Name: "reply2", Content: "congrats"},
	}
	e, sc, pacer := testExecutor(t, d)

	out := e.Run(ReplyChecking)
	if !out.Succeeded {
		t.Fatalf("Reply checking failed: %v", out.Err)
	}
	if pacer.scrollWaits == 0 {
		t.Error("Expected scroll pacing while checking replies")
	}
	if sc.calls != 0 {
		t.Error("Scrolling into view should not use the plain scroll fallback")
	}
}

func TestReplyCheckingFallbackScroll(t *testing.T) {
	d := pagetest.NewDriver()
	e, sc, _ := testExecutor(t, d)

	out := e.Run(ReplyChecking)
	if !out.Succeeded {
		t.Fatalf("Reply checking failed: %v", out.Err)
	}
	if sc.calls != 1 {
		t.Errorf("Expected one fallback scroll, got %d", sc.calls)
	}
}

func TestWaits(t *testing.T) {
	d := pagetest.NewDriver()
	e, _, _ := testExecutor(t, d)

	var slept time.Duration
	e.sleep = func(d time.Duration) { slept += d }

	out := e.Run(PreActionWait)
	if !out.Succeeded || !out.Executed {
		t.Fatalf("Pre-action wait failed: %+v", out)
	}
	if slept < time.Second || slept > 3*time.Second {
		t.Errorf("Pre-action wait %v outside [1s, 3s]", slept)
	}

	slept = 0
	out = e.Run(PostActionWait)
	if !out.Succeeded {
		t.Fatalf("Post-action wait failed: %+v", out)
	}
	if slept < time.Second || slept > 2*time.Second {
		t.Errorf("Post-action wait %v outside [1s, 2s]", slept)
	}
}

func TestRunNeverPanics(t *testing.T) {
	d := pagetest.NewDriver()
	e, sc, _ := testExecutor(t, d)
	sc.err = errors.New("scroll failed")

	out := e.Run(PostReading)
	if out.Succeeded {
		t.Error("Expected failure outcome from a failing scroller")
	}

	// A nil driver field would panic inside; Run must absorb it.
	e.driver = nil
	out = e.Run(HomeBrowsing)
	if out.Succeeded {
		t.Error("Expected panic to be captured in the outcome")
	}
	if out.Err == nil {
		t.Error("Expected captured panic as error")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		HomeBrowsing:   "home_browsing",
		PostReading:    "post_reading",
		ReplyChecking:  "reply_checking",
		PreActionWait:  "pre_action_wait",
		PostActionWait: "post_action_wait",
		Kind(99):       "unknown",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %s, want %s", int(k), k.String(), want)
		}
	}
}
