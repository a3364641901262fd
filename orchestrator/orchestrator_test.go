// Package orchestrator - Tests for the per-post flow
package orchestrator

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/so032019/browser-automation/action"
	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/engagement"
	"github.com/so032019/browser-automation/filler"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
	"github.com/so032019/browser-automation/page/pagetest"
	"github.com/so032019/browser-automation/selectors"
)

type fakeProber struct {
	state engagement.State
}

func (p *fakeProber) Probe() engagement.State { return p.state }

type fakeExecutor struct {
	executed []action.Kind
	results  map[action.Kind]bool
	panicOn  action.Kind
	panics   bool
}

func (e *fakeExecutor) Execute(kind action.Kind) bool {
	if e.panics && kind == e.panicOn {
		panic("executor blew up")
	}
	e.executed = append(e.executed, kind)
	if e.results == nil {
		return true
	}
	return e.results[kind]
}

type fakeFiller struct {
	runs         []filler.Kind
	doubleChecks int
}

func (f *fakeFiller) Run(kind filler.Kind) filler.Outcome {
	f.runs = append(f.runs, kind)
	return filler.Outcome{Kind: kind, Executed: true, Succeeded: true}
}

func (f *fakeFiller) DoubleCheckScroll() { f.doubleChecks++ }

type fakePacer struct {
	transitions int
	resets      int
}

func (p *fakePacer) WaitPageTransition() { p.transitions++ }
func (p *fakePacer) Reset()              { p.resets++ }

type fixture struct {
	orch     *Orchestrator
	driver   *pagetest.Driver
	prober   *fakeProber
	executor *fakeExecutor
	filler   *fakeFiller
	pacer    *fakePacer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	f := &fixture{
		driver:   pagetest.NewDriver(),
		prober:   &fakeProber{},
		executor: &fakeExecutor{},
		filler:   &fakeFiller{},
		pacer:    &fakePacer{},
	}
	cfg := config.DefaultConfig().Filler
	f.orch = New(f.driver, f.prober, f.executor, f.filler, f.pacer, &cfg, log)
	f.orch.rand = rand.New(rand.NewSource(42))
	f.orch.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return f
}

func TestProcessPostFullFlow(t *testing.T) {
	f := newFixture(t)

	result := f.orch.ProcessPost("https://x.com/user/status/1")
	if !result.Succeeded() {
		t.Fatalf("Expected success, got %+v", result)
	}

	if len(f.driver.Navigated) != 1 {
		t.Errorf("Expected one navigation, got %v", f.driver.Navigated)
	}
	if f.pacer.transitions != 1 {
		t.Errorf("Expected one page transition wait, got %d", f.pacer.transitions)
	}
	if len(f.executor.executed) != 3 {
		t.Errorf("Expected 3 actions executed, got %v", f.executor.executed)
	}
	if len(f.orch.Records()) != 1 {
		t.Errorf("Expected 1 record, got %d", len(f.orch.Records()))
	}
}

func TestProcessPostNavigationFailure(t *testing.T) {
	f := newFixture(t)
	f.driver.NavErr["https://x.com/user/status/1"] = errors.New("net::ERR_FAILED")

	result := f.orch.ProcessPost("https://x.com/user/status/1")
	if result.Navigation {
		t.Error("Expected navigation failure in result")
	}
	if result.Succeeded() {
		t.Error("Failed navigation cannot be a success")
	}
	if len(f.executor.executed) != 0 {
		t.Error("No actions should run after failed navigation")
	}
	// The failed post is still recorded
	if len(f.orch.Records()) != 1 {
		t.Errorf("Expected 1 record, got %d", len(f.orch.Records()))
	}
}

func TestProcessPostAllEngagedSkipsExecution(t *testing.T) {
	f := newFixture(t)
	f.prober.state = engagement.State{Followed: true, Reposted: true, Liked: true}

	result := f.orch.ProcessPost("https://x.com/user/status/1")
	if !result.Succeeded() {
		t.Fatalf("Fully engaged post should succeed, got %+v", result)
	}
	if len(f.executor.executed) != 0 {
		t.Errorf("No actions should run on a fully engaged post, got %v", f.executor.executed)
	}
}

func TestProcessPostPartialState(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.ShuffleChance = 0
	f.prober.state = engagement.State{Followed: true}

	result := f.orch.ProcessPost("https://x.com/user/status/1")
	if !result.Follow {
		t.Error("Probed follow state should carry into the result")
	}
	if len(f.executor.executed) != 2 {
		t.Fatalf("Expected 2 pending actions, got %v", f.executor.executed)
	}
	if f.executor.executed[0] != action.Repost || f.executor.executed[1] != action.Like {
		t.Errorf("Expected repost then like, got %v", f.executor.executed)
	}
}

func TestProcessPostActionFailure(t *testing.T) {
	f := newFixture(t)
	f.executor.results = map[action.Kind]bool{
		action.Follow: true,
		action.Repost: false,
		action.Like:   true,
	}

	result := f.orch.ProcessPost("https://x.com/user/status/1")
	if result.Repost {
		t.Error("Failed repost should be reflected in the result")
	}
	if result.Succeeded() {
		t.Error("A failed action cannot yield a successful result")
	}
	if !result.Follow || !result.Like {
		t.Error("Other actions should still be reported done")
	}
}

type orderedExecutor struct {
	events *[]string
}

func (e *orderedExecutor) Execute(kind action.Kind) bool {
	*e.events = append(*e.events, "action:"+kind.String())
	return true
}

type orderedFiller struct {
	events *[]string
}

func (f *orderedFiller) Run(kind filler.Kind) filler.Outcome {
	return filler.Outcome{Kind: kind, Executed: true, Succeeded: true}
}

func (f *orderedFiller) DoubleCheckScroll() {
	*f.events = append(*f.events, "double-check")
}

func TestDoubleCheckFollowsEachAction(t *testing.T) {
	f := newFixture(t)

	var events []string
	f.orch.executor = &orderedExecutor{events: &events}
	f.orch.filler = &orderedFiller{events: &events}
	f.orch.cfg.Enabled = false
	f.orch.cfg.ShuffleChance = 0
	f.orch.cfg.DoubleCheckChance = 1.0

	f.orch.ProcessPost("https://x.com/user/status/1")

	want := []string{
		"action:follow", "double-check",
		"action:repost", "double-check",
		"action:like", "double-check",
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, events)
		}
	}
}

func TestProcessPostRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.executor.panics = true
	f.executor.panicOn = action.Repost

	result := f.orch.ProcessPost("https://x.com/user/status/1")
	if result.Succeeded() {
		t.Error("A panicking executor cannot yield success")
	}
	if len(f.orch.Records()) != 1 {
		t.Error("The post must be recorded even after a panic")
	}
}

func TestHomeBrowsingSkippedOnFirstPost(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.HomeBrowsingChance = 1.0

	f.orch.ProcessPost("https://x.com/user/status/1")
	for _, k := range f.filler.runs {
		if k == filler.HomeBrowsing {
			t.Fatal("Home browsing must not run on the first post")
		}
	}

	f.filler.runs = nil
	f.orch.ProcessPost("https://x.com/user/status/2")
	found := false
	for _, k := range f.filler.runs {
		if k == filler.HomeBrowsing {
			found = true
		}
	}
	if !found {
		t.Error("Home browsing should run from the second post on at chance 1.0")
	}
}

func TestFillerDisabled(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.Enabled = false

	f.orch.ProcessPost("https://x.com/user/status/1")
	if len(f.filler.runs) != 0 {
		t.Errorf("No filler should run when disabled, got %v", f.filler.runs)
	}
}

func TestShouldRunAdjustments(t *testing.T) {
	f := newFixture(t)

	// Long sessions raise the gate chance by 0.1
	for i := 0; i < 6; i++ {
		f.orch.records = append(f.orch.records, ExecutionRecord{})
	}
	hits := 0
	for i := 0; i < 1000; i++ {
		if f.orch.shouldRun(0.5) {
			hits++
		}
	}
	if hits < 520 || hits > 680 {
		t.Errorf("Expected ~60%% hit rate with long-session bonus, got %d/1000", hits)
	}

	// Late night scales the chance by 0.9
	f.orch.records = nil
	f.orch.now = func() time.Time {
		return time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	}
	hits = 0
	for i := 0; i < 1000; i++ {
		if f.orch.shouldRun(0.5) {
			hits++
		}
	}
	if hits < 380 || hits > 520 {
		t.Errorf("Expected ~45%% hit rate late at night, got %d/1000", hits)
	}

	// 06:00 is still inside the late-night window
	f.orch.now = func() time.Time {
		return time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	}
	hits = 0
	for i := 0; i < 1000; i++ {
		if f.orch.shouldRun(0.5) {
			hits++
		}
	}
	if hits < 380 || hits > 520 {
		t.Errorf("Expected ~45%% hit rate at 06:00, got %d/1000", hits)
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.orch.sessionStart = base
	f.orch.now = func() time.Time { return base.Add(2 * time.Minute) }

	f.orch.records = []ExecutionRecord{
		{Result: Result{Navigation: true, Follow: true, Repost: true, Like: true}, Duration: 10 * time.Second, FillerCount: 3},
		{Result: Result{Navigation: true, Follow: true}, Duration: 20 * time.Second, FillerCount: 1},
	}

	stats := f.orch.Statistics()
	if stats.PostsProcessed != 2 {
		t.Errorf("Expected 2 posts, got %d", stats.PostsProcessed)
	}
	if stats.SuccessfulPosts != 1 || stats.SuccessRate != 0.5 {
		t.Errorf("Expected 1 success at 50%%, got %d at %.2f", stats.SuccessfulPosts, stats.SuccessRate)
	}
	if stats.AvgPostDuration != 15*time.Second {
		t.Errorf("Expected 15s average, got %v", stats.AvgPostDuration)
	}
	if stats.SessionDuration != 2*time.Minute {
		t.Errorf("Expected 2m session, got %v", stats.SessionDuration)
	}
	if stats.PostsPerMinute != 1.0 {
		t.Errorf("Expected 1 post/minute, got %.2f", stats.PostsPerMinute)
	}
}

func TestDiversityScore(t *testing.T) {
	f := newFixture(t)

	if got := f.orch.DiversityScore(); got != 0 {
		t.Errorf("Empty session should score 0, got %f", got)
	}

	f.orch.records = []ExecutionRecord{{Duration: 10 * time.Second, FillerCount: 2}}
	if got := f.orch.DiversityScore(); got != 0 {
		t.Errorf("Single record should score 0, got %f", got)
	}

	// Identical posts score 0
	f.orch.records = []ExecutionRecord{
		{Duration: 10 * time.Second, FillerCount: 2},
		{Duration: 10 * time.Second, FillerCount: 2},
	}
	if got := f.orch.DiversityScore(); got != 0 {
		t.Errorf("Identical records should score 0, got %f", got)
	}

	// Varied posts score above 0, capped at 1
	f.orch.records = []ExecutionRecord{
		{Duration: 5 * time.Second, FillerCount: 1},
		{Duration: 30 * time.Second, FillerCount: 4},
		{Duration: 12 * time.Second, FillerCount: 0},
	}
	got := f.orch.DiversityScore()
	if got <= 0 || got > 1 {
		t.Errorf("Varied records should score in (0, 1], got %f", got)
	}
}

// The scenario tests below wire the real prober and executor over a
// scripted page instead of fakes.

type scenarioClicker struct{ d *pagetest.Driver }

func (c *scenarioClicker) Click(ctl page.Control) error { return c.d.Click(ctl) }

type scenarioPacer struct{}

func (scenarioPacer) WaitActionInterval(action.Kind) {}

func scenarioFixture(t *testing.T, d *pagetest.Driver) *Orchestrator {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	reg := selectors.Default()
	prober := engagement.NewProber(d, reg, log)
	executor := engagement.NewExecutor(d, reg, &scenarioClicker{d: d}, scenarioPacer{}, log)

	cfg := config.DefaultConfig().Filler
	cfg.Enabled = false

	o := New(d, prober, executor, &fakeFiller{}, &fakePacer{}, &cfg, log)
	o.rand = rand.New(rand.NewSource(42))
	o.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return o
}

func TestScenarioOnlyRepostPending(t *testing.T) {
	d := pagetest.NewDriver()
	// Already following and liked; repost still available
	d.Script(`[data-testid$="-unfollow"]`, &pagetest.Control{Name: "unfollow"})
	d.Script(`[data-testid="unlike"]`, &pagetest.Control{Name: "unlike"})
	d.Script(`[data-testid="retweet"]`, &pagetest.Control{Name: "repost"})
	d.Script(`[data-testid="retweetConfirm"]`, &pagetest.Control{Name: "confirm"})

	o := scenarioFixture(t, d)
	result := o.ProcessPost("https://x.com/user/status/1")

	if !result.Follow || !result.Like {
		t.Errorf("Probed-engaged kinds should be reported true: %+v", result)
	}
	if !result.Repost {
		t.Errorf("Repost should have been executed: %+v", result)
	}
	for _, name := range d.Clicked {
		if name == "unfollow" || name == "unlike" {
			t.Errorf("Already-engaged kinds must not be clicked, got %v", d.Clicked)
		}
	}
	if len(d.Clicked) != 2 || d.Clicked[0] != "repost" || d.Clicked[1] != "confirm" {
		t.Errorf("Expected repost and confirm clicks only, got %v", d.Clicked)
	}
}

func TestScenarioNoControlsFound(t *testing.T) {
	d := pagetest.NewDriver()
	o := scenarioFixture(t, d)

	result := o.ProcessPost("https://x.com/user/status/1")

	if !result.Navigation {
		t.Error("Navigation should succeed")
	}
	if result.Follow || result.Repost || result.Like {
		t.Errorf("No action can succeed on an empty page: %+v", result)
	}
	if len(d.Clicked) != 0 {
		t.Errorf("Nothing should be clicked, got %v", d.Clicked)
	}

	// The session continues; the next post processes normally
	d.Script(`[data-testid$="-follow"]`, &pagetest.Control{Name: "follow"})
	d.Script(`[data-testid="retweet"]`, &pagetest.Control{Name: "repost"})
	d.Script(`[data-testid="like"]`, &pagetest.Control{Name: "like"})
	result = o.ProcessPost("https://x.com/user/status/2")
	if !result.Succeeded() {
		t.Errorf("Second post should succeed: %+v", result)
	}
	if len(o.Records()) != 2 {
		t.Errorf("Expected 2 records, got %d", len(o.Records()))
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)

	f.orch.ProcessPost("https://x.com/user/status/1")
	f.orch.Reset()

	if len(f.orch.Records()) != 0 {
		t.Error("Reset should clear records")
	}
	if len(f.orch.fillerRuns) != 0 {
		t.Error("Reset should clear filler counters")
	}
	if f.pacer.resets != 1 {
		t.Error("Reset should cascade to the pacer")
	}

	stats := f.orch.Statistics()
	if stats.PostsProcessed != 0 {
		t.Error("Statistics should be empty after reset")
	}
}
