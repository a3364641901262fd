// Package orchestrator drives the per-post engagement flow. Each post
// moves through a fixed sequence: arrive on the page, weave in pre-action
// filler, probe the current engagement state, execute the missing actions,
// wind down with post-action filler, then record the outcome. Filler
// probability adapts to session length and time of day so no two sessions
// produce the same rhythm.
package orchestrator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/so032019/browser-automation/action"
	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/engagement"
	"github.com/so032019/browser-automation/filler"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
)

// Result is the outcome for one post.
type Result struct {
	URL        string
	Navigation bool
	Follow     bool
	Repost     bool
	Like       bool
}

// Succeeded reports whether every step of the post succeeded.
func (r Result) Succeeded() bool {
	return r.Navigation && r.Follow && r.Repost && r.Like
}

// ExecutionRecord captures one processed post for session statistics.
type ExecutionRecord struct {
	URL         string
	Result      Result
	Duration    time.Duration
	FillerCount int
	ProcessedAt time.Time
}

// Statistics summarizes a session.
type Statistics struct {
	PostsProcessed  int
	SuccessfulPosts int
	SuccessRate     float64
	AvgPostDuration time.Duration
	SessionDuration time.Duration
	PostsPerMinute  float64
	FillerRuns      map[string]int
}

// Prober reads the engagement state of the open post page.
type Prober interface {
	Probe() engagement.State
}

// ActionExecutor performs one engagement action.
type ActionExecutor interface {
	Execute(kind action.Kind) bool
}

// FillerRunner runs disguise behaviors.
type FillerRunner interface {
	Run(kind filler.Kind) filler.Outcome
	DoubleCheckScroll()
}

// Pacer supplies navigation pacing. Satisfied by delay.Manager.
type Pacer interface {
	WaitPageTransition()
	Reset()
}

// Orchestrator owns one session's flow and state.
type Orchestrator struct {
	driver   page.Driver
	prober   Prober
	executor ActionExecutor
	filler   FillerRunner
	delays   Pacer
	cfg      *config.FillerConfig
	logger   *logger.Logger
	rand     *rand.Rand

	sessionStart time.Time
	records      []ExecutionRecord
	fillerRuns   map[string]int

	now func() time.Time
}

// New creates an orchestrator for a fresh session.
func New(d page.Driver, p Prober, ex ActionExecutor, fr FillerRunner, pacer Pacer, cfg *config.FillerConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		driver:       d,
		prober:       p,
		executor:     ex,
		filler:       fr,
		delays:       pacer,
		cfg:          cfg,
		logger:       log.WithModule("orchestrator"),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sessionStart: time.Now(),
		fillerRuns:   make(map[string]int),
		now:          time.Now,
	}
}

// ProcessPost runs the full flow for one post URL. It never panics and
// never returns an error; every failure mode is folded into the Result,
// which is also recorded into the session statistics.
func (o *Orchestrator) ProcessPost(url string) (result Result) {
	start := o.now()
	fillerCount := 0
	result = Result{URL: url}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("Recovered while processing %s: %v", url, r)
		}
		o.record(result, o.now().Sub(start), fillerCount)
	}()

	// The indirect route: sometimes wander the home timeline before heading
	// to the post. Never on the session's first post.
	if o.cfg.Enabled && len(o.records) > 0 && o.shouldRun(o.cfg.HomeBrowsingChance) {
		fillerCount += o.run(filler.HomeBrowsing)
	}

	o.logger.Navigation(url)
	if err := o.driver.Navigate(url); err != nil {
		o.logger.WithError(err).Errorf("Failed to open post %s", url)
		return result
	}
	o.delays.WaitPageTransition()
	result.Navigation = true

	fillerCount += o.preFiller()

	state := o.prober.Probe()
	if state.AllEngaged() {
		o.logger.Infof("Post already fully engaged: %s", url)
		result.Follow, result.Repost, result.Like = true, true, true
		return result
	}

	pending := state.Pending()
	if o.rand.Float64() < o.cfg.ShuffleChance {
		o.rand.Shuffle(len(pending), func(i, j int) {
			pending[i], pending[j] = pending[j], pending[i]
		})
		o.logger.Debug("Shuffled pending action order")
	}

	result.Follow = state.Followed
	result.Repost = state.Reposted
	result.Like = state.Liked

	for _, kind := range pending {
		done := o.executor.Execute(kind)
		switch kind {
		case action.Follow:
			result.Follow = done
		case action.Repost:
			result.Repost = done
		case action.Like:
			result.Like = done
		}

		if o.rand.Float64() < o.cfg.DoubleCheckChance {
			o.filler.DoubleCheckScroll()
		}
	}

	fillerCount += o.postFiller()
	return result
}

// preFiller runs the pre-engagement disguise sequence and returns how many
// fillers actually executed.
func (o *Orchestrator) preFiller() int {
	if !o.cfg.Enabled {
		return 0
	}

	count := 0
	if o.shouldRun(o.cfg.PostReadingChance) {
		count += o.run(filler.PostReading)
	}
	if o.shouldRun(o.cfg.ReplyCheckingChance) {
		count += o.run(filler.ReplyChecking)
	}
	if o.shouldRun(o.cfg.PreActionWaitChance) {
		count += o.run(filler.PreActionWait)
	}
	return count
}

func (o *Orchestrator) postFiller() int {
	if !o.cfg.Enabled {
		return 0
	}
	if o.shouldRun(o.cfg.PostActionWaitChance) {
		return o.run(filler.PostActionWait)
	}
	return 0
}

func (o *Orchestrator) run(kind filler.Kind) int {
	out := o.filler.Run(kind)
	if !out.Executed {
		return 0
	}
	o.fillerRuns[kind.String()]++
	return 1
}

// shouldRun rolls a filler gate. The base chance drifts up as the session
// gets longer (a tired user wanders more) and down late at night (a tired
// user also does less overall).
func (o *Orchestrator) shouldRun(base float64) bool {
	chance := base
	if len(o.records) > 5 {
		chance += 0.1
	}

	hour := o.now().Hour()
	if hour >= 22 || hour <= 6 {
		chance *= 0.9
	}

	if chance > 1.0 {
		chance = 1.0
	}
	return o.rand.Float64() < chance
}

func (o *Orchestrator) record(result Result, duration time.Duration, fillerCount int) {
	o.records = append(o.records, ExecutionRecord{
		URL:         result.URL,
		Result:      result,
		Duration:    duration,
		FillerCount: fillerCount,
		ProcessedAt: o.now(),
	})
	o.logger.PostResult(result.URL, result.Navigation, result.Follow, result.Repost, result.Like)
}

// Records returns the session's execution records.
func (o *Orchestrator) Records() []ExecutionRecord {
	return o.records
}

// Statistics summarizes the session so far.
func (o *Orchestrator) Statistics() Statistics {
	stats := Statistics{
		PostsProcessed: len(o.records),
		FillerRuns:     make(map[string]int, len(o.fillerRuns)),
	}
	for k, v := range o.fillerRuns {
		stats.FillerRuns[k] = v
	}

	stats.SessionDuration = o.now().Sub(o.sessionStart)

	if len(o.records) == 0 {
		return stats
	}

	var total time.Duration
	for _, r := range o.records {
		total += r.Duration
		if r.Result.Succeeded() {
			stats.SuccessfulPosts++
		}
	}
	stats.AvgPostDuration = total / time.Duration(len(o.records))
	stats.SuccessRate = float64(stats.SuccessfulPosts) / float64(len(o.records))

	if minutes := stats.SessionDuration.Minutes(); minutes > 0 {
		stats.PostsPerMinute = float64(len(o.records)) / minutes
	}
	return stats
}

// DiversityScore measures how varied the session's rhythm was, from 0
// (every post identical) to 1. It averages the normalized variance of the
// per-post durations and filler counts. Fewer than two records score 0.
func (o *Orchestrator) DiversityScore() float64 {
	if len(o.records) < 2 {
		return 0
	}

	durations := make([]float64, len(o.records))
	fillers := make([]float64, len(o.records))
	for i, r := range o.records {
		durations[i] = r.Duration.Seconds()
		fillers[i] = float64(r.FillerCount)
	}

	score := (normalizedVariance(durations) + normalizedVariance(fillers)) / 2
	return math.Min(1, score)
}

// normalizedVariance is variance/mean capped at 1; a zero mean scores 0.
func normalizedVariance(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	return math.Min(1, variance/mean)
}

// Reset clears all session state together: records, filler counters, the
// session clock and the pacer's rhythm state.
func (o *Orchestrator) Reset() {
	o.records = nil
	o.fillerRuns = make(map[string]int)
	o.sessionStart = o.now()
	o.delays.Reset()
	o.logger.Info("Session state reset")
}

// Summary renders a short human-readable session summary.
func (o *Orchestrator) Summary() string {
	stats := o.Statistics()
	return fmt.Sprintf("posts=%d success=%.0f%% avg=%.1fs diversity=%.2f",
		stats.PostsProcessed,
		stats.SuccessRate*100,
		stats.AvgPostDuration.Seconds(),
		o.DiversityScore())
}
