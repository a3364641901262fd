// Package stealth humanizes raw page interactions. Pointer movement,
// clicking, scrolling and typing are rendered with eased paths, jitter,
// hesitation pauses and occasional corrected typos so the interaction
// rhythm resembles a person at a keyboard rather than a script.
package stealth

import (
	"math"
	"math/rand"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
)

// qwerty neighbours used when simulating a typing mistake.
var adjacentKeys = map[rune][]rune{
	'a': {'q', 'w', 's', 'z'},
	'b': {'v', 'g', 'h', 'n'},
	'c': {'x', 'd', 'f', 'v'},
	'd': {'s', 'e', 'r', 'f', 'c', 'x'},
	'e': {'w', 's', 'd', 'r'},
	'f': {'d', 'r', 't', 'g', 'v', 'c'},
	'g': {'f', 't', 'y', 'h', 'b', 'v'},
	'h': {'g', 'y', 'u', 'j', 'n', 'b'},
	'i': {'u', 'j', 'k', 'o'},
	'j': {'h', 'u', 'i', 'k', 'm', 'n'},
	'k': {'j', 'i', 'o', 'l', 'm'},
	'l': {'k', 'o', 'p'},
	'm': {'n', 'j', 'k'},
	'n': {'b', 'h', 'j', 'm'},
	'o': {'i', 'k', 'l', 'p'},
	'p': {'o', 'l'},
	'q': {'w', 'a'},
	'r': {'e', 'd', 'f', 't'},
	's': {'a', 'w', 'e', 'd', 'x', 'z'},
	't': {'r', 'f', 'g', 'y'},
	'u': {'y', 'h', 'j', 'i'},
	'v': {'c', 'f', 'g', 'b'},
	'w': {'q', 'a', 's', 'e'},
	'x': {'z', 's', 'd', 'c'},
	'y': {'t', 'g', 'h', 'u'},
	'z': {'a', 's', 'x'},
}

// Humanizer wraps a page driver and performs human-like interactions.
type Humanizer struct {
	driver page.Driver
	cfg    *config.StealthConfig
	logger *logger.Logger
	rand   *rand.Rand

	// current pointer position, tracked between movements
	pointerX float64
	pointerY float64

	sleep func(time.Duration)
}

// NewHumanizer creates a humanizer over the given driver.
func NewHumanizer(d page.Driver, cfg *config.StealthConfig, log *logger.Logger) *Humanizer {
	return &Humanizer{
		driver:   d,
		cfg:      cfg,
		logger:   log.WithModule("stealth"),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pointerX: 200,
		pointerY: 200,
		sleep:    time.Sleep,
	}
}

// Click performs a human-like click on the control: scroll into view, an
// eased pointer approach with jitter, an optional hesitation pause, then
// the click framed by short pauses. Any failure along the path falls back
// to a direct click so the action itself is never lost to the disguise.
func (h *Humanizer) Click(c page.Control) error {
	if err := h.humanClick(c); err != nil {
		h.logger.WithError(err).Debug("Human click failed, falling back to direct click")
		return h.driver.Click(c)
	}
	return nil
}

func (h *Humanizer) humanClick(c page.Control) error {
	if err := c.ScrollIntoView(); err != nil {
		return err
	}
	h.sleep(h.randomDuration(100, 300))

	box, err := c.Box()
	if err != nil {
		return err
	}

	cx, cy := box.Center()
	jitter := float64(h.cfg.PointerJitterPx)
	targetX := cx + (h.rand.Float64()-0.5)*jitter
	targetY := cy + (h.rand.Float64()-0.5)*jitter

	if err := h.movePointer(targetX, targetY); err != nil {
		return err
	}

	if h.rand.Float64() < h.cfg.HesitationChance {
		h.logger.StealthAction("hesitation", nil)
		if err := h.driver.MovePointer(targetX+h.rand.Float64()*4-2, targetY+h.rand.Float64()*4-2); err != nil {
			return err
		}
		h.sleep(h.randomDuration(200, 600))
	}

	h.sleep(h.randomDuration(50, 150))
	if err := h.driver.Click(c); err != nil {
		return err
	}
	h.sleep(h.randomDuration(100, 250))

	h.logger.StealthAction("human_click", map[string]interface{}{
		"x": targetX,
		"y": targetY,
	})
	return nil
}

// movePointer walks the pointer from its tracked position to the target
// along an eased path with per-step jitter.
func (h *Humanizer) movePointer(x, y float64) error {
	steps := h.cfg.PointerStepsMin
	if h.cfg.PointerStepsMax > h.cfg.PointerStepsMin {
		steps += h.rand.Intn(h.cfg.PointerStepsMax - h.cfg.PointerStepsMin)
	}
	if steps < 2 {
		steps = 2
	}

	startX, startY := h.pointerX, h.pointerY
	for i := 1; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		px := startX + (x-startX)*t
		py := startY + (y-startY)*t
		if i < steps {
			px += (h.rand.Float64() - 0.5) * 2
			py += (h.rand.Float64() - 0.5) * 2
		}
		if err := h.driver.MovePointer(px, py); err != nil {
			return err
		}
		h.sleep(time.Duration(5+h.rand.Intn(15)) * time.Millisecond)
	}

	h.pointerX, h.pointerY = x, y
	return nil
}

// Scroll scrolls the page by totalY pixels in several uneven increments
// with natural pauses, occasionally scrolling a little back the way a
// reader overshooting does.
func (h *Humanizer) Scroll(totalY float64) error {
	remaining := totalY
	for math.Abs(remaining) > 1 {
		step := remaining
		maxStep := float64(h.cfg.ScrollSpeedMin) +
			h.rand.Float64()*float64(h.cfg.ScrollSpeedMax-h.cfg.ScrollSpeedMin)
		if math.Abs(step) > maxStep {
			if step > 0 {
				step = maxStep
			} else {
				step = -maxStep
			}
		}

		if err := h.driver.ScrollBy(0, step); err != nil {
			return err
		}
		remaining -= step
		h.sleep(h.randomDuration(80, 250))
	}

	if h.rand.Float64() < h.cfg.ScrollBackChance {
		back := 40 + h.rand.Float64()*80
		if totalY > 0 {
			back = -back
		}
		if err := h.driver.ScrollBy(0, back); err != nil {
			return err
		}
		h.sleep(h.randomDuration(150, 400))
		h.logger.StealthAction("scroll_back", nil)
	}

	return nil
}

// Type enters text into the control one character at a time with variable
// inter-key delays. At the configured mistake rate an adjacent key is hit
// first, noticed after a beat, erased with backspace and retyped.
func (h *Humanizer) Type(c page.Control, text string) error {
	if err := h.Click(c); err != nil {
		return err
	}

	for _, r := range text {
		if neighbours, ok := adjacentKeys[r]; ok && h.rand.Float64() < h.cfg.TypingMistakeRate {
			wrong := neighbours[h.rand.Intn(len(neighbours))]
			if err := h.driver.Type(c, string(wrong)); err != nil {
				return err
			}
			h.sleep(h.randomDuration(200, 500))
			if err := h.driver.PressBackspace(); err != nil {
				return err
			}
			h.sleep(h.randomDuration(100, 300))
			h.logger.StealthAction("typing_correction", nil)
		}

		if err := h.driver.Type(c, string(r)); err != nil {
			return err
		}
		h.sleep(h.randomDuration(h.cfg.TypingDelayMin, h.cfg.TypingDelayMax))
	}

	return nil
}

func (h *Humanizer) randomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+h.rand.Intn(maxMs-minMs)) * time.Millisecond
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
