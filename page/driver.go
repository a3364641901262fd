// Package page defines the narrow page-automation capability the core
// components consume. The production implementation wraps Rod (see the
// browser package); tests use the scripted fake in page/pagetest.
package page

import (
	"errors"
	"time"
)

// ErrTimeout is returned by lookup and wait operations when the deadline
// passed without the expected condition. Callers treat it as an ordinary
// "not found" outcome, distinct from hard driver errors.
var ErrTimeout = errors.New("page: operation timed out")

// Box is an element's bounding box in viewport coordinates.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the center point of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Control is a handle to an interactive element on the page.
type Control interface {
	// Attribute returns the named attribute value. ok is false when the
	// attribute is absent or could not be read.
	Attribute(name string) (value string, ok bool)

	// Text returns the visible text content of the element.
	Text() (string, error)

	// Visible reports whether the element is currently visible.
	Visible() bool

	// Box returns the element's bounding box.
	Box() (Box, error)

	// ScrollIntoView scrolls the element into the viewport.
	ScrollIntoView() error
}

// Driver is the page-automation capability. All operations are fallible;
// lookup operations report ErrTimeout when the element never appeared,
// and any other error for driver-level failures.
type Driver interface {
	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(url string) error

	// WaitNetworkIdle waits until network activity settles or the timeout
	// elapses. A timeout is reported as ErrTimeout.
	WaitNetworkIdle(timeout time.Duration) error

	// Find returns the first control matching the selector, waiting up to
	// timeout for it to appear.
	Find(selector string, timeout time.Duration) (Control, error)

	// FindByText returns the first control matching the selector whose
	// visible text contains the given text.
	FindByText(selector, text string, timeout time.Duration) (Control, error)

	// FindAll returns all controls currently matching the selector,
	// without waiting.
	FindAll(selector string) ([]Control, error)

	// Click dispatches a click on the control.
	Click(c Control) error

	// Type sends the text to the control as keyboard input.
	Type(c Control, text string) error

	// PressBackspace sends a single backspace keystroke.
	PressBackspace() error

	// MovePointer moves the mouse pointer to viewport coordinates.
	MovePointer(x, y float64) error

	// ScrollBy scrolls the page by the given deltas.
	ScrollBy(dx, dy float64) error

	// CurrentURL returns the URL of the current page.
	CurrentURL() string

	// HTML returns the current page markup.
	HTML() (string, error)
}
