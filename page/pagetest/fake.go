// Package pagetest provides a scripted in-memory page.Driver for tests.
// Selectors are matched exactly against the scripted control table; no
// real waiting happens, so lookups for missing controls fail immediately
// with page.ErrTimeout.
package pagetest

import (
	"strings"
	"time"

	"github.com/so032019/browser-automation/page"
)

// Control is a scripted element.
type Control struct {
	Name    string
	Attrs   map[string]string
	Content string
	Hidden  bool
	Bounds  page.Box

	TextErr error
	BoxErr  error
}

// Attribute implements page.Control.
func (c *Control) Attribute(name string) (string, bool) {
	v, ok := c.Attrs[name]
	return v, ok
}

// Text implements page.Control.
func (c *Control) Text() (string, error) {
	if c.TextErr != nil {
		return "", c.TextErr
	}
	return c.Content, nil
}

// Visible implements page.Control.
func (c *Control) Visible() bool {
	return !c.Hidden
}

// Box implements page.Control.
func (c *Control) Box() (page.Box, error) {
	if c.BoxErr != nil {
		return page.Box{}, c.BoxErr
	}
	if c.Bounds == (page.Box{}) {
		return page.Box{X: 100, Y: 100, Width: 80, Height: 30}, nil
	}
	return c.Bounds, nil
}

// ScrollIntoView implements page.Control.
func (c *Control) ScrollIntoView() error {
	return nil
}

// Driver is a scripted page.Driver. Zero value is usable.
type Driver struct {
	// Controls maps a selector to the control Find returns for it.
	Controls map[string]*Control

	// Lists maps a selector to the controls FindAll returns.
	Lists map[string][]*Control

	// NavErr maps a URL to the error Navigate returns for it.
	NavErr map[string]error

	// Recorded interactions.
	Navigated    []string
	Clicked      []string
	Typed        []string
	PointerMoves int
	Scrolls      int

	// ClickErr, when set, is returned by every Click call.
	ClickErr error

	URL     string
	Markup  string
	NowFind func(selector string) // optional hook, called on every Find
}

// NewDriver returns an empty scripted driver.
func NewDriver() *Driver {
	return &Driver{
		Controls: make(map[string]*Control),
		Lists:    make(map[string][]*Control),
		NavErr:   make(map[string]error),
	}
}

// Script registers a control for a selector.
func (d *Driver) Script(selector string, c *Control) {
	d.Controls[selector] = c
}

// Remove deletes a scripted control, simulating its disappearance.
func (d *Driver) Remove(selector string) {
	delete(d.Controls, selector)
}

// Navigate implements page.Driver.
func (d *Driver) Navigate(url string) error {
	d.Navigated = append(d.Navigated, url)
	if err, ok := d.NavErr[url]; ok {
		return err
	}
	d.URL = url
	return nil
}

// WaitNetworkIdle implements page.Driver.
func (d *Driver) WaitNetworkIdle(timeout time.Duration) error {
	return nil
}

// Find implements page.Driver.
func (d *Driver) Find(selector string, timeout time.Duration) (page.Control, error) {
	if d.NowFind != nil {
		d.NowFind(selector)
	}
	if c, ok := d.Controls[selector]; ok && !c.Hidden {
		return c, nil
	}
	return nil, page.ErrTimeout
}

// FindByText implements page.Driver. It scans scripted controls for one
// whose content contains the text.
func (d *Driver) FindByText(selector, text string, timeout time.Duration) (page.Control, error) {
	for _, c := range d.Controls {
		if !c.Hidden && strings.Contains(c.Content, text) {
			return c, nil
		}
	}
	return nil, page.ErrTimeout
}

// FindAll implements page.Driver.
func (d *Driver) FindAll(selector string) ([]page.Control, error) {
	list, ok := d.Lists[selector]
	if !ok {
		return nil, nil
	}
	out := make([]page.Control, 0, len(list))
	for _, c := range list {
		out = append(out, c)
	}
	return out, nil
}

// Click implements page.Driver.
func (d *Driver) Click(c page.Control) error {
	if d.ClickErr != nil {
		return d.ClickErr
	}
	name := "?"
	if fc, ok := c.(*Control); ok {
		name = fc.Name
	}
	d.Clicked = append(d.Clicked, name)
	return nil
}

// Type implements page.Driver.
func (d *Driver) Type(c page.Control, text string) error {
	d.Typed = append(d.Typed, text)
	return nil
}

// PressBackspace implements page.Driver.
func (d *Driver) PressBackspace() error {
	if len(d.Typed) > 0 {
		last := d.Typed[len(d.Typed)-1]
		if len(last) > 0 {
			d.Typed[len(d.Typed)-1] = last[:len(last)-1]
		}
	}
	return nil
}

// MovePointer implements page.Driver.
func (d *Driver) MovePointer(x, y float64) error {
	d.PointerMoves++
	return nil
}

// ScrollBy implements page.Driver.
func (d *Driver) ScrollBy(dx, dy float64) error {
	d.Scrolls++
	return nil
}

// CurrentURL implements page.Driver.
func (d *Driver) CurrentURL() string {
	return d.URL
}

// HTML implements page.Driver.
func (d *Driver) HTML() (string, error) {
	return d.Markup, nil
}
