// Package browser manages the Rod browser: launching Chrome with
// anti-detection flags, masking the automation fingerprint, and exposing
// the active tab through the page.Driver interface the rest of the
// system consumes.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
)

// common desktop viewports used when viewport randomization is on.
var viewports = [][2]int{
	{1366, 768},
	{1440, 900},
	{1536, 864},
	{1600, 900},
	{1920, 1080},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// Browser wraps the Rod browser and its active tab.
type Browser struct {
	config  *config.Config
	logger  *logger.Logger
	browser *rod.Browser
	tab     *rod.Page
	rand    *rand.Rand
}

// NewBrowser creates a browser manager. Launch must be called before the
// driver is usable.
func NewBrowser(cfg *config.Config, log *logger.Logger) *Browser {
	return &Browser{
		config: cfg,
		logger: log.WithModule("browser"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Launch starts Chrome with anti-detection flags and opens the initial tab.
func (b *Browser) Launch() error {
	b.logger.Info("Launching browser")

	if b.config.Browser.UserDataDir != "" {
		absPath, err := filepath.Abs(b.config.Browser.UserDataDir)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for user data dir: %w", err)
		}
		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("failed to create user data directory: %w", err)
		}
		b.config.Browser.UserDataDir = absPath
	}

	l := launcher.New().
		Headless(b.config.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("disable-translate").
		Set("disable-extensions").
		Set("disable-popup-blocking").
		Set("metrics-recording-only").
		Set("safebrowsing-disable-auto-update")

	if b.config.Browser.BrowserPath != "" {
		l = l.Bin(b.config.Browser.BrowserPath)
	}
	if b.config.Browser.UserDataDir != "" {
		l = l.UserDataDir(b.config.Browser.UserDataDir)
	}

	width, height := b.viewport()
	l = l.Set("window-size", fmt.Sprintf("%d,%d", width, height))

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.browser = rod.New().
		ControlURL(url).
		Timeout(time.Duration(b.config.Browser.Timeout) * time.Second)

	if b.config.Browser.SlowMotion > 0 {
		b.browser = b.browser.SlowMotion(time.Duration(b.config.Browser.SlowMotion) * time.Millisecond)
	}

	if err := b.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.logger.Info("Browser launched successfully")
	return b.createTab(width, height)
}

func (b *Browser) viewport() (int, int) {
	if b.config.Stealth.RandomizeViewport {
		vp := viewports[b.rand.Intn(len(viewports))]
		return vp[0], vp[1]
	}
	return b.config.Browser.ViewportWidth, b.config.Browser.ViewportHeight
}

func (b *Browser) createTab(width, height int) error {
	var err error
	b.tab, err = b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	err = b.tab.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
	if err != nil {
		b.logger.WithError(err).Warn("Failed to set viewport")
	}

	if b.config.Stealth.RandomUserAgent {
		userAgent := userAgents[b.rand.Intn(len(userAgents))]
		err = b.tab.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: userAgent,
		})
		if err != nil {
			b.logger.WithError(err).Warn("Failed to set user agent")
		} else {
			b.logger.WithField("user_agent", userAgent).Debug("User agent set")
		}
	}

	if b.config.Stealth.DisableWebdriver {
		b.tab.EvalOnNewDocument(stealthScript)
	}

	b.logger.Info("Page created with stealth settings")
	return nil
}

// Driver returns the active tab as a page.Driver.
func (b *Browser) Driver() page.Driver {
	return &rodDriver{
		tab:    b.tab,
		logger: b.logger,
	}
}

// Tab returns the underlying Rod page for operations outside the driver
// interface, such as cookie management.
func (b *Browser) Tab() *rod.Page {
	return b.tab
}

// ExportCookies serializes the browser's current cookies to JSON for
// session persistence.
func (b *Browser) ExportCookies() (string, error) {
	cookies, err := b.browser.GetCookies()
	if err != nil {
		return "", fmt.Errorf("failed to read cookies: %w", err)
	}

	data, err := json.Marshal(cookies)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cookies: %w", err)
	}
	return string(data), nil
}

// ImportCookies restores a cookie snapshot produced by ExportCookies.
func (b *Browser) ImportCookies(snapshot string) error {
	if snapshot == "" {
		return nil
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal([]byte(snapshot), &cookies); err != nil {
		return fmt.Errorf("failed to parse cookie snapshot: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}

	if err := b.browser.SetCookies(params); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}

	b.logger.Infof("Restored %d cookies", len(params))
	return nil
}

// TakeScreenshot saves a full screenshot of the current page.
func (b *Browser) TakeScreenshot(filename string) error {
	data, err := b.tab.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}

	b.logger.WithField("filename", filename).Info("Screenshot saved")
	return nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.logger.Info("Closing browser")

	if b.tab != nil {
		b.tab.Close()
	}
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}

// rodDriver adapts a Rod page to page.Driver.
type rodDriver struct {
	tab    *rod.Page
	logger *logger.Logger
}

// mapErr translates Rod's deadline errors into page.ErrTimeout so callers
// can distinguish "not found in time" from hard failures.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return page.ErrTimeout
	}
	return err
}

func (d *rodDriver) Navigate(url string) error {
	if err := d.tab.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := d.tab.WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	return nil
}

func (d *rodDriver) WaitNetworkIdle(timeout time.Duration) error {
	return mapErr(d.tab.Timeout(timeout).WaitIdle(timeout))
}

func (d *rodDriver) Find(selector string, timeout time.Duration) (page.Control, error) {
	el, err := d.tab.Timeout(timeout).Element(selector)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rodControl{el: el}, nil
}

func (d *rodDriver) FindByText(selector, text string, timeout time.Duration) (page.Control, error) {
	pattern := "/" + regexp.QuoteMeta(text) + "/"
	el, err := d.tab.Timeout(timeout).ElementR(selector, pattern)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rodControl{el: el}, nil
}

func (d *rodDriver) FindAll(selector string) ([]page.Control, error) {
	els, err := d.tab.Elements(selector)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]page.Control, 0, len(els))
	for _, el := range els {
		out = append(out, &rodControl{el: el})
	}
	return out, nil
}

func (d *rodDriver) Click(c page.Control) error {
	rc, ok := c.(*rodControl)
	if !ok {
		return fmt.Errorf("click: unexpected control type %T", c)
	}
	return rc.el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *rodDriver) Type(c page.Control, text string) error {
	rc, ok := c.(*rodControl)
	if !ok {
		return fmt.Errorf("type: unexpected control type %T", c)
	}
	return rc.el.Input(text)
}

func (d *rodDriver) PressBackspace() error {
	return d.tab.Keyboard.Type(input.Backspace)
}

func (d *rodDriver) MovePointer(x, y float64) error {
	return d.tab.Mouse.MoveTo(proto.Point{X: x, Y: y})
}

func (d *rodDriver) ScrollBy(dx, dy float64) error {
	return d.tab.Mouse.Scroll(dx, dy, 1)
}

func (d *rodDriver) CurrentURL() string {
	info, err := d.tab.Info()
	if err != nil {
		d.logger.WithError(err).Debug("Failed to read page info")
		return ""
	}
	return info.URL
}

func (d *rodDriver) HTML() (string, error) {
	return d.tab.HTML()
}

// rodControl adapts a Rod element to page.Control.
type rodControl struct {
	el *rod.Element
}

func (c *rodControl) Attribute(name string) (string, bool) {
	v, err := c.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (c *rodControl) Text() (string, error) {
	return c.el.Text()
}

func (c *rodControl) Visible() bool {
	visible, err := c.el.Visible()
	return err == nil && visible
}

func (c *rodControl) Box() (page.Box, error) {
	shape, err := c.el.Shape()
	if err != nil {
		return page.Box{}, err
	}
	box := shape.Box()
	if box == nil {
		return page.Box{}, fmt.Errorf("element has no visible box")
	}
	return page.Box{
		X:      box.X,
		Y:      box.Y,
		Width:  box.Width,
		Height: box.Height,
	}, nil
}

func (c *rodControl) ScrollIntoView() error {
	return c.el.ScrollIntoView()
}

// stealthScript masks the usual automation fingerprints before any page
// script runs.
const stealthScript = `
	// Remove webdriver property
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});

	// Overwrite the 'plugins' property to use a custom getter
	Object.defineProperty(navigator, 'plugins', {
		get: () => [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' }
		]
	});

	// Overwrite the 'languages' property
	Object.defineProperty(navigator, 'languages', {
		get: () => ['ja-JP', 'ja', 'en-US', 'en']
	});

	// Fix permissions
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: originalQuery(parameters)
	);

	// Mock chrome object
	window.chrome = {
		runtime: {},
		loadTimes: function() {},
		csi: function() {},
		app: {}
	};

	// Keep webgl rendering consistent
	const getContext = HTMLCanvasElement.prototype.getContext;
	HTMLCanvasElement.prototype.getContext = function(type, attributes) {
		if (type === 'webgl' || type === 'webgl2') {
			attributes = Object.assign({}, attributes, {
				preserveDrawingBuffer: true
			});
		}
		return getContext.call(this, type, attributes);
	};

	// Add realistic screen properties
	Object.defineProperty(screen, 'availWidth', { get: () => screen.width });
	Object.defineProperty(screen, 'availHeight', { get: () => screen.height - 40 });

	// Hide the patched query function
	const oldToString = Function.prototype.toString;
	Function.prototype.toString = function() {
		if (this === window.navigator.permissions.query) {
			return 'function query() { [native code] }';
		}
		return oldToString.call(this);
	};
`
