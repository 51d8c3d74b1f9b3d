// Package browser drives a real Chromium through rod and exposes its pages
// as dom documents arranged in a frame tree.
package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures the browser behavior
type Options struct {
	Width      int
	Height     int
	Timeout    time.Duration
	Headless   bool
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
}

// Browser wraps the Rod browser and the pages it opened
type Browser struct {
	browser *rod.Browser
	opts    Options
	pages   []*rod.Page
}

// Launch starts a browser process and connects to it
func Launch(opts Options) (*Browser, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 720
	}

	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(opts.Headless)

	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &Browser{browser: b, opts: opts}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() {
	for _, p := range b.pages {
		_ = p.Close()
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
}

// Open navigates a new tab to url and waits for it to settle
func (b *Browser) Open(url string) (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	b.pages = append(b.pages, page)

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if err := Settle(page, b.opts.Timeout); err != nil {
		return nil, err
	}
	return page, nil
}

// Settle waits for the load event, network idle and the first form inputs.
func Settle(page *rod.Page, timeout time.Duration) error {
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}

	// Don't hang on persistent connections (WebSockets, polling, etc.)
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	// SPAs render their forms after hydration
	waitForInputs(page, 5*time.Second)
	return nil
}

// waitForInputs polls until a visible input appears or timeout
func waitForInputs(page *rod.Page, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	checkInterval := 200 * time.Millisecond

	for time.Now().Before(deadline) {
		res, err := page.Eval(`() => {
			let visible = 0;
			document.querySelectorAll('input:not([type="hidden"]), textarea, iframe').forEach(el => {
				if (el.offsetParent) visible++;
			});
			return visible;
		}`)
		if err != nil {
			return
		}
		if res.Value.Int() > 0 {
			time.Sleep(300 * time.Millisecond)
			return
		}
		time.Sleep(checkInterval)
	}
}

// PageURL returns the current location of a page or frame.
func PageURL(page *rod.Page) string {
	res, err := page.Eval(`() => window.location.href`)
	if err != nil {
		return "about:blank"
	}
	return res.Value.Str()
}
