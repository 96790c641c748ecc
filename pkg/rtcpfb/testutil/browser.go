// browser.go provides browser automation utilities for E2E testing.
// It wraps Rod to provide WebRTC-ready Chrome instances.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/pkg/errors"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default operation timeout (default: 30s)
}

// DefaultBrowserConfig returns sensible defaults for E2E testing.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// BrowserClient wraps Rod with WebRTC-ready Chrome configuration.
type BrowserClient struct {
	browser *rod.Browser
	page    *rod.Page
	timeout time.Duration
}

// NewBrowserClient creates a headless Chrome with WebRTC flags.
// The browser is configured with:
//   - Fake media streams (no real camera/mic required)
//   - Auto-granted media permissions
//   - No sandbox (for container compatibility)
//   - Autoplay without user gesture
func NewBrowserClient(cfg BrowserConfig) (*BrowserClient, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("use-fake-device-for-media-stream").
		Set("use-fake-ui-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required")

	url, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "failed to launch Chrome")
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Chrome")
	}

	return &BrowserClient{
		browser: browser,
		timeout: cfg.Timeout,
	}, nil
}

// Navigate opens a URL with timeout.
// Returns the page for further interaction.
func (c *BrowserClient) Navigate(url string) (*rod.Page, error) {
	page := c.browser.MustPage()
	c.page = page

	err := page.Timeout(c.timeout).Navigate(url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to navigate to %s", url)
	}

	// Cancel timeout so Close() works
	page.CancelTimeout()
	return page, nil
}

// Page returns the current page, or nil if none open.
func (c *BrowserClient) Page() *rod.Page {
	return c.page
}

// WaitStable waits for the page to be stable (no DOM changes).
func (c *BrowserClient) WaitStable() error {
	if c.page == nil {
		return errors.New("no page open")
	}
	return c.page.WaitStable(c.timeout)
}

// Eval executes JavaScript and returns the result.
// Requires Navigate() to have been called first.
func (c *BrowserClient) Eval(js string) (interface{}, error) {
	if c.page == nil {
		return nil, errors.New("no page open, call Navigate first")
	}
	result, err := c.page.Eval(js)
	if err != nil {
		return nil, errors.Wrap(err, "eval failed")
	}
	return result.Value, nil
}

// KeyFrameStats are the key-frame request counters Chrome reports for its
// outbound video stream.
type KeyFrameStats struct {
	FirCount    int `json:"firCount"`
	PliCount    int `json:"pliCount"`
	FramesSent  int `json:"framesSent"`
	KeyFrames   int `json:"keyFramesEncoded"`
	Unsupported bool
}

// outboundStatsJS collects the outbound-rtp video stats of window.pc.
const outboundStatsJS = `async () => {
	if (!window.pc) return null;
	const stats = await window.pc.getStats();
	let out = null;
	stats.forEach(s => {
		if (s.type === 'outbound-rtp' && s.kind === 'video') {
			out = {firCount: s.firCount || 0, pliCount: s.pliCount || 0,
				framesSent: s.framesSent || 0, keyFramesEncoded: s.keyFramesEncoded || 0};
		}
	});
	return out === null ? null : JSON.stringify(out);
}`

// OutboundKeyFrameStats reads the key-frame counters of the page's
// RTCPeerConnection, which the page must expose as window.pc.
func (c *BrowserClient) OutboundKeyFrameStats() (KeyFrameStats, error) {
	var stats KeyFrameStats
	if c.page == nil {
		return stats, errors.New("no page open, call Navigate first")
	}
	result, err := c.page.Eval(outboundStatsJS)
	if err != nil {
		return stats, errors.Wrap(err, "getStats failed")
	}
	if result.Value.Nil() {
		stats.Unsupported = true
		return stats, nil
	}
	if err := json.Unmarshal([]byte(result.Value.Str()), &stats); err != nil {
		return stats, errors.Wrap(err, "decode stats")
	}
	return stats, nil
}

// Close cleans up browser resources.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (c *BrowserClient) Close() error {
	if c.browser != nil {
		return c.browser.Close()
	}
	return nil
}
