// Package screenshot captures a rendered page as a PNG when no platform strategy
// produced an image.
package screenshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"stash/internal/platform"
)

const (
	// chromedp encodes full-page shots as PNG only at quality 100.
	pngQuality = 100

	defaultTimeout   = 25 * time.Second
	selectorTimeout  = 4 * time.Second
	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
)

// Login-walled platforms render a sign-in page for headless browsers.
var ineligible = map[platform.Platform]bool{
	platform.Instagram: true,
	platform.Facebook:  true,
	platform.LinkedIn:  true,
	platform.TikTok:    true,
	platform.Threads:   true,
}

func Eligible(p platform.Platform) bool {
	return !ineligible[p]
}

type Profile struct {
	Width    int64
	Height   int64
	Mobile   bool
	Settle   time.Duration
	Selector string
	FullPage bool
}

var defaultProfile = Profile{Width: 1280, Height: 900, Settle: 2 * time.Second}

var profiles = map[platform.Platform]Profile{
	platform.Twitter:   {Width: 600, Height: 1000, Settle: 3 * time.Second, Selector: `article[data-testid="tweet"]`},
	platform.Reddit:    {Width: 900, Height: 1200, Settle: 2 * time.Second, Selector: "shreddit-post"},
	platform.Pinterest: {Width: 1000, Height: 1200, Settle: 3 * time.Second, Selector: `[data-test-id="pin-closeup-image"]`},
	platform.YouTube:   {Width: 1280, Height: 720, Settle: 3 * time.Second, Selector: "#movie_player"},
	platform.Amazon:    {Width: 1280, Height: 1000, Settle: 2 * time.Second, Selector: "#imgTagWrapperId"},
	platform.Spotify:   {Width: 1280, Height: 900, Settle: 3 * time.Second},
	platform.Medium:    {Width: 430, Height: 932, Mobile: true, Settle: 2 * time.Second, FullPage: true},
	platform.Substack:  {Width: 430, Height: 932, Mobile: true, Settle: 2 * time.Second, FullPage: true},
}

func ProfileFor(p platform.Platform) Profile {
	if prof, ok := profiles[p]; ok {
		return prof
	}
	return defaultProfile
}

// Capture never carries an error value: a failed capture is OK=false with a reason.
type Capture struct {
	Image []byte
	OK    bool
	Err   string
}

func failed(format string, args ...any) Capture {
	return Capture{Err: fmt.Sprintf(format, args...)}
}

type Capturer interface {
	Capture(ctx context.Context, url string, p platform.Platform) Capture
}

// Chrome starts a fresh headless browser for each capture.
type Chrome struct {
	ExecPath string
	Timeout  time.Duration
	log      logrus.FieldLogger
}

func NewChrome(execPath string, log logrus.FieldLogger) *Chrome {
	return &Chrome{ExecPath: execPath, Timeout: defaultTimeout, log: log}
}

func (c *Chrome) allocatorOptions(prof Profile) []chromedp.ExecAllocatorOption {
	ua := desktopUserAgent
	if prof.Mobile {
		ua = mobileUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(int(prof.Width), int(prof.Height)),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	return opts
}

func (c *Chrome) Capture(ctx context.Context, url string, p platform.Platform) Capture {
	if !Eligible(p) {
		return failed("platform %s is not eligible for screenshots", p)
	}
	prof := ProfileFor(p)
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocatorOptions(prof)...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer browserCancel()

	err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDeviceMetricsOverride(prof.Width, prof.Height, 1, prof.Mobile).Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.Sleep(prof.Settle),
	)
	if err != nil {
		return failed("navigate: %v", err)
	}

	c.dismissPopups(browserCtx, prof)

	var buf []byte
	if prof.Selector != "" {
		if err := c.captureElement(browserCtx, prof.Selector, &buf); err == nil && len(buf) > 0 {
			return Capture{Image: buf, OK: true}
		} else if c.log != nil {
			c.log.WithFields(logrus.Fields{"platform": p, "selector": prof.Selector}).Debugf("element screenshot failed: %v", err)
		}
	}

	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if prof.FullPage {
		action = chromedp.FullScreenshot(&buf, pngQuality)
	}
	if err := chromedp.Run(browserCtx, action); err != nil {
		return failed("screenshot: %v", err)
	}
	if len(buf) == 0 {
		return failed("screenshot: empty image")
	}
	return Capture{Image: buf, OK: true}
}

func (c *Chrome) captureElement(ctx context.Context, selector string, buf *[]byte) error {
	var present bool
	probe := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := chromedp.Run(ctx, chromedp.Evaluate(probe, &present)); err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("selector %q not found", selector)
	}
	ctx, cancel := context.WithTimeout(ctx, selectorTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Screenshot(selector, buf, chromedp.NodeVisible, chromedp.ByQuery))
}

var dismissLabels = []string{"close", "dismiss", "accept", "accept all", "agree", "not now", "no thanks", "got it"}

const hideOverlaysCSS = `
[role="dialog"], [aria-modal="true"], .modal, .overlay, #onetrust-banner-sdk,
#credential_picker_container, [class*="cookie"], [id*="cookie"], [class*="consent"],
[class*="paywall"], [class*="signup-wall"] { display: none !important; }
body, html { overflow: auto !important; }`

// dismissPopups is best effort: clicks close/accept buttons, hides overlays, then
// scrolls the main content into view.
func (c *Chrome) dismissPopups(ctx context.Context, prof Profile) {
	labels := make([]string, len(dismissLabels))
	for i, l := range dismissLabels {
		labels[i] = fmt.Sprintf("%q", l)
	}
	script := fmt.Sprintf(`(() => {
		const labels = [%s];
		for (const el of document.querySelectorAll('button, [role="button"], a')) {
			const text = ((el.getAttribute('aria-label') || el.textContent) || '').trim().toLowerCase();
			if (labels.includes(text)) { try { el.click(); } catch (e) {} }
		}
		const style = document.createElement('style');
		style.textContent = %q;
		document.head.appendChild(style);
		const target = %q ? document.querySelector(%q) : null;
		if (target) { target.scrollIntoView({block: 'center'}); } else { window.scrollTo(0, 0); }
		return true;
	})()`, strings.Join(labels, ", "), hideOverlaysCSS, prof.Selector, prof.Selector)

	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ok), chromedp.Sleep(300*time.Millisecond)); err != nil && c.log != nil {
		c.log.Debugf("popup pass failed: %v", err)
	}
}

// HostedURL builds a third-party screenshot URL for pages that cannot be captured
// locally. An empty service disables it.
func HostedURL(service, pageURL string) string {
	if service == "" || pageURL == "" {
		return ""
	}
	if !strings.HasSuffix(service, "/") {
		service += "/"
	}
	return service + pageURL
}
