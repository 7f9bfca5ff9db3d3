package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// RunContext is one run's isolated browsing context and page. It implements
// Driver by translating the workflow's page operations into Playwright
// calls with bounded timeouts.
type RunContext struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

// Goto navigates to url, considering navigation done once the DOM content
// has loaded; the target application keeps loading assets long after the
// page is usable.
func (rc *RunContext) Goto(url string, timeout time.Duration) error {
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	t := ms(timeout)
	_, err := rc.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   &t,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// CurrentURL returns the page's current URL.
func (rc *RunContext) CurrentURL() string {
	return rc.page.URL()
}

// Fill replaces the value of the input matching selector.
func (rc *RunContext) Fill(selector, value string, timeout time.Duration) error {
	t := ms(timeout)
	if err := rc.page.Fill(selector, value, playwright.PageFillOptions{Timeout: &t}); err != nil {
		return fmt.Errorf("fill %s failed: %w", selector, err)
	}
	return nil
}

// Click activates the element matching selector.
func (rc *RunContext) Click(selector string, opts ClickOptions) error {
	playwrightOpts := playwright.PageClickOptions{}
	if opts.Timeout > 0 {
		t := ms(opts.Timeout)
		playwrightOpts.Timeout = &t
	}
	if opts.Force {
		playwrightOpts.Force = playwright.Bool(true)
	}
	if err := rc.page.Click(selector, playwrightOpts); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

// Press sends a single keystroke to the element matching selector.
func (rc *RunContext) Press(selector, key string, timeout time.Duration) error {
	t := ms(timeout)
	if err := rc.page.Press(selector, key, playwright.PagePressOptions{Timeout: &t}); err != nil {
		return fmt.Errorf("press %s on %s failed: %w", key, selector, err)
	}
	return nil
}

// WaitFor blocks until the element matching selector reaches state or the
// timeout elapses.
func (rc *RunContext) WaitFor(selector, state string, timeout time.Duration) error {
	playwrightState := playwright.WaitForSelectorState(state)
	t := ms(timeout)
	_, err := rc.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   &playwrightState,
		Timeout: &t,
	})
	if err != nil {
		return fmt.Errorf("wait for %s (%s) failed: %w", selector, state, err)
	}
	return nil
}

// Settle pauses the page for a fixed duration.
func (rc *RunContext) Settle(d time.Duration) {
	rc.page.WaitForTimeout(ms(d))
}
