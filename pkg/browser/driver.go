package browser

import "time"

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Timeout bounds the wait for the element to become actionable.
	Timeout time.Duration

	// Force bypasses actionability checks; needed for controls the target
	// application overlays during list-view re-renders.
	Force bool
}

// Driver is the page-level surface a workflow run drives. A Driver is bound
// to one browsing context and is not safe for concurrent use; the workflow
// executes its steps strictly sequentially.
type Driver interface {
	// Goto navigates to the URL and waits for the DOM to be ready.
	Goto(url string, timeout time.Duration) error

	// CurrentURL returns the page's current URL.
	CurrentURL() string

	// Fill replaces the value of the input matching selector.
	Fill(selector, value string, timeout time.Duration) error

	// Click activates the element matching selector.
	Click(selector string, opts ClickOptions) error

	// Press sends a single keystroke to the element matching selector.
	Press(selector, key string, timeout time.Duration) error

	// WaitFor blocks until the element matching selector reaches the given
	// state ("attached", "detached", "visible", "hidden") or the timeout
	// elapses.
	WaitFor(selector, state string, timeout time.Duration) error

	// Settle pauses for a fixed duration to let the target application's
	// client-side re-render catch up after an action.
	Settle(d time.Duration)
}
