package browser

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/hexmodal/marathon/pkg/status"
)

// Manager owns the Playwright engine and the single browser process shared
// by all runs. Both are created lazily and reused until Shutdown; browsing
// contexts are handed out fresh per run via NewRunContext.
type Manager struct {
	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	notify   status.Notifier
	headless bool
}

// NewManager creates a manager that reports first-time resource creation to
// notify. headless controls the browser launch mode; production runs are
// headless, headed mode exists for local debugging.
func NewManager(notify status.Notifier, headless bool) *Manager {
	if notify == nil {
		notify = status.Discard
	}
	return &Manager{
		notify:   notify,
		headless: headless,
	}
}

// EnsureSession starts the Playwright engine and launches the browser
// process if either is missing. Idempotent: subsequent calls reuse the live
// handles and emit nothing.
func (m *Manager) EnsureSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureSessionLocked()
}

func (m *Manager) ensureSessionLocked() error {
	if m.pw == nil {
		m.notify.Emit("Starting browser engine...", status.SeverityInfo)

		// Discard driver output so it cannot interleave with server logs.
		opts := &playwright.RunOptions{
			Verbose: false,
			Stdout:  io.Discard,
			Stderr:  io.Discard,
		}
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
		pw, err := playwright.Run(opts)
		if err != nil {
			return fmt.Errorf("failed to start playwright: %w", err)
		}
		m.pw = pw
	}

	if m.browser == nil {
		m.notify.Emit("Launching headless browser...", status.SeverityInfo)

		// Sandboxing is disabled for containerized execution.
		browser, err := m.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(m.headless),
			Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
		})
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		m.browser = browser
	}

	return nil
}

// NewRunContext returns a fresh isolated browsing context with one page,
// starting the engine and browser first if needed. Nothing (cookies,
// storage) carries over from prior runs.
func (m *Manager) NewRunContext() (Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureSessionLocked(); err != nil {
		return nil, err
	}

	context, err := m.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &RunContext{context: context, page: page}, nil
}

// TeardownRunContext closes the run's page and then its context. Errors are
// swallowed: resource release must never fail the run. A nil Driver (from a
// failed NewRunContext) is tolerated.
func (m *Manager) TeardownRunContext(d Driver) {
	rc, ok := d.(*RunContext)
	if !ok || rc == nil {
		return
	}
	_ = rc.page.Close()
	_ = rc.context.Close()
}

// Shutdown closes the browser process and stops the engine, swallowing
// errors and resetting both handles so a later EnsureSession recreates them
// cleanly.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		_ = m.browser.Close()
		m.browser = nil
	}
	if m.pw != nil {
		_ = m.pw.Stop()
		m.pw = nil
	}
}
