// Package browser owns the lifecycle of the Playwright engine, the headless
// browser process, and the per-run browsing contexts the workflow drives.
//
// # Resource lifetimes
//
// The engine and browser process are created lazily on first use and live
// for the server process's lifetime (or until Shutdown). A browsing context
// and page are created fresh for each run and destroyed when the run ends,
// so no cookies or storage leak between runs.
//
//	manager := browser.NewManager(hub, true)
//	driver, err := manager.NewRunContext() // launches engine+browser on first call
//	defer manager.TeardownRunContext(driver)
//
// Teardown and Shutdown swallow errors: releasing a resource must never
// replace the run's actual outcome.
//
// # Driver
//
// The orchestrator never talks to Playwright directly. It drives the page
// through the Driver interface, which wraps the handful of page operations
// the workflow needs and lets tests substitute a fake.
package browser
