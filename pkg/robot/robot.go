// Package robot executes the manufacturing-order workflow against the
// target Odoo instance: one run drives a fresh browsing context through a
// fixed sequence of ten UI interactions, streaming progress to the status
// sink. At most one run executes at a time; a failure at any step aborts
// the run without retry, leaving the remote application in whatever partial
// state the prior steps produced.
package robot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hexmodal/marathon/pkg/browser"
	"github.com/hexmodal/marathon/pkg/logging"
	"github.com/hexmodal/marathon/pkg/status"
)

// Rejection errors returned before any resource is touched. A run that
// starts and then fails reports (false, nil) instead: the failure detail
// goes to the status sink, not the caller.
var (
	ErrBusy      = errors.New("a production run is already in progress")
	ErrNoSerials = errors.New("at least one serial number is required")
	ErrNoProduct = errors.New("a product name is required")
)

// errLoginFailed aborts step 1 when the login form resubmission does not
// leave the login page.
var errLoginFailed = errors.New("login failed - check credentials")

// Step timeouts and settle delays. Navigation gets the longest bound; the
// optional confirmation dialog the shortest, since its absence is normal.
const (
	navTimeout    = 30 * time.Second
	stepTimeout   = 10 * time.Second
	dialogTimeout = 3 * time.Second

	settleShort  = time.Second
	settleMedium = 2 * time.Second
	settleLong   = 3 * time.Second
	settleCreate = 1500 * time.Millisecond
)

// Target UI locators. Fixed contact points of the target application's
// current layout, not discovered at runtime.
const (
	loginInputSelector    = "input#login"
	passwordInputSelector = "input#password"
	loginSubmitSelector   = "button[type='submit']"
	newOrderSelector      = "button.o_list_button_add"
	productInputSelector  = "div[name='product_id'] input"
	quantityInputSelector = "div[name='product_qty'] input"
	confirmOrderSelector  = "button:has-text('Confirm')"
	serialAreaSelector    = "textarea[name='lot_name'], textarea.o_input"
	generateSelector      = "button:has-text('Generate')"
	markDoneSelector      = "button:has-text('Mark as Done'), button:has-text('Done')"
	dialogConfirmSelector = "button:has-text('Apply'), button.btn-primary:has-text('OK')"
)

// registerSelectors are the candidates for opening serial-number
// registration, tried in order: the target UI exposes this control under
// two different labels depending on order state.
var registerSelectors = []string{
	"button:has-text('Register Production'), button:has-text('Open')",
	"button:has-text('Open')",
}

// SessionSource provides the browsing context a run drives. Satisfied by
// *browser.Manager.
type SessionSource interface {
	NewRunContext() (browser.Driver, error)
	TeardownRunContext(browser.Driver)
}

// Request carries everything one run needs.
type Request struct {
	Product  string
	Serials  []string
	Email    string
	Password string
}

// Robot orchestrates workflow runs against one target application.
type Robot struct {
	mu      sync.Mutex
	running bool

	sessions  SessionSource
	notify    status.Notifier
	log       *logging.Logger
	loginURL  string
	ordersURL string
}

// New creates a Robot. notify receives one progress event per attempted
// step, a login confirmation after step 1 succeeds, and one terminal
// success or error event per run.
func New(sessions SessionSource, notify status.Notifier, log *logging.Logger, loginURL, ordersURL string) *Robot {
	if notify == nil {
		notify = status.Discard
	}
	return &Robot{
		sessions:  sessions,
		notify:    notify,
		log:       log,
		loginURL:  loginURL,
		ordersURL: ordersURL,
	}
}

// Running reports whether a run is currently executing.
func (r *Robot) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// begin atomically transitions Idle -> Running. It returns false when a run
// is already in flight, in which case no state changed.
func (r *Robot) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Robot) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

type step struct {
	label string
	run   func(d browser.Driver) error
}

func (r *Robot) steps(req Request) []step {
	serialsText := strings.Join(req.Serials, "\n")
	quantity := len(req.Serials)

	return []step{
		{"Logging into Odoo", func(d browser.Driver) error {
			return r.login(d, req.Email, req.Password)
		}},
		{"Loading manufacturing orders", r.openOrders},
		{"Creating new production", createOrder},
		{fmt.Sprintf("Setting product to %s", req.Product), func(d browser.Driver) error {
			return setProduct(d, req.Product)
		}},
		{fmt.Sprintf("Setting quantity to %d", quantity), func(d browser.Driver) error {
			return setQuantity(d, quantity)
		}},
		{"Confirming order", confirmOrder},
		{"Opening serial number registration", openSerialRegistration},
		{"Entering serial numbers", func(d browser.Driver) error {
			return enterSerials(d, serialsText)
		}},
		{"Generating serial records", generateSerials},
		{"Marking order as done", markDone},
	}
}

// RunMarathon executes the full workflow for one batch. It returns
// (true, nil) only when all steps complete. A run rejected before resources
// are touched (busy, missing serials or product) returns a non-nil error
// and emits nothing; a run that starts and fails returns (false, nil) after
// emitting a terminal error event. The run's context and page are released
// unconditionally, and the single-flight flag is cleared, whatever the
// outcome.
func (r *Robot) RunMarathon(req Request) (bool, error) {
	if len(req.Serials) == 0 {
		return false, ErrNoSerials
	}
	if req.Product == "" {
		return false, ErrNoProduct
	}
	if !r.begin() {
		return false, ErrBusy
	}
	defer r.end()

	d, err := r.sessions.NewRunContext()
	defer r.sessions.TeardownRunContext(d)
	if err != nil {
		r.log.Errorf("run aborted, could not acquire browser context: %v", err)
		r.notify.Emit(fmt.Sprintf("Error: %v", err), status.SeverityError)
		return false, nil
	}

	steps := r.steps(req)
	for i, s := range steps {
		r.notify.Emit(fmt.Sprintf("Step %d/%d: %s...", i+1, len(steps), s.label), status.SeverityInfo)
		if err := s.run(d); err != nil {
			r.log.Errorf("run failed at step %d (%s): %v", i+1, s.label, err)
			r.notify.Emit(fmt.Sprintf("Error: %v", err), status.SeverityError)
			return false, nil
		}
	}

	r.log.Infof("run completed: %d serials of %s", len(req.Serials), req.Product)
	r.notify.Emit("Marathon completed successfully", status.SeveritySuccess)
	return true, nil
}

// onLoginPage reports whether the URL still shows the login path.
func onLoginPage(url string) bool {
	return strings.Contains(strings.ToLower(url), "login")
}

// login navigates to the login page and submits credentials unless the
// session is already authenticated (the URL no longer shows the login
// path). Remaining on the login path after submission means the target
// rejected the credentials. Either path confirms success with its own info
// event, so a full run carries one event beyond the step count.
func (r *Robot) login(d browser.Driver, email, password string) error {
	if err := d.Goto(r.loginURL, navTimeout); err != nil {
		return err
	}
	d.Settle(settleMedium)

	if onLoginPage(d.CurrentURL()) {
		if err := d.Fill(loginInputSelector, email, stepTimeout); err != nil {
			return err
		}
		if err := d.Fill(passwordInputSelector, password, stepTimeout); err != nil {
			return err
		}
		if err := d.Click(loginSubmitSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
			return err
		}
		d.Settle(settleLong)

		if onLoginPage(d.CurrentURL()) {
			return errLoginFailed
		}
	}

	r.notify.Emit("Logged in successfully", status.SeverityInfo)
	return nil
}

func (r *Robot) openOrders(d browser.Driver) error {
	if err := d.Goto(r.ordersURL, navTimeout); err != nil {
		return err
	}
	d.Settle(settleMedium)
	return nil
}

// createOrder activates the list view's create control. The control is
// present but overlaid while the list re-renders, hence the forced click.
func createOrder(d browser.Driver) error {
	if err := d.WaitFor(newOrderSelector, "attached", navTimeout); err != nil {
		return err
	}
	if err := d.Click(newOrderSelector, browser.ClickOptions{Timeout: stepTimeout, Force: true}); err != nil {
		return err
	}
	d.Settle(settleCreate)
	return nil
}

// setProduct types the product name and confirms the top autocomplete
// suggestion.
func setProduct(d browser.Driver, product string) error {
	if err := d.WaitFor(productInputSelector, "visible", stepTimeout); err != nil {
		return err
	}
	if err := d.Click(productInputSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	if err := d.Fill(productInputSelector, product, stepTimeout); err != nil {
		return err
	}
	d.Settle(settleShort)
	if err := d.Press(productInputSelector, "Enter", stepTimeout); err != nil {
		return err
	}
	d.Settle(settleMedium)
	return nil
}

func setQuantity(d browser.Driver, quantity int) error {
	if err := d.Click(quantityInputSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	if err := d.Fill(quantityInputSelector, strconv.Itoa(quantity), stepTimeout); err != nil {
		return err
	}
	if err := d.Press(quantityInputSelector, "Enter", stepTimeout); err != nil {
		return err
	}
	d.Settle(settleMedium)
	return nil
}

func confirmOrder(d browser.Driver) error {
	if err := d.Click(confirmOrderSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	d.Settle(settleLong)
	return nil
}

// openSerialRegistration tries each candidate selector in order; the
// control's label depends on the order's state.
func openSerialRegistration(d browser.Driver) error {
	var lastErr error
	for _, selector := range registerSelectors {
		if err := d.WaitFor(selector, "visible", stepTimeout); err != nil {
			lastErr = err
			continue
		}
		if err := d.Click(selector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
			lastErr = err
			continue
		}
		d.Settle(settleMedium)
		return nil
	}
	return fmt.Errorf("serial registration control not found: %w", lastErr)
}

// enterSerials writes the full newline-joined serial list into the entry
// area in one operation.
func enterSerials(d browser.Driver, serialsText string) error {
	if err := d.WaitFor(serialAreaSelector, "visible", stepTimeout); err != nil {
		return err
	}
	if err := d.Click(serialAreaSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	if err := d.Fill(serialAreaSelector, serialsText, stepTimeout); err != nil {
		return err
	}
	d.Settle(settleShort)
	return nil
}

func generateSerials(d browser.Driver) error {
	if err := d.Click(generateSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	d.Settle(settleMedium)
	return nil
}

// markDone activates the done control, then handles the secondary
// confirmation dialog some order states pop up. The dialog's absence is
// normal and tolerated; a dialog that appears but cannot be confirmed is a
// failure.
func markDone(d browser.Driver) error {
	if err := d.WaitFor(markDoneSelector, "visible", stepTimeout); err != nil {
		return err
	}
	if err := d.Click(markDoneSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	d.Settle(settleMedium)

	if err := d.WaitFor(dialogConfirmSelector, "visible", dialogTimeout); err != nil {
		return nil
	}
	if err := d.Click(dialogConfirmSelector, browser.ClickOptions{Timeout: stepTimeout}); err != nil {
		return err
	}
	d.Settle(settleMedium)
	return nil
}
