// Package status delivers human-readable run progress to connected
// observers. The orchestrator and session manager report through the
// Notifier interface; the Hub fans each event out to every websocket
// subscriber currently connected. Delivery is fire-and-forget: there is no
// replay buffer for late subscribers and emission never blocks the caller.
package status

import "time"

// Severity classifies a progress event for display purposes.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event is one progress line emitted during a run.
type Event struct {
	Message   string    `json:"message"`
	Type      Severity  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is the sink run progress is reported to.
type Notifier interface {
	Emit(message string, severity Severity)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string, severity Severity)

// Emit calls f(message, severity).
func (f NotifierFunc) Emit(message string, severity Severity) {
	f(message, severity)
}

// Discard is a Notifier that drops every event.
var Discard Notifier = NotifierFunc(func(string, Severity) {})
