package models

// Derived appointment statuses relative to "now".
const (
	StatusPassed  = "passed"
	StatusOngoing = "ongoing"
	StatusFuture  = "future"
)

// Booking modes, used as a metric/event label.
const (
	ModeDirect  = "direct"
	ModePayment = "payment"
)
