package notify

import "errors"

// Sentinel kinds for notifier errors.
var (
	ErrMisconfigured = errors.New("notifier misconfigured")
	ErrDelivery      = errors.New("notification delivery failed")
)
