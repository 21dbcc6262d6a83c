package guard

import "errors"

// ErrInFlight reports that an operation of the same kind is already running for the client.
var ErrInFlight = errors.New("operation already in progress for client")
