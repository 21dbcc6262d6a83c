package dedupe

import "errors"

// ErrDuplicate reports a submission identical to one accepted inside the window.
var ErrDuplicate = errors.New("duplicate submission")
