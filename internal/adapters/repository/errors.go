package repository

import "errors"

// ErrNotFound is returned for absent and expired keys alike.
var ErrNotFound = errors.New("not found or expired")
