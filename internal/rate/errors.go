package rate

import "errors"

// ErrLimited reports that the subject used up its refresh budget for the
// current window.
var ErrLimited = errors.New("rate: refresh budget exhausted")

// ErrBackend wraps counter store failures. Callers treat it as the store
// being unavailable, never as a throttle decision.
var ErrBackend = errors.New("rate: counter backend unavailable")
