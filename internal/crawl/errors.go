package crawl

import (
	"errors"
	"fmt"
)

// ErrDisallowed marks a task dropped by the robots policy. Expected and
// non-fatal: the agent logs it and moves on.
var ErrDisallowed = errors.New("disallowed by robots policy")

// TransportError is a connection-level fault against the broker or
// another backing link. Unlike task-local failures it is fatal to the
// owning loop and propagates to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err carries a TransportError anywhere in
// its chain.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
