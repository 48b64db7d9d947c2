package ringpool

import "errors"

// Sentinel errors returned by the core API. All are recoverable at the
// caller; the pool never panics on these paths.
var (
	// ErrNoReceivers is returned by Publish when the pool currently has
	// zero live receivers. The payload is not copied.
	ErrNoReceivers = errors.New("ringpool: publish with no receivers")

	// ErrSenderClosed is returned by Borrow once the sender side has
	// been closed, and by Publish on a closed Sender. The receiver
	// itself remains usable for Close.
	ErrSenderClosed = errors.New("ringpool: sender closed")

	// ErrMaxReceivers is returned by Clone once the pool has grown to
	// MaxSegments and cannot accept another receiver.
	ErrMaxReceivers = errors.New("ringpool: max receivers reached")
)
