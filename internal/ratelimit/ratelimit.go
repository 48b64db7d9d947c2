// Package ratelimit wraps golang.org/x/time/rate for the two places
// ringcast-server needs backpressure: accepting new connections (which
// ultimately calls Receiver.Clone) and pushing heartbeats.
package ratelimit

import (
	"golang.org/x/time/rate"
)

// Limiters bundles the transport server's rate limiters.
type Limiters struct {
	Connect   *rate.Limiter
	Heartbeat *rate.Limiter
}

// New builds limiters allowing connectPerSec new connections per
// second (burst 2x) and heartbeatPerSec heartbeat ticks per second
// (burst 2x). Each limiter is a single instance shared by every
// connection.
func New(connectPerSec float64, heartbeatPerSec float64) *Limiters {
	return &Limiters{
		Connect:   rate.NewLimiter(rate.Limit(connectPerSec), max(1, int(connectPerSec*2))),
		Heartbeat: rate.NewLimiter(rate.Limit(heartbeatPerSec), max(1, int(heartbeatPerSec*2))),
	}
}
