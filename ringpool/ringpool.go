// Package ringpool implements a single-producer/multi-consumer ring
// exchange for fixed-size frames. A Sender publishes payloads stamped
// with a caller-supplied monotonic timestamp; any number of Receivers
// borrow a read-only, zero-copy view of the most recently published
// payload without ever blocking the sender.
//
// When every other segment is pinned by a slow receiver, Publish
// conflates: it overwrites the segment it most recently wrote rather
// than stalling or allocating. This package is explicitly lossy: it
// makes no FIFO or delivery guarantee across receivers, only
// latest-value-at-acquire.
//
// A single mutex guards all bookkeeping (segment indices, borrow
// counts, receiver count); it is never held across the payload copy.
// That split is the one property a reimplementation must preserve:
// holding the mutex across the copy would serialize every receiver
// behind the writer and defeat the design.
package ringpool

// NewPool constructs a pool of bufsize-byte segments with one sender
// and one receiver attached, starting at the initial three segments.
func NewPool(bufsize int) (*Sender, *Receiver) {
	p := newPool(bufsize)
	p.numReceivers = 1
	return &Sender{p: p}, &Receiver{p: p}
}
