package ringpool

import "sync"

// pool is the segment arbitration engine shared by a Sender and its
// Receivers. All of its fields except segment buffer contents are
// guarded by mu; the buffer contents themselves are only mutated by
// the sender, and only on a segment with a zero borrow count (outside
// the documented conflation tear window, see Sender.Publish).
type pool struct {
	mu sync.Mutex

	segments []*segment
	bufsize  int

	lastWritten int
	prevWritten int

	numReceivers int
	noSender     bool

	// conflations counts every Publish call that had to overwrite
	// lastWritten because every other segment was pinned. Exposed via
	// Sender.Stats for callers that want to surface it as a metric.
	conflations uint64

	// freed is set exactly once, by the side that observes both the
	// sender and every receiver gone. After that point the mutex is
	// never touched again.
	freed bool
}

// newPool allocates the initial three segments and sets up the
// lastWritten/prevWritten window.
func newPool(bufsize int) *pool {
	p := &pool{
		bufsize:     bufsize,
		lastWritten: 0,
		prevWritten: 1,
	}
	for i := 0; i < initialSegments; i++ {
		p.segments = append(p.segments, &segment{buf: make([]byte, bufsize)})
	}
	return p
}

// grow allocates one additional segment and returns its index. Caller
// must hold mu. The new segment has borrows == 0 and is immediately
// eligible as a writer target, but no reader references it yet.
func (p *pool) grow() (int, error) {
	if len(p.segments) >= MaxSegments {
		return 0, ErrMaxReceivers
	}
	p.segments = append(p.segments, &segment{buf: make([]byte, p.bufsize)})
	return len(p.segments) - 1, nil
}

// maybeFreeLocked checks whether both sides are gone and, if so, drops
// the segment buffers. Caller must hold mu and must not use the pool
// again afterward on this path.
func (p *pool) maybeFreeLocked() {
	if p.freed {
		return
	}
	if p.noSender && p.numReceivers == 0 {
		p.segments = nil
		p.freed = true
	}
}
