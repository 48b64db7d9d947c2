package ringpool

// Receiver is one consumer's handle into a pool. A handle on its own
// pins no segment; only an outstanding View between Borrow and
// Release does. Clone grows the pool by one segment and hands back an
// independent Receiver sharing the same underlying pool.
type Receiver struct {
	p      *pool
	closed bool
}

// Borrow returns a read-only View of lastWritten, the most recently
// published segment. This is always safe to hand out: pickWriter never
// targets lastWritten in place unless every other segment is pinned,
// in which case the writer's target and lastWritten are the same
// index anyway, the one documented conflation tear window.
func (r *Receiver) Borrow() (View, error) {
	p := r.p

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.noSender {
		return View{}, ErrSenderClosed
	}

	idx := p.pickReader()
	seg := p.segments[idx]
	return View{Data: seg.buf, Timestamp: seg.timestamp, index: idx}, nil
}

// Release returns the borrow a View pinned. Releasing a View twice, or
// one not obtained from this Receiver's pool, is a contract violation;
// it is tolerated here (the borrow count floors at zero) rather than
// panicking, but callers must not rely on that.
func (r *Receiver) Release(v View) {
	p := r.p

	p.mu.Lock()
	if v.index >= 0 && v.index < len(p.segments) && p.segments[v.index].borrows > 0 {
		p.segments[v.index].borrows--
	}
	p.mu.Unlock()
}

// Clone grows the pool by one segment and returns a new Receiver that
// shares it. Fails with ErrMaxReceivers once the pool has reached
// MaxSegments; the receiver this is called on remains valid either
// way.
func (r *Receiver) Clone() (*Receiver, error) {
	p := r.p

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.grow(); err != nil {
		return nil, err
	}
	p.numReceivers++

	return &Receiver{p: p}, nil
}

// Close detaches this receiver from the pool. The pool is freed once
// the last receiver and the sender have both closed.
func (r *Receiver) Close() {
	if r.closed {
		return
	}
	r.closed = true

	p := r.p
	p.mu.Lock()
	p.numReceivers--
	p.maybeFreeLocked()
	p.mu.Unlock()
}
