package ringpool

// Sender is the single-producer handle into a pool. The API gives it
// no Clone method: only Receiver can be cloned, so a pool can never
// end up with more than one live sender.
type Sender struct {
	p      *pool
	closed bool
}

// Publish copies data into the segment the arbiter selects and stamps
// it with ts. It never blocks on a slow receiver: if every other
// segment is pinned, Publish conflates by overwriting lastWritten
// itself.
//
// The mutex is held only for bookkeeping: picking the target before
// the copy, and committing the timestamp and lastWritten after it. The
// copy itself runs unsynchronized, which is the whole point of the
// design; the target has no borrows outside the conflation path.
//
// Publish returns ErrSenderClosed once Close has been called.
func (s *Sender) Publish(data []byte, ts uint64) error {
	if s.closed {
		return ErrSenderClosed
	}
	p := s.p

	p.mu.Lock()
	if p.numReceivers == 0 {
		p.mu.Unlock()
		return ErrNoReceivers
	}

	target := p.pickWriter()
	if target == p.lastWritten {
		p.conflations++
	} else {
		p.prevWritten = p.lastWritten
	}
	seg := p.segments[target]
	p.mu.Unlock()

	n := copy(seg.buf, data)
	if n < len(seg.buf) {
		// zero the remainder so stale bytes from a previous, larger
		// payload never leak into a short one.
		clear(seg.buf[n:])
	}

	p.mu.Lock()
	seg.timestamp = ts
	p.lastWritten = target
	p.mu.Unlock()

	return nil
}

// Stats reports a point-in-time snapshot of pool bookkeeping, for
// health and metrics reporting. It is safe to call concurrently with
// Publish and every Receiver method.
func (s *Sender) Stats() Stats {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		NumSegments:      len(p.segments),
		NumReceivers:     p.numReceivers,
		ConflationsTotal: p.conflations,
	}
}

// Close detaches the sender. Any later Publish call on this Sender
// returns ErrSenderClosed; the pool is freed immediately if no
// receiver remains.
func (s *Sender) Close() {
	if s.closed {
		return
	}
	s.closed = true

	p := s.p
	p.mu.Lock()
	p.noSender = true
	p.maybeFreeLocked()
	p.mu.Unlock()
}
