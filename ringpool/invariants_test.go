package ringpool

import "testing"

// checkInvariantsLocked re-derives the pool's bookkeeping invariants.
// Tests call it while holding p.mu
// themselves or immediately after an operation that released it, so a
// concurrent mutation can in principle race with the check. That is
// acceptable here since it is only ever used to sanity-check a single
// goroutine's view of a freshly quiesced pool, never as a hot-path
// assertion.
func checkInvariantsLocked(t *testing.T, p *pool) {
	t.Helper()

	if p.numReceivers >= 1 && len(p.segments) < p.numReceivers+2 {
		t.Errorf("invariant 3 violated: numSegments=%d numReceivers=%d", len(p.segments), p.numReceivers)
	}
	if len(p.segments) != 1 && p.prevWritten == p.lastWritten {
		t.Errorf("invariant 5 violated: prevWritten == lastWritten == %d", p.lastWritten)
	}
	for i, seg := range p.segments {
		if seg.borrows > 250 {
			t.Errorf("segment %d borrows suspiciously high: %d", i, seg.borrows)
		}
	}
}

func TestInvariantsHoldAcrossLifecycle(t *testing.T) {
	sender, receiver := NewPool(8)

	sender.p.mu.Lock()
	checkInvariantsLocked(t, sender.p)
	sender.p.mu.Unlock()

	for ts := uint64(1); ts <= 5; ts++ {
		if err := sender.Publish([]byte("abcdefgh"), ts); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		sender.p.mu.Lock()
		checkInvariantsLocked(t, sender.p)
		sender.p.mu.Unlock()
	}

	child, err := receiver.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	receiver.p.mu.Lock()
	checkInvariantsLocked(t, receiver.p)
	receiver.p.mu.Unlock()

	v, err := child.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	child.Release(v)
	child.Close()
	receiver.Close()
	sender.Close()
}
