package ringpool

import (
	"bytes"
	"errors"
	"testing"
)

func TestBasicExchange(t *testing.T) {
	sender, receiver := NewPool(4)

	if err := sender.Publish([]byte{1, 2, 3, 4}, 10); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	view, err := receiver.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if !bytes.Equal(view.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("Data = %v, want [1 2 3 4]", view.Data)
	}
	if view.Timestamp != 10 {
		t.Errorf("Timestamp = %d, want 10", view.Timestamp)
	}
	receiver.Release(view)
}

func TestConflationUnderPin(t *testing.T) {
	sender, r1 := NewPool(4)

	if err := sender.Publish([]byte{1, 1, 1, 1}, 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	held, err := r1.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if !bytes.Equal(held.Data, []byte{1, 1, 1, 1}) {
		t.Fatalf("initial borrow Data = %v", held.Data)
	}

	if err := sender.Publish([]byte{2, 2, 2, 2}, 2); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	if err := sender.Publish([]byte{3, 3, 3, 3}, 3); err != nil {
		t.Fatalf("Publish 3: %v", err)
	}
	if err := sender.Publish([]byte{4, 4, 4, 4}, 4); err != nil {
		t.Fatalf("Publish 4: %v", err)
	}

	// held still points at the segment from ts=1; with only 3 segments
	// and one pinned, successive publishes had at most one free slot
	// to rotate into, so the pinned view must be untouched throughout.
	if !bytes.Equal(held.Data, []byte{1, 1, 1, 1}) {
		t.Errorf("pinned view mutated: Data = %v, want [1 1 1 1]", held.Data)
	}
	r1.Release(held)

	fresh, err := r1.Borrow()
	if err != nil {
		t.Fatalf("Borrow after release: %v", err)
	}
	if fresh.Timestamp != 3 && fresh.Timestamp != 4 {
		t.Errorf("Timestamp = %d, want 3 or 4", fresh.Timestamp)
	}
	r1.Release(fresh)
}

func TestNoReceiverDrop(t *testing.T) {
	sender, receiver := NewPool(4)
	receiver.Close()

	if err := sender.Publish([]byte{1, 2, 3, 4}, 1); !errors.Is(err, ErrNoReceivers) {
		t.Errorf("Publish after last receiver closed: err = %v, want ErrNoReceivers", err)
	}
}

func TestSenderGoneClose(t *testing.T) {
	sender, receiver := NewPool(4)
	sender.Close()

	if _, err := receiver.Borrow(); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Borrow after sender closed: err = %v, want ErrSenderClosed", err)
	}

	// Close must still succeed and must not double-free.
	receiver.Close()
}

func TestMaxFanout(t *testing.T) {
	_, receiver := NewPool(4)

	receivers := []*Receiver{receiver}
	for i := 0; i < 13; i++ {
		child, err := receiver.Clone()
		if err != nil {
			t.Fatalf("Clone %d: %v", i, err)
		}
		receivers = append(receivers, child)
	}

	if _, err := receiver.Clone(); !errors.Is(err, ErrMaxReceivers) {
		t.Errorf("14th Clone: err = %v, want ErrMaxReceivers", err)
	}

	for _, r := range receivers {
		if got := len(r.p.segments); got != MaxSegments {
			t.Errorf("numSegments = %d, want %d", got, MaxSegments)
		}
	}
}

func TestPublishNeverBlocksUnderLoad(t *testing.T) {
	sender, receiver := NewPool(4)

	for ts := uint64(1); ts <= 1000; ts++ {
		if err := sender.Publish([]byte{byte(ts), byte(ts >> 8), 0, 0}, ts); err != nil {
			t.Fatalf("Publish(%d): %v", ts, err)
		}
	}

	view, err := receiver.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if view.Timestamp != 1000 && view.Timestamp != 999 {
		t.Errorf("final Timestamp = %d, want 999 or 1000", view.Timestamp)
	}
	receiver.Release(view)
}

func TestStatsConflationCounter(t *testing.T) {
	sender, r1 := NewPool(4)

	// Pin all 3 segments with 3 outstanding borrows from the same
	// receiver, one per publish: only then does pickWriter have no free
	// alternative to lastWritten left.
	if err := sender.Publish([]byte{1, 1, 1, 1}, 1); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	v1, err := r1.Borrow()
	if err != nil {
		t.Fatalf("Borrow 1: %v", err)
	}

	if err := sender.Publish([]byte{2, 2, 2, 2}, 2); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	v2, err := r1.Borrow()
	if err != nil {
		t.Fatalf("Borrow 2: %v", err)
	}

	if err := sender.Publish([]byte{3, 3, 3, 3}, 3); err != nil {
		t.Fatalf("Publish 3: %v", err)
	}
	v3, err := r1.Borrow()
	if err != nil {
		t.Fatalf("Borrow 3: %v", err)
	}

	before := sender.Stats().ConflationsTotal
	if err := sender.Publish([]byte{4, 4, 4, 4}, 4); err != nil {
		t.Fatalf("Publish 4: %v", err)
	}
	after := sender.Stats().ConflationsTotal

	if after <= before {
		t.Errorf("ConflationsTotal = %d after fully-pinned publish, want > %d", after, before)
	}

	r1.Release(v1)
	r1.Release(v2)
	r1.Release(v3)

	stats := sender.Stats()
	if stats.NumSegments != len(sender.p.segments) {
		t.Errorf("Stats().NumSegments = %d, want %d", stats.NumSegments, len(sender.p.segments))
	}
	if stats.NumReceivers != 1 {
		t.Errorf("Stats().NumReceivers = %d, want 1", stats.NumReceivers)
	}
}

func TestBorrowReleaseBorrowIdempotent(t *testing.T) {
	sender, receiver := NewPool(4)
	if err := sender.Publish([]byte{9, 9, 9, 9}, 42); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first, err := receiver.Borrow()
	if err != nil {
		t.Fatalf("Borrow 1: %v", err)
	}
	receiver.Release(first)

	second, err := receiver.Borrow()
	if err != nil {
		t.Fatalf("Borrow 2: %v", err)
	}
	if second.Timestamp != first.Timestamp {
		t.Errorf("Timestamp changed across idempotent borrow: %d != %d", second.Timestamp, first.Timestamp)
	}
	receiver.Release(second)
}
