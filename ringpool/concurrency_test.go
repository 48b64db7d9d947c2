package ringpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestConcurrentReadersOneWriter stresses one writer publishing
// back-to-back against two readers running borrow/release loops
// concurrently. Run with -race to catch any mutex discipline
// regression.
func TestConcurrentReadersOneWriter(t *testing.T) {
	sender, r1 := NewPool(4)
	r2, err := r1.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	const publishes = 2000
	var lastSeen [2]uint64
	var wg sync.WaitGroup
	wg.Add(3)

	stop := make(chan struct{})

	reader := func(r *Receiver, slot int) {
		defer wg.Done()
		// Borrow before checking stop, so each reader observes at least
		// one frame even when the writer finishes before it is scheduled.
		for {
			if v, err := r.Borrow(); err == nil {
				if v.Timestamp > 0 {
					atomic.StoreUint64(&lastSeen[slot], v.Timestamp)
				}
				r.Release(v)
			}
			select {
			case <-stop:
				return
			default:
			}
		}
	}

	go reader(r1, 0)
	go reader(r2, 1)

	go func() {
		defer wg.Done()
		for ts := uint64(1); ts <= publishes; ts++ {
			if err := sender.Publish([]byte{1, 2, 3, 4}, ts); err != nil {
				t.Errorf("Publish(%d): %v", ts, err)
				return
			}
		}
		close(stop)
	}()

	wg.Wait()

	if got := atomic.LoadUint64(&lastSeen[0]); got == 0 || got > publishes {
		t.Errorf("reader 0 last seen timestamp out of range: %d", got)
	}
	if got := atomic.LoadUint64(&lastSeen[1]); got == 0 || got > publishes {
		t.Errorf("reader 1 last seen timestamp out of range: %d", got)
	}
}

// TestCloneUnderConcurrentBorrow exercises Clone while another
// goroutine runs Borrow/Release on the root receiver, checking that
// every Clone, Publish and Borrow on the new receiver succeeds.
func TestCloneUnderConcurrentBorrow(t *testing.T) {
	sender, root := NewPool(4)

	var wg sync.WaitGroup
	wg.Add(1)
	stop := make(chan struct{})
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			v, err := root.Borrow()
			if err == nil {
				root.Release(v)
			}
		}
	}()

	for i := 0; i < 10; i++ {
		child, err := root.Clone()
		if err != nil {
			t.Fatalf("Clone %d: %v", i, err)
		}
		if err := sender.Publish([]byte{5, 6, 7, 8}, uint64(i)); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
		v, err := child.Borrow()
		if err != nil {
			t.Fatalf("Borrow on clone %d: %v", i, err)
		}
		child.Release(v)
		child.Close()
	}

	close(stop)
	wg.Wait()
}
