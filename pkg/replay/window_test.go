package replay

import (
	"sync"
	"testing"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

func TestFilter_DuplicateRejected(t *testing.T) {
	f := NewFilter()

	if err := f.Accept(1, 42); err != nil {
		t.Fatalf("first acceptance failed: %v", err)
	}
	err := f.Accept(1, 42)
	if !protoerr.Is(err, protoerr.CodeReplayDetected) {
		t.Errorf("second acceptance = %v, want replay.detected", err)
	}
}

func TestFilter_StrictlyIncreasingAlwaysAccepts(t *testing.T) {
	f := NewFilter()
	for c := uint64(0); c < 5000; c++ {
		if err := f.Accept(7, c); err != nil {
			t.Fatalf("counter %d rejected: %v", c, err)
		}
	}
}

func TestFilter_OutOfOrderWithinWindow(t *testing.T) {
	t.Log("Counters may arrive out of order within the trailing window")

	f := NewFilter()
	for _, c := range []uint64{10, 5, 8, 6, 100, 99, 50} {
		if err := f.Accept(1, c); err != nil {
			t.Errorf("counter %d rejected: %v", c, err)
		}
	}
	// Each replayed exactly once afterwards must fail.
	for _, c := range []uint64{10, 5, 8, 6, 100, 99, 50} {
		if err := f.Accept(1, c); !protoerr.Is(err, protoerr.CodeReplayDetected) {
			t.Errorf("replayed counter %d = %v, want replay.detected", c, err)
		}
	}
}

func TestFilter_BelowWindowRejected(t *testing.T) {
	f := NewFilter()
	if err := f.Accept(1, WindowSize+500); err != nil {
		t.Fatalf("seed acceptance failed: %v", err)
	}

	// Exactly WindowSize behind the high-water mark is outside the window.
	err := f.Accept(1, 500)
	if !protoerr.Is(err, protoerr.CodeReplayDetected) {
		t.Errorf("counter at window edge = %v, want replay.detected", err)
	}

	// Just inside the window and unseen is fine.
	if err := f.Accept(1, 501); err != nil {
		t.Errorf("counter just inside window rejected: %v", err)
	}
}

func TestFilter_LargeJumpClearsWindow(t *testing.T) {
	t.Log("A jump larger than the window must not leave stale accept bits")

	f := NewFilter()
	if err := f.Accept(1, 3); err != nil {
		t.Fatal(err)
	}

	jump := uint64(10 * WindowSize)
	if err := f.Accept(1, jump); err != nil {
		t.Fatalf("jump rejected: %v", err)
	}

	// jump-3 shares a bitmap slot parity with old counters in a naive
	// implementation; it is unseen and inside the window, so it must pass.
	if err := f.Accept(1, jump-3); err != nil {
		t.Errorf("unseen in-window counter after jump rejected: %v", err)
	}
}

func TestFilter_StreamsAreIndependent(t *testing.T) {
	f := NewFilter()
	if err := f.Accept(1, 9); err != nil {
		t.Fatal(err)
	}
	if err := f.Accept(2, 9); err != nil {
		t.Errorf("same counter on a different stream rejected: %v", err)
	}
	if f.Streams() != 2 {
		t.Errorf("Streams() = %d, want 2", f.Streams())
	}
}

func TestFilter_ZeroCounterAccepted(t *testing.T) {
	f := NewFilter()
	if err := f.Accept(1, 0); err != nil {
		t.Errorf("counter 0 must be acceptable as first packet: %v", err)
	}
	if err := f.Accept(1, 0); !protoerr.Is(err, protoerr.CodeReplayDetected) {
		t.Errorf("counter 0 replay = %v, want replay.detected", err)
	}
}

func TestFilter_ConcurrentSameCounterAcceptedOnce(t *testing.T) {
	t.Log("Racing submissions of one counter must produce exactly one acceptance")

	f := NewFilter()
	const goroutines = 32

	var wg sync.WaitGroup
	accepted := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Accept(3, 77); err == nil {
				accepted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(accepted)

	count := 0
	for range accepted {
		count++
	}
	if count != 1 {
		t.Errorf("counter accepted %d times, want exactly 1", count)
	}
}
