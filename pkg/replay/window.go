// Package replay implements per-stream sliding-window duplicate rejection
// for data-plane counters. Each outbound message carries a deterministic
// nonce of stream_id (32-bit) and counter (64-bit); the filter guarantees
// a counter is never accepted twice for the same stream.
package replay

import (
	"strconv"
	"sync"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

// WindowSize is the number of trailing counters tracked per stream.
// Counters below the window's low watermark are rejected outright.
const WindowSize = 1024

const wordBits = 64

// window tracks the highest accepted counter for one stream and a bitmap
// of recently accepted counters within the trailing window.
type window struct {
	mu      sync.Mutex
	started bool
	highest uint64
	bitmap  [WindowSize / wordBits]uint64
}

// Filter rejects duplicate and out-of-window counters per stream.
// Streams are independent; accepting on one stream never affects another.
// Safe for concurrent use.
type Filter struct {
	mu      sync.Mutex
	streams map[uint32]*window
}

// NewFilter creates an empty replay filter for a new session.
func NewFilter() *Filter {
	return &Filter{streams: make(map[uint32]*window)}
}

// Accept checks a (stream_id, counter) pair and marks it accepted.
// Returns a replay.detected protocol error for duplicates and counters
// older than the window low watermark. Accepting a counter ahead of the
// current high-water mark slides the window forward.
func (f *Filter) Accept(streamID uint32, counter uint64) error {
	f.mu.Lock()
	w, ok := f.streams[streamID]
	if !ok {
		w = &window{}
		f.streams[streamID] = w
	}
	f.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	reject := func() error {
		return protoerr.New(protoerr.CodeReplayDetected, "duplicate or out-of-window counter").
			With("stream_id", strconv.FormatUint(uint64(streamID), 10)).
			With("counter", strconv.FormatUint(counter, 10))
	}

	if !w.started {
		w.started = true
		w.highest = counter
		w.set(counter)
		return nil
	}

	switch {
	case counter > w.highest:
		w.advance(counter)
		w.set(counter)
		return nil
	case counter == w.highest:
		return reject()
	default:
		// Behind the high-water mark: must be within the window and unseen.
		if w.highest-counter >= WindowSize {
			return reject()
		}
		if w.isSet(counter) {
			return reject()
		}
		w.set(counter)
		return nil
	}
}

// Streams returns the number of streams the filter is tracking.
func (f *Filter) Streams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// advance slides the window forward to a new high-water mark, clearing
// bitmap slots for the counters that enter the window.
func (w *window) advance(newHighest uint64) {
	delta := newHighest - w.highest
	if delta >= WindowSize {
		for i := range w.bitmap {
			w.bitmap[i] = 0
		}
	} else {
		for c := w.highest + 1; c <= newHighest; c++ {
			w.clear(c)
		}
	}
	w.highest = newHighest
}

func (w *window) set(counter uint64) {
	slot := counter % WindowSize
	w.bitmap[slot/wordBits] |= 1 << (slot % wordBits)
}

func (w *window) clear(counter uint64) {
	slot := counter % WindowSize
	w.bitmap[slot/wordBits] &^= 1 << (slot % wordBits)
}

func (w *window) isSet(counter uint64) bool {
	slot := counter % WindowSize
	return w.bitmap[slot/wordBits]&(1<<(slot%wordBits)) != 0
}
