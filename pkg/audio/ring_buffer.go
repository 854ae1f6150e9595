// Package audio provides the sample-level building blocks of the keyword
// spotter: PCM conversion, the rolling analysis window and WAV dumping.
//
// WindowBuffer implements a fixed-size circular buffer of normalized samples.
// It accumulates one analysis window, hands out copies of it, and then evicts
// the oldest hop samples so that consecutive windows overlap.
//
// Main features:
//   - Fixed capacity (one window, e.g. 16000 samples at 16kHz)
//   - Snapshots are copies; consumers never alias buffer memory
//   - Shifting only moves the read position, no sample copying
//
// Usage:
//
//	wb, _ := NewWindowBuffer(16000, 8000) // 1s window, 0.5s hop
//	for !wb.IsFull() {
//	    n := wb.Append(chunk)
//	    chunk = chunk[n:]
//	}
//	win, _ := wb.SnapshotAndShift(wb.Hop())
package audio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidHop is returned when a hop size is outside (0, capacity].
	ErrInvalidHop = errors.New("audio: invalid hop size")

	// ErrWindowNotFull is returned when a snapshot is requested before the
	// buffer holds a complete window.
	ErrWindowNotFull = errors.New("audio: window not full")
)

// Window is one analysis window of normalized samples in [-1, 1].
type Window []float32

// WindowBuffer is the rolling buffer that owns the current analysis window.
type WindowBuffer struct {
	data     []float32
	capacity int // window length W in samples
	hop      int // default hop used by the capture loop
	start    int // index of the oldest sample
	size     int // valid samples, <= capacity
	mu       sync.Mutex
}

// NewWindowBuffer creates a buffer holding capacity samples that advances by
// hop samples per window.
func NewWindowBuffer(capacity, hop int) (*WindowBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("audio: invalid window capacity %d", capacity)
	}
	if err := checkHop(hop, capacity); err != nil {
		return nil, err
	}

	return &WindowBuffer{
		data:     make([]float32, capacity),
		capacity: capacity,
		hop:      hop,
	}, nil
}

func checkHop(hop, capacity int) error {
	if hop <= 0 || hop > capacity {
		return fmt.Errorf("%w: %d (window %d)", ErrInvalidHop, hop, capacity)
	}
	return nil
}

// Append copies as many samples as fit into the buffer and returns how many
// were consumed. It never overwrites samples that belong to the current window.
func (wb *WindowBuffer) Append(samples []float32) int {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	n := wb.capacity - wb.size
	if n > len(samples) {
		n = len(samples)
	}
	if n == 0 {
		return 0
	}

	writePos := (wb.start + wb.size) % wb.capacity
	spaceToEnd := wb.capacity - writePos

	if n <= spaceToEnd {
		copy(wb.data[writePos:], samples[:n])
	} else {
		copy(wb.data[writePos:], samples[:spaceToEnd])
		copy(wb.data[0:], samples[spaceToEnd:n])
	}

	wb.size += n
	return n
}

// IsFull reports whether the buffer holds a complete window.
func (wb *WindowBuffer) IsFull() bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.size == wb.capacity
}

// Remaining returns the number of samples still needed to complete the window.
func (wb *WindowBuffer) Remaining() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.capacity - wb.size
}

// SnapshotAndShift returns a copy of the full window in chronological order and
// then discards the oldest hop samples. The next window therefore shares
// capacity-hop samples with the returned one.
func (wb *WindowBuffer) SnapshotAndShift(hop int) (Window, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if err := checkHop(hop, wb.capacity); err != nil {
		return nil, err
	}
	if wb.size != wb.capacity {
		return nil, fmt.Errorf("%w: %d/%d samples", ErrWindowNotFull, wb.size, wb.capacity)
	}

	win := make(Window, wb.capacity)
	firstPartLen := wb.capacity - wb.start
	copy(win[:firstPartLen], wb.data[wb.start:])
	copy(win[firstPartLen:], wb.data[:wb.start])

	wb.start = (wb.start + hop) % wb.capacity
	wb.size -= hop

	return win, nil
}

// Reset empties the buffer. The next fill starts from scratch.
func (wb *WindowBuffer) Reset() {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.start = 0
	wb.size = 0
}

// Len returns the number of buffered samples.
func (wb *WindowBuffer) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.size
}

// Cap returns the window length in samples.
func (wb *WindowBuffer) Cap() int {
	return wb.capacity
}

// Hop returns the configured hop size.
func (wb *WindowBuffer) Hop() int {
	return wb.hop
}
