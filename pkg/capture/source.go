// Package capture provides audio sources that feed the keyword spotter.
//
// A Source delivers signed 16-bit mono PCM at a fixed sample rate in
// caller-chosen chunk sizes. Read failures that may resolve on their own are
// wrapped with ErrTransient and retried by the caller; every other error is
// permanent and ends the capture session.
package capture

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a read failure that should be retried at the same
	// position (bad read, device momentarily not ready).
	ErrTransient = errors.New("capture: transient read error")

	// ErrUnavailable marks a capture device that could not be opened or
	// started, e.g. missing permission or no input device.
	ErrUnavailable = errors.New("capture: source unavailable")

	// ErrExhausted is returned by finite sources once all audio was delivered.
	ErrExhausted = errors.New("capture: source exhausted")

	// ErrClosed is returned by reads on a closed source.
	ErrClosed = errors.New("capture: source closed")
)

// Source is a pull-based PCM producer.
type Source interface {
	// Start opens the underlying device. Errors are permanent.
	Start() error

	// Read blocks until at least one sample is available, then copies up to
	// len(dst) samples into dst and returns the count. It returns ctx.Err()
	// when ctx is cancelled while waiting.
	Read(ctx context.Context, dst []int16) (int, error)

	// SampleRate returns the rate of the delivered samples in Hz.
	SampleRate() int

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
