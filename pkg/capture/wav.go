package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a mono 16-bit WAV file as if it were a microphone.
// When Realtime is set, reads are paced to the file's sample rate.
type WAVSource struct {
	path     string
	realtime bool

	mu      sync.Mutex
	file    *os.File
	decoder *wav.Decoder
	buf     *goaudio.IntBuffer
	rate    int
	started time.Time
	read    int64
	closed  bool
}

var _ Source = (*WAVSource)(nil)

// NewWAVSource returns a source for path. The file is opened by Start.
func NewWAVSource(path string, realtime bool) *WAVSource {
	return &WAVSource{path: path, realtime: realtime}
}

// Start opens and validates the file.
func (w *WAVSource) Start() error {
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s is not a valid wav file", ErrUnavailable, w.path)
	}
	if dec.NumChans != 1 {
		f.Close()
		return fmt.Errorf("%w: %s has %d channels, want mono", ErrUnavailable, w.path, dec.NumChans)
	}
	if dec.BitDepth != 16 {
		f.Close()
		return fmt.Errorf("%w: %s has %d-bit samples, want 16-bit", ErrUnavailable, w.path, dec.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return fmt.Errorf("%w: seek to pcm data: %v", ErrUnavailable, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.file = f
	w.decoder = dec
	w.rate = int(dec.SampleRate)
	w.started = time.Now()
	return nil
}

// Read implements Source. It returns ErrExhausted at the end of the file.
func (w *WAVSource) Read(ctx context.Context, dst []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if w.decoder == nil {
		return 0, fmt.Errorf("%w: wav source not started", ErrUnavailable)
	}
	if len(dst) == 0 {
		return 0, nil
	}

	if w.buf == nil || len(w.buf.Data) < len(dst) {
		w.buf = &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: 1, SampleRate: w.rate},
			Data:   make([]int, len(dst)),
		}
	}
	w.buf.Data = w.buf.Data[:len(dst)]

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode %s: %w", w.path, err)
	}
	if n == 0 {
		return 0, ErrExhausted
	}

	for i := 0; i < n; i++ {
		dst[i] = int16(w.buf.Data[i])
	}
	w.read += int64(n)

	if w.realtime {
		due := w.started.Add(time.Duration(w.read) * time.Second / time.Duration(w.rate))
		if wait := time.Until(due); wait > 0 {
			w.mu.Unlock()
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			w.mu.Lock()
		}
	}

	return n, nil
}

// SampleRate implements Source. It is zero until Start succeeds.
func (w *WAVSource) SampleRate() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rate
}

// Close implements Source.
func (w *WAVSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
