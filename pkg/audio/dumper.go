package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Dumper writes analysis windows to individual WAV files. It is used to
// inspect what the gate let through when calibrating thresholds.
type Dumper struct {
	dir        string
	prefix     string
	sampleRate int
	channels   int

	mu    sync.Mutex
	count int
}

// NewDumper creates dir if needed and returns a Dumper writing files named
// <prefix>_<timestamp>_<n>.wav.
func NewDumper(dir, prefix string, sampleRate, channels int) (*Dumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &Dumper{
		dir:        dir,
		prefix:     prefix,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// WriteWindow stores one window as 16-bit PCM and returns the file path.
func (d *Dumper) WriteWindow(win Window) (string, error) {
	d.mu.Lock()
	d.count++
	n := d.count
	d.mu.Unlock()

	name := fmt.Sprintf("%s_%s_%04d.wav", d.prefix, time.Now().Format("20060102-150405"), n)
	path := filepath.Join(d.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	pcm := Float32ToInt16(win)
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, d.sampleRate, 16, d.channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: d.channels, SampleRate: d.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("encode dump file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("finalize dump file: %w", err)
	}

	return path, nil
}

// Count returns how many windows have been dumped.
func (d *Dumper) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
