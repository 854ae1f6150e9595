package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, sampleRate, channels int, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestTransient(t *testing.T) {
	base := errors.New("bad value")
	err := Transient(base)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsTransient(base))
	assert.False(t, IsTransient(ErrUnavailable))
	assert.Nil(t, Transient(nil))
}

func TestMockSource(t *testing.T) {
	ctx := context.Background()

	t.Run("splits long steps across reads", func(t *testing.T) {
		src := NewMockSource(MockStep{Samples: []int16{1, 2, 3, 4, 5}})
		dst := make([]int16, 2)

		n, err := src.Read(ctx, dst)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []int16{1, 2}, dst)

		n, _ = src.Read(ctx, dst)
		assert.Equal(t, []int16{3, 4}, dst[:n])

		n, _ = src.Read(ctx, dst)
		assert.Equal(t, []int16{5}, dst[:n])
		assert.Equal(t, 0, src.Pending())
	})

	t.Run("returns scripted errors once", func(t *testing.T) {
		src := NewMockSource(MockStep{Err: Transient(errors.New("busy"))}, MockStep{Samples: []int16{7}})
		dst := make([]int16, 4)

		_, err := src.Read(ctx, dst)
		assert.True(t, IsTransient(err))

		n, err := src.Read(ctx, dst)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2, src.ReadCalls())
	})

	t.Run("blocks when idle until cancelled", func(t *testing.T) {
		src := NewMockSource()
		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := src.Read(ctx, make([]int16, 1))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWAVSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")

	samples := make([]int, 1000)
	for i := range samples {
		samples[i] = i - 500
	}
	writeWAV(t, path, 16000, 1, samples)

	src := NewWAVSource(path, false)
	require.NoError(t, src.Start())
	defer src.Close()
	assert.Equal(t, 16000, src.SampleRate())

	var got []int16
	dst := make([]int16, 300)
	for {
		n, err := src.Read(context.Background(), dst)
		if errors.Is(err, ErrExhausted) {
			break
		}
		require.NoError(t, err)
		got = append(got, dst[:n]...)
	}

	require.Len(t, got, len(samples))
	for i := range samples {
		if int(got[i]) != samples[i] {
			t.Fatalf("sample %d: got %d want %d", i, got[i], samples[i])
		}
	}

	require.NoError(t, src.Close())
	_, err := src.Read(context.Background(), dst)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWAVSourceRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		err := NewWAVSource(filepath.Join(dir, "nope.wav"), false).Start()
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("stereo", func(t *testing.T) {
		path := filepath.Join(dir, "stereo.wav")
		writeWAV(t, path, 16000, 2, make([]int, 200))
		err := NewWAVSource(path, false).Start()
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("not a wav", func(t *testing.T) {
		path := filepath.Join(dir, "text.wav")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
		err := NewWAVSource(path, false).Start()
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
