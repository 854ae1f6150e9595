package logstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func sample(word string, conf float32, sec int) Record {
	return Record{
		Word:       word,
		Confidence: conf,
		Timestamp:  time.Date(2024, 5, 1, 10, 0, sec, 0, time.UTC),
	}
}

func assertRecords(t *testing.T, want, got []Record) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Word, got[i].Word)
		assert.Equal(t, want[i].Confidence, got[i].Confidence)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "record %d timestamp", i)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Append(sample("yes", 0.9, 1)))
	require.NoError(t, s.Append(sample("no", 0.4, 2)))

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Drain()
	require.NoError(t, err)
	assertRecords(t, []Record{sample("yes", 0.9, 1), sample("no", 0.4, 2)}, got)

	n, err = s.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "detections.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	require.NoError(t, s.Append(sample("cat", 0.01, 0)))

	raw, err = s.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Word":"cat","confidence":0.01,"timestamp":"2024-05-01T10:00:00Z"}]`, string(raw))
	assert.Equal(t, "cat", gjson.GetBytes(raw, "0.Word").String())
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)

	want := []Record{sample("up", 0.5, 1), sample("down", 0.25, 2), sample("up", 0.75, 3)}
	for _, r := range want {
		require.NoError(t, s.Append(r))
	}

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	n, err := reopened.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := reopened.Records()
	require.NoError(t, err)
	assertRecords(t, want, got)
}

func TestFileStoreDrainClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(sample("go", 0.3, 5)))
	got, err := s.Drain()
	require.NoError(t, err)
	assertRecords(t, []Record{sample("go", 0.3, 5)}, got)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err = s.Drain()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Append(sample("stop", 0.6, 6)))
	n, err = s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))

	_, err := OpenFileStore(path)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStoreConcurrentAppend(t *testing.T) {
	s, err := OpenFileStore(filepath.Join(t.TempDir(), "detections.json"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(sample("w", float32(i)/20, i)))
		}(i)
	}
	wg.Wait()

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
