package rank

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/realtime-ai/keyword-spotter/pkg/inference"
	"github.com/realtime-ai/keyword-spotter/pkg/logstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) Report(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

type failingStore struct{ logstore.MemoryStore }

func (*failingStore) Append(logstore.Record) error { return errors.New("disk full") }

func animals() inference.Classification {
	return inference.Classification{
		{Label: "cat", Confidence: 0.01},
		{Label: "dog", Confidence: 0.003},
		{Label: "bird", Confidence: 0.0005},
	}
}

func TestRankDetection(t *testing.T) {
	got := Rank(animals(), 2, 0.002)
	assert.Equal(t, Result{
		{Label: "cat", Confidence: 0.01},
		{Label: "dog", Confidence: 0.003},
	}, got)
	assert.False(t, got.IsSentinel())
}

func TestRankBelowFloorIsSentinel(t *testing.T) {
	got := Rank(animals(), 2, 0.02)
	assert.Equal(t, Sentinel(), got)
	assert.True(t, got.IsSentinel())
}

func TestRankFloorIsStrict(t *testing.T) {
	c := inference.Classification{{Label: "a", Confidence: 0.25}, {Label: "b", Confidence: 0.1}}

	assert.True(t, Rank(c, 3, 0.25).IsSentinel(), "best equal to floor is rejected")
	assert.False(t, Rank(c, 3, 0.2499).IsSentinel())
}

func TestRankSortsAndTruncates(t *testing.T) {
	c := inference.Classification{
		{Label: "a", Confidence: 0.1},
		{Label: "b", Confidence: 0.4},
		{Label: "c", Confidence: 0.3},
		{Label: "d", Confidence: 0.2},
	}

	for topK := 1; topK <= 6; topK++ {
		got := Rank(c, topK, 0)
		want := topK
		if want > len(c) {
			want = len(c)
		}
		require.Len(t, got, want)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
		}
		assert.Equal(t, "b", got[0].Label)
	}
}

func TestRankTiesKeepVocabularyOrder(t *testing.T) {
	c := inference.Classification{
		{Label: "up", Confidence: 0.2},
		{Label: "down", Confidence: 0.5},
		{Label: "left", Confidence: 0.2},
		{Label: "right", Confidence: 0.5},
		{Label: "go", Confidence: 0.2},
	}

	got := Rank(c, 5, 0.01)
	labels := make([]string, len(got))
	for i, s := range got {
		labels[i] = s.Label
	}
	assert.Equal(t, []string{"down", "right", "up", "left", "go"}, labels)
}

func TestRankTopKBelowOne(t *testing.T) {
	assert.Len(t, Rank(animals(), 0, 0.002), 1)
	assert.Len(t, Rank(animals(), -4, 0.002), 1)
}

func TestRankEmptyAndInputUntouched(t *testing.T) {
	assert.True(t, Rank(nil, 3, 0).IsSentinel())

	c := animals()
	c[0], c[2] = c[2], c[0]
	before := append(inference.Classification(nil), c...)
	Rank(c, 3, 0)
	assert.Equal(t, before, c)
}

func TestSentinelShape(t *testing.T) {
	s := Sentinel()
	require.Len(t, s, 1)
	assert.Equal(t, NoneLabel, s[0].Label)
	assert.Equal(t, float32(0), s[0].Confidence)
	assert.Equal(t, s[0], s.Best())
	assert.Equal(t, "[none:0.0000]", s.String())
}

func TestPublishDetectionAppendsRecord(t *testing.T) {
	sink := &recordingSink{}
	store := logstore.NewMemoryStore()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := NewPublisher(sink, store).WithClock(func() time.Time { return at })

	r := Rank(animals(), 2, 0.002)
	require.NoError(t, p.Publish(context.Background(), r))

	assert.Equal(t, []Result{r}, sink.results)
	assert.Equal(t, []logstore.Record{{Word: "cat", Confidence: 0.01, Timestamp: at}}, store.Records())
}

func TestPublishSentinelSkipsStore(t *testing.T) {
	sink := &recordingSink{}
	store := logstore.NewMemoryStore()
	p := NewPublisher(sink, store)

	require.NoError(t, p.Publish(context.Background(), Rank(animals(), 2, 0.02)))

	assert.Equal(t, []Result{Sentinel()}, sink.results)
	n, err := store.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishStoreErrorAfterReport(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, &failingStore{})

	err := p.Publish(context.Background(), Rank(animals(), 1, 0.002))
	assert.Error(t, err)
	assert.Len(t, sink.results, 1, "result is reported even if the log write fails")
}

func TestPublishWithoutStoreOrSink(t *testing.T) {
	p := NewPublisher(nil, nil)
	assert.NoError(t, p.Publish(context.Background(), Rank(animals(), 1, 0)))
}
