package rank

import (
	"context"
	"fmt"
	"time"

	"github.com/realtime-ai/keyword-spotter/pkg/logstore"
)

// Sink receives every published result. Delivery is fire-and-forget.
type Sink interface {
	Report(r Result)
}

// Publisher hands results to a Sink and records genuine detections in the
// durable log.
type Publisher struct {
	sink  Sink
	store logstore.Store
	now   func() time.Time
}

// NewPublisher creates a Publisher. store may be nil to skip logging.
func NewPublisher(sink Sink, store logstore.Store) *Publisher {
	return &Publisher{sink: sink, store: store, now: time.Now}
}

// WithClock overrides the record timestamp source.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// Publish reports r and, unless r is the sentinel, appends a record for its
// best entry. The report happens before the append; an append error is
// returned after the result was already delivered.
func (p *Publisher) Publish(ctx context.Context, r Result) error {
	if p.sink != nil {
		p.sink.Report(r)
	}
	if r.IsSentinel() || p.store == nil {
		return nil
	}

	best := r.Best()
	rec := logstore.Record{
		Word:       best.Label,
		Confidence: best.Confidence,
		Timestamp:  p.now().UTC(),
	}
	if err := p.store.Append(rec); err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}
