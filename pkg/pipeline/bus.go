// Package pipeline carries session events from the capture worker to any
// number of listeners.
package pipeline

import (
	"context"
	"sync"
	"time"
)

// EventType identifies the kind of session event.
type EventType int

const (
	// EventResult carries every ranked result, sentinel included.
	EventResult EventType = iota
	// EventDetection carries non-sentinel results only.
	EventDetection
	// EventFailure carries the error that ended the session.
	EventFailure
	// EventWindowDropped carries a per-window processing error.
	EventWindowDropped
	EventSessionStarted
	EventSessionStopped
)

func (t EventType) String() string {
	switch t {
	case EventResult:
		return "result"
	case EventDetection:
		return "detection"
	case EventFailure:
		return "failure"
	case EventWindowDropped:
		return "window_dropped"
	case EventSessionStarted:
		return "session_started"
	case EventSessionStopped:
		return "session_stopped"
	}
	return "unknown"
}

// Event is one message on the bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Payload   interface{}
}

// Bus fans events out to subscriber channels. Publishing never blocks: an
// event is dropped for a subscriber whose channel is full.
type Bus interface {
	Subscribe(t EventType, ch chan<- Event)
	Unsubscribe(t EventType, ch chan<- Event)
	// Publish returns false if any subscriber missed the event.
	Publish(evt Event) bool
	// Start switches to asynchronous delivery from a dispatcher goroutine.
	Start(ctx context.Context) error
	// Stop returns to synchronous delivery. Queued events are flushed first.
	Stop()
}

const queueSize = 256

type eventBus struct {
	mu   sync.RWMutex
	subs map[EventType][]chan<- Event

	runMu   sync.Mutex
	queue   chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewEventBus creates a Bus in synchronous mode.
func NewEventBus() Bus {
	return &eventBus{subs: make(map[EventType][]chan<- Event)}
}

func (b *eventBus) Subscribe(t EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], ch)
}

func (b *eventBus) Unsubscribe(t EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[t]
	for i, c := range list {
		if c == ch {
			b.subs[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (b *eventBus) Publish(evt Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.runMu.Lock()
	if b.running {
		defer b.runMu.Unlock()
		select {
		case b.queue <- evt:
			return true
		default:
			return false
		}
	}
	b.runMu.Unlock()
	return b.deliver(evt)
}

func (b *eventBus) deliver(evt Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ok := true
	for _, ch := range b.subs[evt.Type] {
		select {
		case ch <- evt:
		default:
			ok = false
		}
	}
	return ok
}

func (b *eventBus) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	b.queue = make(chan Event, queueSize)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.dispatch(ctx, b.queue, b.done)
	return nil
}

func (b *eventBus) dispatch(ctx context.Context, queue <-chan Event, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case evt := <-queue:
			b.deliver(evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-queue:
					b.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *eventBus) Stop() {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		return
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.runMu.Unlock()

	cancel()
	<-done
}
