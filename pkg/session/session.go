// Package session runs the keyword-spotting loop for one capture stream.
//
// A Session owns one worker goroutine that repeatedly fills the window
// buffer from the capture source, gates the window, extracts features,
// classifies, ranks and publishes, then advances by the hop size. Results
// therefore leave the session in window order.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/capture"
	"github.com/realtime-ai/keyword-spotter/pkg/features"
	"github.com/realtime-ai/keyword-spotter/pkg/gate"
	"github.com/realtime-ai/keyword-spotter/pkg/inference"
	"github.com/realtime-ai/keyword-spotter/pkg/logstore"
	"github.com/realtime-ai/keyword-spotter/pkg/metrics"
	"github.com/realtime-ai/keyword-spotter/pkg/pipeline"
	"github.com/realtime-ai/keyword-spotter/pkg/rank"
	"github.com/realtime-ai/keyword-spotter/pkg/report"
	"github.com/realtime-ai/keyword-spotter/pkg/trace"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrCaptureUnavailable is returned by Start when the source cannot be opened.
	ErrCaptureUnavailable = errors.New("session: capture unavailable")

	// ErrWindowDropped wraps per-window processing failures. They are logged
	// and counted; the session keeps running.
	ErrWindowDropped = errors.New("session: window dropped")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session: already started")
)

// Classifier maps a feature vector to per-label scores.
type Classifier interface {
	Classify(v features.Vector) (inference.Classification, error)
}

// Options are the collaborators of a session.
type Options struct {
	// ID identifies the session in logs, traces and events. Generated when empty.
	ID         string
	Source     capture.Source
	Gate       gate.Gate
	Extractor  features.Extractor
	Classifier Classifier
	Reporter   report.Reporter

	// Store receives a record per detection. Optional.
	Store logstore.Store
	// Bus receives lifecycle and dropped-window events. Optional.
	Bus pipeline.Bus
	// Dumper writes gated-positive windows to disk. Optional.
	Dumper  *audio.Dumper
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
}

// Session is one capture stream and its worker.
type Session struct {
	id   string
	cfg  Config
	opts Options
	log  logrus.FieldLogger
	met  *metrics.Metrics

	buf       *audio.WindowBuffer
	publisher *rank.Publisher
	scratch   []float32

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	releaseOnce sync.Once

	errMu sync.Mutex
	err   error

	windows atomic.Int64
}

// New validates cfg and the collaborators. Nothing is opened until Start.
func New(cfg Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case opts.Source == nil:
		return nil, fmt.Errorf("%w: no capture source", ErrInvalidConfig)
	case opts.Gate == nil:
		return nil, fmt.Errorf("%w: no gate", ErrInvalidConfig)
	case opts.Extractor == nil:
		return nil, fmt.Errorf("%w: no feature extractor", ErrInvalidConfig)
	case opts.Classifier == nil:
		return nil, fmt.Errorf("%w: no classifier", ErrInvalidConfig)
	case opts.Reporter == nil:
		return nil, fmt.Errorf("%w: no reporter", ErrInvalidConfig)
	}
	// Sources that learn their rate on Start report zero here and are
	// checked again once opened.
	if err := checkRate(opts.Source, cfg.SampleRate); err != nil {
		return nil, err
	}
	if sized, ok := opts.Classifier.(interface{ InputSize() int }); ok {
		if want, got := sized.InputSize(), opts.Extractor.Size(cfg.WindowSize); want != got {
			return nil, fmt.Errorf("%w: extractor yields %d features, classifier expects %d", ErrInvalidConfig, got, want)
		}
	}

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}

	buf, err := audio.NewWindowBuffer(cfg.WindowSize, cfg.HopSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s := &Session{
		id:   opts.ID,
		cfg:  cfg,
		opts: opts,
		log: opts.Logger.WithFields(logrus.Fields{
			"session_id": opts.ID,
			"strategy":   opts.Gate.Name(),
		}),
		met:       opts.Metrics,
		buf:       buf,
		publisher: rank.NewPublisher(opts.Reporter, opts.Store),
		done:      make(chan struct{}),
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start opens the capture source and launches the worker. A source that
// cannot be opened releases every resource and returns an error wrapping
// ErrCaptureUnavailable; no window is processed. A source whose rate differs
// from the configured one fails the same way with ErrInvalidConfig.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()

	if err := s.opts.Source.Start(); err != nil {
		return s.abort(fmt.Errorf("%w: %w", ErrCaptureUnavailable, err))
	}
	if err := checkRate(s.opts.Source, s.cfg.SampleRate); err != nil {
		return s.abort(err)
	}

	s.met.ActiveSessions.Add(ctx, 1)
	s.publishEvent(pipeline.EventSessionStarted, nil)
	s.log.WithFields(logrus.Fields{
		"window": s.cfg.WindowSize,
		"hop":    s.cfg.HopSize,
		"top_k":  s.cfg.TopK,
	}).Info("[Session] Started")

	go s.run(ctx)
	return nil
}

// Stop asks the worker to finish the window in progress and exit, cancels
// any pending capture read, and waits. It returns the fatal error, if any.
func (s *Session) Stop() error {
	s.stopping.Store(true)
	if !s.started.Load() {
		s.release()
		return nil
	}
	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.Wait()
}

// abort ends a session whose worker never ran.
func (s *Session) abort(err error) error {
	s.cancelMu.Lock()
	s.cancel()
	s.cancelMu.Unlock()
	s.fail(err)
	s.release()
	close(s.done)
	return err
}

func checkRate(src capture.Source, want int) error {
	if rate := src.SampleRate(); rate != 0 && rate != want {
		return fmt.Errorf("%w: source delivers %d Hz, session expects %d Hz", ErrInvalidConfig, rate, want)
	}
	return nil
}

// Wait blocks until the worker has exited and resources are released.
// A nil error means the session was stopped or its source was exhausted.
func (s *Session) Wait() error {
	<-s.done
	return s.Err()
}

// Done is closed when the worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Windows returns the number of windows processed so far.
func (s *Session) Windows() int64 { return s.windows.Load() }

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.release()
	defer s.met.ActiveSessions.Add(context.Background(), -1)

	// Window processing must not be interrupted by Stop.
	procCtx := context.WithoutCancel(ctx)
	chunk := make([]int16, s.cfg.ReadChunk)

	for {
		if s.stopping.Load() {
			s.log.Info("[Session] Stopped")
			return
		}

		if err := s.fill(ctx, chunk); err != nil {
			switch {
			case s.stopping.Load() || ctx.Err() != nil:
				s.log.Info("[Session] Stopped")
			case errors.Is(err, capture.ErrExhausted):
				s.log.WithField("windows", s.windows.Load()).Info("[Session] Source exhausted")
			default:
				s.fail(fmt.Errorf("capture: %w", err))
			}
			return
		}

		s.processWindow(procCtx)
	}
}

// fill reads until the buffer holds a full window. Transient errors are
// retried at the same position; samples already buffered are kept.
func (s *Session) fill(ctx context.Context, chunk []int16) error {
	retries := 0
	for !s.buf.IsFull() {
		want := s.buf.Remaining()
		if want > len(chunk) {
			want = len(chunk)
		}

		n, err := s.opts.Source.Read(ctx, chunk[:want])
		if n > 0 {
			s.scratch = audio.Int16ToFloat32(s.scratch, chunk[:n])
			s.buf.Append(s.scratch)
			retries = 0
		}
		if err == nil {
			continue
		}
		if !capture.IsTransient(err) {
			return err
		}

		retries++
		s.met.RecordRetry(ctx)
		s.log.WithError(err).WithField("retry", retries).Warn("[Session] Transient capture error")
		if s.cfg.MaxReadRetries > 0 && retries > s.cfg.MaxReadRetries {
			return fmt.Errorf("%d consecutive transient errors: %w", retries, err)
		}
		if s.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryBackoff):
			}
		}
	}
	return nil
}

func (s *Session) processWindow(ctx context.Context) {
	window, err := s.buf.SnapshotAndShift(s.cfg.HopSize)
	if err != nil {
		// Unreachable after a successful fill.
		s.fail(fmt.Errorf("snapshot window: %w", err))
		s.stopping.Store(true)
		return
	}
	index := s.windows.Add(1) - 1

	ctx, span := trace.StartWindow(ctx, s.id, s.opts.Gate.Name(), index, s.cfg.SampleRate, len(window))
	defer span.End()
	log := s.log.WithField("window", index).WithFields(trace.LogFields(ctx))

	s.met.RecordWindow(ctx, s.opts.Gate.Name())

	var decision gate.Decision
	err = s.stage(ctx, trace.SpanGate, metrics.StageGate, func(ctx context.Context) error {
		var err error
		decision, err = s.opts.Gate.Evaluate(ctx, window)
		return err
	})
	if err != nil {
		s.drop(ctx, log, metrics.StageGate, err)
		return
	}
	span.SetAttributes(attribute.String(trace.AttrGateDecision, decision.String()))
	log = log.WithField("decision", decision.String())

	if decision == gate.SpeechAbsent {
		s.met.RecordRejection(ctx, s.opts.Gate.Name())
		log.Debug("[Session] Gate rejected window")
		s.publish(ctx, log, rank.Sentinel())
		return
	}

	if s.opts.Dumper != nil {
		if path, err := s.opts.Dumper.WriteWindow(window); err != nil {
			log.WithError(err).Warn("[Session] Failed to dump window")
		} else {
			log.WithField("path", path).Debug("[Session] Window dumped")
		}
	}

	var vec features.Vector
	err = s.stage(ctx, trace.SpanFeatures, metrics.StageFeatures, func(ctx context.Context) error {
		var err error
		vec, err = s.opts.Extractor.Extract(window)
		trace.Annotate(ctx, trace.FeatureSizeAttr(len(vec)))
		return err
	})
	if err != nil {
		s.drop(ctx, log, metrics.StageFeatures, err)
		return
	}

	var cls inference.Classification
	err = s.stage(ctx, trace.SpanInfer, metrics.StageInfer, func(context.Context) error {
		var err error
		cls, err = s.opts.Classifier.Classify(vec)
		return err
	})
	if err != nil {
		s.drop(ctx, log, metrics.StageInfer, err)
		return
	}

	s.publish(ctx, log, rank.Rank(cls, s.cfg.TopK, s.cfg.ConfidenceFloor))
}

// stage runs fn inside a child span and records its latency.
func (s *Session) stage(ctx context.Context, spanName, stage string, fn func(context.Context) error) error {
	ctx, span := trace.StartStage(ctx, spanName)
	start := time.Now()
	err := fn(ctx)
	s.met.RecordStage(ctx, stage, time.Since(start).Seconds())
	trace.EndStage(span, err)
	return err
}

func (s *Session) publish(ctx context.Context, log logrus.FieldLogger, r rank.Result) {
	best := r.Best()
	err := s.stage(ctx, trace.SpanPublish, metrics.StagePublish, func(ctx context.Context) error {
		trace.Annotate(ctx, trace.ResultAttrs(best.Label, best.Confidence, r.IsSentinel())...)
		return s.publisher.Publish(ctx, r)
	})
	if !r.IsSentinel() {
		s.met.RecordDetection(ctx, best.Label)
		log.WithFields(logrus.Fields{"top": r.String()}).Debug("[Session] Detection")
	}
	if err != nil {
		log.WithError(err).Warn("[Session] Failed to record detection")
	}
}

func (s *Session) drop(ctx context.Context, log logrus.FieldLogger, stage string, err error) {
	trace.Annotate(ctx, trace.ErrorAttrs(stage, err)...)
	err = fmt.Errorf("%w: %s: %w", ErrWindowDropped, stage, err)
	s.met.RecordDropped(ctx, stage)
	log.WithError(err).Warn("[Session] Window dropped")
	s.publishEvent(pipeline.EventWindowDropped, err)
}

func (s *Session) fail(err error) {
	s.setErr(err)
	s.log.WithError(err).Error("[Session] Fatal error")
	s.opts.Reporter.Fail(err)
	s.publishEvent(pipeline.EventFailure, err)
}

func (s *Session) publishEvent(t pipeline.EventType, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Publish(pipeline.Event{Type: t, SessionID: s.id, Payload: payload})
}

// release closes the capture source and any closable collaborator exactly once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if err := s.opts.Source.Close(); err != nil {
			s.log.WithError(err).Warn("[Session] Failed to close capture source")
		}
		if d, ok := s.opts.Gate.(interface{ Destroy() error }); ok {
			if err := d.Destroy(); err != nil {
				s.log.WithError(err).Warn("[Session] Failed to release gate model")
			}
		}
		if c, ok := s.opts.Classifier.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.log.WithError(err).Warn("[Session] Failed to release classifier")
			}
		}
		s.publishEvent(pipeline.EventSessionStopped, s.Err())
	})
}
