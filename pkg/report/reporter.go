// Package report delivers ranked results and session failures to their
// consumers: the log, the event bus and live websocket clients.
package report

import (
	"github.com/realtime-ai/keyword-spotter/pkg/pipeline"
	"github.com/realtime-ai/keyword-spotter/pkg/rank"
	"github.com/sirupsen/logrus"
)

// Reporter receives every ranked result in window order and, at most once,
// the error that ended the session. Implementations must not block.
type Reporter interface {
	Report(r rank.Result)
	Fail(err error)
}

// Multi fans out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(r rank.Result) {
	for _, rep := range m {
		rep.Report(r)
	}
}

func (m Multi) Fail(err error) {
	for _, rep := range m {
		rep.Fail(err)
	}
}

// LogReporter writes results to a logrus logger. Sentinel results are
// logged at debug level.
type LogReporter struct {
	Logger logrus.FieldLogger
}

func NewLogReporter(logger logrus.FieldLogger) *LogReporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogReporter{Logger: logger}
}

func (l *LogReporter) Report(r rank.Result) {
	if r.IsSentinel() {
		l.Logger.Debug("[Reporter] No keyword")
		return
	}
	best := r.Best()
	l.Logger.WithFields(logrus.Fields{
		"word":       best.Label,
		"confidence": best.Confidence,
		"top":        r.String(),
	}).Info("[Reporter] Keyword detected")
}

func (l *LogReporter) Fail(err error) {
	l.Logger.WithError(err).Error("[Reporter] Session failed")
}

// BusReporter publishes results as pipeline events.
type BusReporter struct {
	bus       pipeline.Bus
	sessionID string
}

func NewBusReporter(bus pipeline.Bus, sessionID string) *BusReporter {
	return &BusReporter{bus: bus, sessionID: sessionID}
}

// Report publishes EventResult for every result and EventDetection for
// non-sentinel ones.
func (b *BusReporter) Report(r rank.Result) {
	b.bus.Publish(pipeline.Event{Type: pipeline.EventResult, SessionID: b.sessionID, Payload: r})
	if !r.IsSentinel() {
		b.bus.Publish(pipeline.Event{Type: pipeline.EventDetection, SessionID: b.sessionID, Payload: r})
	}
}

func (b *BusReporter) Fail(err error) {
	b.bus.Publish(pipeline.Event{Type: pipeline.EventFailure, SessionID: b.sessionID, Payload: err})
}

var (
	_ Reporter = Multi(nil)
	_ Reporter = (*LogReporter)(nil)
	_ Reporter = (*BusReporter)(nil)
)
