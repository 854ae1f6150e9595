package report

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realtime-ai/keyword-spotter/pkg/inference"
	"github.com/realtime-ai/keyword-spotter/pkg/pipeline"
	"github.com/realtime-ai/keyword-spotter/pkg/rank"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection() rank.Result {
	return rank.Result{
		{Label: "yes", Confidence: 0.8},
		{Label: "no", Confidence: 0.1},
	}
}

type countingReporter struct {
	reports []rank.Result
	fails   []error
}

func (c *countingReporter) Report(r rank.Result) { c.reports = append(c.reports, r) }
func (c *countingReporter) Fail(err error)       { c.fails = append(c.fails, err) }

func TestMultiFansOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	m := Multi{a, b}

	m.Report(detection())
	m.Fail(errors.New("mic unplugged"))

	for _, c := range []*countingReporter{a, b} {
		assert.Len(t, c.reports, 1)
		assert.Len(t, c.fails, 1)
	}
}

func TestLogReporter(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := NewLogReporter(logger)

	r.Report(detection())
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "yes", entry.Data["word"])

	r.Report(rank.Sentinel())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)

	r.Fail(errors.New("boom"))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Len(t, hook.AllEntries(), 3)
}

func TestBusReporter(t *testing.T) {
	bus := pipeline.NewEventBus()
	results := make(chan pipeline.Event, 4)
	detections := make(chan pipeline.Event, 4)
	failures := make(chan pipeline.Event, 4)
	bus.Subscribe(pipeline.EventResult, results)
	bus.Subscribe(pipeline.EventDetection, detections)
	bus.Subscribe(pipeline.EventFailure, failures)

	r := NewBusReporter(bus, "session-1")
	r.Report(rank.Sentinel())
	r.Report(detection())
	r.Fail(errors.New("gone"))

	assert.Len(t, results, 2)
	require.Len(t, detections, 1)
	require.Len(t, failures, 1)

	evt := <-detections
	assert.Equal(t, "session-1", evt.SessionID)
	assert.Equal(t, detection(), evt.Payload)

	evt = <-failures
	assert.EqualError(t, evt.Payload.(error), "gone")
}

func dial(t *testing.T, rep *WebSocketReporter) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(rep)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return rep.Clients() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketReporterStreamsResults(t *testing.T) {
	rep := NewWebSocketReporter(WebSocketConfig{SessionID: "abc"})
	defer rep.Close()
	conn := dial(t, rep)

	rep.Report(detection())
	msg := readFrame(t, conn)
	assert.Equal(t, "result", msg.Type)

	var payload WSResultPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "abc", payload.SessionID)
	assert.False(t, payload.Sentinel)
	assert.Equal(t, []inference.Score(detection()), []inference.Score(payload.Results))

	rep.Report(rank.Sentinel())
	msg = readFrame(t, conn)
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.True(t, payload.Sentinel)

	rep.Fail(errors.New("capture failed"))
	msg = readFrame(t, conn)
	assert.Equal(t, "failure", msg.Type)
	var failure WSFailurePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &failure))
	assert.Equal(t, "capture failed", failure.Error)
}

func TestWebSocketReporterForgetsClosedClients(t *testing.T) {
	rep := NewWebSocketReporter(WebSocketConfig{})
	conn := dial(t, rep)

	conn.Close()
	assert.Eventually(t, func() bool { return rep.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketReporterClose(t *testing.T) {
	rep := NewWebSocketReporter(WebSocketConfig{})
	conn := dial(t, rep)

	require.NoError(t, rep.Close())
	assert.Equal(t, 0, rep.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
