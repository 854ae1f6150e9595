package report

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realtime-ai/keyword-spotter/pkg/rank"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWSWriteWait  = 10 * time.Second
	DefaultWSPongWait   = 60 * time.Second
	DefaultWSPingPeriod = 54 * time.Second // Must be less than pongWait

	clientQueueSize = 32
)

// WebSocketConfig holds the timing parameters for client connections.
type WebSocketConfig struct {
	SessionID  string
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	Logger     logrus.FieldLogger
}

// DefaultWebSocketConfig returns the default configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:  DefaultWSWriteWait,
		PongWait:   DefaultWSPongWait,
		PingPeriod: DefaultWSPingPeriod,
	}
}

// WSMessage is the JSON frame sent to clients.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WSResultPayload is the payload of a "result" frame.
type WSResultPayload struct {
	SessionID string      `json:"session_id,omitempty"`
	Sentinel  bool        `json:"sentinel"`
	Results   rank.Result `json:"results"`
	Timestamp time.Time   `json:"timestamp"`
}

// WSFailurePayload is the payload of a "failure" frame.
type WSFailurePayload struct {
	SessionID string    `json:"session_id,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocketReporter is an http.Handler that upgrades clients and streams
// every result to them. Slow clients miss frames instead of stalling the
// session.
type WebSocketReporter struct {
	cfg      WebSocketConfig
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

var _ Reporter = (*WebSocketReporter)(nil)
var _ http.Handler = (*WebSocketReporter)(nil)

// NewWebSocketReporter creates a reporter with no clients.
func NewWebSocketReporter(cfg WebSocketConfig) *WebSocketReporter {
	def := DefaultWebSocketConfig()
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &WebSocketReporter{
		cfg: cfg,
		log: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (w *WebSocketReporter) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.WithError(err).Warn("[WebSocketReporter] Upgrade failed")
		return
	}

	c := &wsClient{
		owner: w,
		conn:  conn,
		out:   make(chan []byte, clientQueueSize),
		done:  make(chan struct{}),
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.clients[c] = struct{}{}
	w.mu.Unlock()

	w.log.WithField("remote", r.RemoteAddr).Info("[WebSocketReporter] Client connected")
	c.start()
}

// Clients returns the number of connected clients.
func (w *WebSocketReporter) Clients() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

// Report implements Reporter.
func (w *WebSocketReporter) Report(r rank.Result) {
	w.broadcast("result", WSResultPayload{
		SessionID: w.cfg.SessionID,
		Sentinel:  r.IsSentinel(),
		Results:   r,
		Timestamp: time.Now().UTC(),
	})
}

// Fail implements Reporter.
func (w *WebSocketReporter) Fail(err error) {
	w.broadcast("failure", WSFailurePayload{
		SessionID: w.cfg.SessionID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// Close disconnects every client and rejects new ones.
func (w *WebSocketReporter) Close() error {
	w.mu.Lock()
	w.closed = true
	clients := make([]*wsClient, 0, len(w.clients))
	for c := range w.clients {
		clients = append(clients, c)
	}
	w.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (w *WebSocketReporter) broadcast(kind string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		w.log.WithError(err).Error("[WebSocketReporter] Marshal payload")
		return
	}
	frame, err := json.Marshal(WSMessage{Type: kind, Payload: raw})
	if err != nil {
		w.log.WithError(err).Error("[WebSocketReporter] Marshal frame")
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for c := range w.clients {
		select {
		case c.out <- frame:
		default:
			w.log.Warn("[WebSocketReporter] Client queue full, dropping frame")
		}
	}
}

func (w *WebSocketReporter) remove(c *wsClient) {
	w.mu.Lock()
	delete(w.clients, c)
	w.mu.Unlock()
}

type wsClient struct {
	owner *WebSocketReporter
	conn  *websocket.Conn
	out   chan []byte
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func (c *wsClient) start() {
	pongWait := c.owner.cfg.PongWait
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
}

// readPump discards client frames; it exists to process control frames and
// notice disconnects.
func (c *wsClient) readPump() {
	defer c.wg.Done()
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.owner.log.WithError(err).Warn("[WebSocketReporter] Read error")
			}
			return
		}
	}
}

// writePump owns the connection: closing it on exit unblocks readPump.
func (c *wsClient) writePump() {
	defer c.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(c.owner.cfg.PingPeriod)
	defer ticker.Stop()

	writeWait := c.owner.cfg.WriteWait
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.owner.log.WithError(err).Warn("[WebSocketReporter] Write error")
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		c.owner.remove(c)
		close(c.done)
	})
}
