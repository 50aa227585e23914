package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/stats"
	"orderflow/logger"
)

// State is the connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateReconnecting State = "reconnecting"
)

// Config tunes the connection state machine.
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 3 * time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
}

type resyncer interface {
	Resync()
}

// Manager owns one streaming connection's lifecycle: connect, heartbeat,
// backoff-based reconnect and outbound queueing. Messages sent while the
// connection is not open are queued and flushed in FIFO order on the next
// Open transition.
type Manager struct {
	cfg       Config
	transport Transport
	stats     *stats.Stats
	log       *logger.Entry

	mu             sync.Mutex
	state          State
	attempt        int
	connectionID   string
	conn           Conn
	queue          [][]byte
	closing        bool
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	handlers       []Handler
	registry       resyncer

	// jitterFn is swapped out in tests for deterministic delays.
	jitterFn func() time.Duration

	// writeMu serializes outbound frames; the websocket permits only
	// one concurrent writer.
	writeMu sync.Mutex
}

func NewManager(cfg Config, transport Transport, st *stats.Stats, log *logger.Log) *Manager {
	cfg.applyDefaults()
	if transport == nil {
		transport = &WebsocketTransport{}
	}
	if st == nil {
		st = stats.New()
	}
	return &Manager{
		cfg:       cfg,
		transport: transport,
		stats:     st,
		state:     StateDisconnected,
		log:       log.WithComponent("feed"),
		jitterFn:  defaultJitter,
	}
}

// SetResyncer wires the subscription registry replayed on every Open
// transition. Must be called before Connect.
func (m *Manager) SetResyncer(r resyncer) {
	m.mu.Lock()
	m.registry = r
	m.mu.Unlock()
}

// OnEvent registers a typed event handler. Handlers run on the manager's
// goroutines in registration order.
func (m *Manager) OnEvent(h Handler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// ConnectionID identifies the current (or most recent) connection attempt
// for correlating logs across reconnects.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionID
}

// Connect starts a connection attempt. It is only legal from the
// Disconnected and Reconnecting states.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state != StateDisconnected && m.state != StateReconnecting {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("connect is not allowed in state %q", state)
	}
	m.closing = false
	m.state = StateConnecting
	m.connectionID = uuid.NewString()
	connID := m.connectionID
	m.mu.Unlock()

	m.log.WithFields(logger.Fields{"url": m.cfg.URL, "connection_id": connID}).Info("connecting")
	go m.dial(connID)
	return nil
}

func (m *Manager) dial(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.transport.Dial(ctx, m.cfg.URL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectTimeout
		}
		connErr := &ConnectionError{Op: "dial", Err: err}
		m.stats.RecordError()
		m.log.WithError(connErr).WithField("connection_id", connID).Warn("failed to connect")
		m.emit(ErrorOccurred{ConnectionID: connID, Err: connErr})

		m.mu.Lock()
		if m.closing || m.connectionID != connID {
			m.mu.Unlock()
			return
		}
		m.state = StateDisconnected
		if m.attempt < m.cfg.MaxReconnectAttempts {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()

		m.emit(Closed{ConnectionID: connID, Clean: false, Err: connErr})
		return
	}

	m.mu.Lock()
	if m.closing || m.connectionID != connID {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.attempt = 0
	m.stats.ConnectionOpened(time.Now())
	pending := m.queue
	m.queue = nil
	m.heartbeatStop = make(chan struct{})
	stop := m.heartbeatStop
	m.mu.Unlock()

	m.log.WithField("connection_id", connID).Info("connection open")

	// Flush queued messages in submission order before anything else
	// goes out on this connection.
	for _, msg := range pending {
		if err := m.writeFrame(conn, msg); err != nil {
			m.log.WithError(err).Warn("failed to flush queued message")
			conn.Close()
			break
		}
		m.stats.RecordSent(len(msg))
	}

	m.emit(Opened{ConnectionID: connID})

	m.mu.Lock()
	registry := m.registry
	m.mu.Unlock()
	if registry != nil {
		registry.Resync()
	}

	go m.heartbeatLoop(conn, connID, stop)
	m.readLoop(conn, connID)
}

func (m *Manager) readLoop(conn Conn, connID string) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, connID, err)
			return
		}
		m.handleMessage(data)
	}
}

// handleClose runs the close path exactly once per connection; late calls
// for an already-replaced conn are ignored.
func (m *Manager) handleClose(conn Conn, connID string, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	m.stats.ConnectionClosed(time.Now())
	clean := m.closing
	m.state = StateDisconnected
	if !clean && m.attempt < m.cfg.MaxReconnectAttempts {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	entry := m.log.WithField("connection_id", connID)
	if clean {
		entry.Info("connection closed")
	} else {
		entry.WithError(err).Warn("connection lost")
	}
	m.emit(Closed{ConnectionID: connID, Clean: clean, Err: err})
}

// scheduleReconnectLocked arms the single reconnect timer. A second
// request while one is pending is a no-op. Callers hold m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		return
	}
	m.attempt++
	m.stats.RecordReconnect()
	m.state = StateReconnecting

	delay := reconnectDelay(m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, m.attempt) + m.jitterFn()
	m.log.WithFields(logger.Fields{"attempt": m.attempt, "delay": delay.String()}).Info("reconnect scheduled")

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		if m.closing || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if err := m.Connect(); err != nil {
			m.log.WithError(err).Warn("scheduled reconnect could not start")
		}
	})
}

// reconnectDelay doubles the base delay per attempt up to max. Jitter
// is added by the caller.
func reconnectDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}

// defaultJitter returns a uniformly random delay in [0, 1s).
func defaultJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}

// Send transmits the message immediately when the connection is open;
// otherwise it appends the message to the outbound queue and reports
// queued=true. Queueing is never an error.
func (m *Manager) Send(v interface{}) (queued bool, err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal outbound message: %w", err)
	}

	m.mu.Lock()
	if m.state == StateOpen && m.conn != nil {
		conn := m.conn
		m.mu.Unlock()

		if err := m.writeFrame(conn, data); err != nil {
			m.stats.RecordError()
			// let the read loop run the close and reconnect path
			conn.Close()
			return false, &ConnectionError{Op: "send", Err: err}
		}
		m.stats.RecordSent(len(data))
		return false, nil
	}
	m.queue = append(m.queue, data)
	m.mu.Unlock()
	return true, nil
}

// Disconnect closes the connection cleanly: all pending timers are
// cancelled, the outbound queue is cleared and no reconnect is scheduled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.queue = nil
	conn := m.conn
	if conn == nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.mu.Unlock()

	// the read loop observes the close and finishes the transition
	conn.Close()
}

func (m *Manager) handleMessage(data []byte) {
	m.stats.RecordMessage(len(data))
	now := time.Now()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		perr := &ProtocolError{Err: err}
		if err == nil {
			perr.Err = errors.New("missing message type")
		}
		m.stats.RecordError()
		m.log.WithError(perr).Debug("unstructured inbound payload")
		// downgraded to a raw pass-through, never fatal
		m.emit(MessageReceived{Type: MessageTypeRaw, Raw: data, ReceivedAt: now})
		return
	}

	switch env.Type {
	case "pong":
		if env.RequestTime > 0 {
			if latency := now.Sub(time.UnixMilli(env.RequestTime)); latency >= 0 {
				m.stats.RecordLatency(latency)
			}
		}
	default:
		m.emit(MessageReceived{
			Type:       env.Type,
			Symbol:     env.Symbol,
			Data:       env.Data,
			ReceivedAt: now,
		})
	}
}

// writeFrame is the single choke point for outbound frames. The queue
// flush, Send and the heartbeat loop all run on different goroutines and
// the underlying websocket tolerates only one writer at a time.
func (m *Manager) writeFrame(conn Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(data)
}

func (m *Manager) heartbeatLoop(conn Conn, connID string, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ping := pingMessage{
				Type:         "ping",
				RequestTime:  time.Now().UnixMilli(),
				ConnectionID: connID,
			}
			data, err := json.Marshal(ping)
			if err != nil {
				continue
			}
			if err := m.writeFrame(conn, data); err != nil {
				m.log.WithError(err).WithField("connection_id", connID).Warn("failed to send heartbeat")
				conn.Close()
				return
			}
			m.stats.RecordSent(len(data))
		}
	}
}

func (m *Manager) emit(e Event) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}
