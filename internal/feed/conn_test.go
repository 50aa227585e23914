package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"orderflow/logger"
)

type fakeConn struct {
	mu        sync.Mutex
	inbound   chan []byte
	written   [][]byte
	writeErr  error
	closeOnce sync.Once

	writers     int32
	overlapping int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return nil, errors.New("connection reset by peer")
	}
	return data, nil
}

// WriteMessage records overlapping callers before taking c.mu, the way
// the real websocket faults on a second concurrent writer.
func (c *fakeConn) WriteMessage(data []byte) error {
	if atomic.AddInt32(&c.writers, 1) > 1 {
		atomic.StoreInt32(&c.overlapping, 1)
	}
	time.Sleep(50 * time.Microsecond)
	defer atomic.AddInt32(&c.writers, -1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) sawOverlappingWrite() bool {
	return atomic.LoadInt32(&c.overlapping) == 1
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.inbound) })
	return nil
}

func (c *fakeConn) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	block bool
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (Conn, error) {
	if t.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	conn := newFakeConn()
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

func quietLogger() *logger.Log {
	log := logger.New()
	log.SetOutput(io.Discard)
	return log
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestManager(cfg Config, tr *fakeTransport) *Manager {
	if cfg.URL == "" {
		cfg.URL = "ws://feed.test/ws"
	}
	m := NewManager(cfg, tr, nil, quietLogger())
	m.jitterFn = func() time.Duration { return 0 }
	return m
}

func TestQueuedMessagesFlushInOrder(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{}, tr)

	for i := 0; i < 3; i++ {
		queued, err := m.Send(map[string]int{"seq": i})
		if err != nil {
			t.Fatalf("Send(%d) returned error: %v", i, err)
		}
		if !queued {
			t.Fatalf("Send(%d) should queue while disconnected", i)
		}
	}

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	waitFor(t, m.IsOpen, "connection never reached open state")

	conn := tr.conn(0)
	waitFor(t, func() bool { return len(conn.writes()) == 3 }, "queued messages were not flushed")
	for i, w := range conn.writes() {
		want := fmt.Sprintf(`{"seq":%d}`, i)
		if string(w) != want {
			t.Errorf("flushed[%d] = %s, want %s", i, w, want)
		}
	}

	queued, err := m.Send(map[string]int{"seq": 3})
	if err != nil {
		t.Fatalf("Send after open returned error: %v", err)
	}
	if queued {
		t.Fatal("Send after open must write directly, not queue")
	}
	if got := len(conn.writes()); got != 4 {
		t.Fatalf("conn saw %d writes, want 4", got)
	}

	m.Disconnect()
}

func TestDisconnectIsCleanAndFinal(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{
		ReconnectBaseDelay: 5 * time.Millisecond,
		ReconnectMaxDelay:  10 * time.Millisecond,
	}, tr)

	var mu sync.Mutex
	var closedEvents []Closed
	m.OnEvent(func(e Event) {
		if c, ok := e.(Closed); ok {
			mu.Lock()
			closedEvents = append(closedEvents, c)
			mu.Unlock()
		}
	})

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	waitFor(t, m.IsOpen, "connection never reached open state")

	m.Disconnect()
	waitFor(t, func() bool { return m.State() == StateDisconnected }, "manager never settled in disconnected state")

	time.Sleep(50 * time.Millisecond)
	if got := tr.dialCount(); got != 1 {
		t.Fatalf("clean close must not reconnect, saw %d dials", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(closedEvents) != 1 {
		t.Fatalf("want 1 closed event, got %d", len(closedEvents))
	}
	if !closedEvents[0].Clean {
		t.Fatal("local disconnect must report a clean close")
	}
}

func TestUncleanCloseReconnects(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{
		ReconnectBaseDelay: 5 * time.Millisecond,
		ReconnectMaxDelay:  10 * time.Millisecond,
	}, tr)

	var mu sync.Mutex
	var closedEvents []Closed
	m.OnEvent(func(e Event) {
		if c, ok := e.(Closed); ok {
			mu.Lock()
			closedEvents = append(closedEvents, c)
			mu.Unlock()
		}
	})

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	waitFor(t, m.IsOpen, "connection never reached open state")
	firstID := m.ConnectionID()

	// Peer drop: the read loop sees an error and runs the close path.
	tr.conn(0).Close()

	waitFor(t, func() bool { return tr.dialCount() == 2 && m.IsOpen() }, "manager never reconnected after unclean close")

	if m.ConnectionID() == firstID {
		t.Error("reconnect must mint a fresh connection id")
	}
	if got := len(tr.conn(1).writes()); got != 0 {
		t.Errorf("flushed queue must not replay on reconnect, saw %d writes", got)
	}

	mu.Lock()
	if len(closedEvents) == 0 || closedEvents[0].Clean {
		t.Error("peer drop must report an unclean close")
	}
	mu.Unlock()

	m.Disconnect()
}

func TestOutboundWritesSerialized(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{HeartbeatInterval: time.Millisecond}, tr)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	waitFor(t, m.IsOpen, "connection never reached open state")

	// Hammer Send while the heartbeat loop is writing pings.
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := m.Send(map[string]string{"type": "subscribe", "symbol": "BTC"}); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
	}

	if tr.conn(0).sawOverlappingWrite() {
		t.Fatal("heartbeat and Send wrote the connection concurrently")
	}
	m.Disconnect()
}

func TestSendFailureTriggersReconnect(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{
		ReconnectBaseDelay: 5 * time.Millisecond,
		ReconnectMaxDelay:  10 * time.Millisecond,
	}, tr)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	waitFor(t, m.IsOpen, "connection never reached open state")

	tr.conn(0).failWrites(errors.New("broken pipe"))

	queued, err := m.Send(map[string]string{"type": "subscribe"})
	if queued {
		t.Fatal("failed write must not report queued")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("want *ConnectionError, got %v", err)
	}

	waitFor(t, func() bool { return tr.dialCount() == 2 && m.IsOpen() }, "manager never reconnected after send failure")
	m.Disconnect()
}

func TestConnectTimeout(t *testing.T) {
	tr := &fakeTransport{block: true}
	m := newTestManager(Config{
		ConnectTimeout:     20 * time.Millisecond,
		ReconnectBaseDelay: time.Hour,
		ReconnectMaxDelay:  time.Hour,
	}, tr)

	errCh := make(chan error, 1)
	m.OnEvent(func(e Event) {
		if ev, ok := e.(ErrorOccurred); ok {
			select {
			case errCh <- ev.Err:
			default:
			}
		}
	})

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectTimeout) {
			t.Fatalf("want ErrConnectTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error event after connect deadline")
	}
	m.Disconnect()
}

func TestConnectRejectedWhileOpen(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(Config{}, tr)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	waitFor(t, m.IsOpen, "connection never reached open state")

	if err := m.Connect(); err == nil {
		t.Fatal("Connect from open state must be rejected")
	}
	m.Disconnect()
}

func TestReconnectDelayDoublesUpToMax(t *testing.T) {
	base := 3 * time.Second
	max := 30 * time.Second
	want := []time.Duration{
		3 * time.Second,
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := reconnectDelay(base, max, i+1); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestPongFeedsLatencyWindow(t *testing.T) {
	m := newTestManager(Config{}, &fakeTransport{})

	var events []Event
	m.OnEvent(func(e Event) { events = append(events, e) })

	sentAt := time.Now().Add(-80 * time.Millisecond).UnixMilli()
	m.handleMessage([]byte(fmt.Sprintf(`{"type":"pong","requestTime":%d}`, sentAt)))

	snap := m.stats.Snapshot()
	if snap.LatencySamples != 1 {
		t.Fatalf("latency samples = %d, want 1", snap.LatencySamples)
	}
	if snap.AverageLatency < 80*time.Millisecond {
		t.Errorf("average latency = %v, want at least 80ms", snap.AverageLatency)
	}
	if len(events) != 0 {
		t.Fatalf("pong must be consumed internally, got %d events", len(events))
	}
}

func TestMalformedPayloadPassesThroughRaw(t *testing.T) {
	m := newTestManager(Config{}, &fakeTransport{})

	var got []MessageReceived
	m.OnEvent(func(e Event) {
		if mr, ok := e.(MessageReceived); ok {
			got = append(got, mr)
		}
	})

	m.handleMessage([]byte("not json at all"))
	m.handleMessage([]byte(`{"symbol":"BTC"}`))

	if len(got) != 2 {
		t.Fatalf("want 2 raw events, got %d", len(got))
	}
	for i, mr := range got {
		if mr.Type != MessageTypeRaw {
			t.Errorf("event %d type = %q, want %q", i, mr.Type, MessageTypeRaw)
		}
	}
	if string(got[0].Raw) != "not json at all" {
		t.Errorf("raw payload = %q, want original bytes", got[0].Raw)
	}
	if errs := m.stats.Snapshot().TotalErrors; errs != 2 {
		t.Errorf("total errors = %d, want 2", errs)
	}
}

func TestOrderbookUpdateForwarded(t *testing.T) {
	m := newTestManager(Config{}, &fakeTransport{})

	var got []MessageReceived
	m.OnEvent(func(e Event) {
		if mr, ok := e.(MessageReceived); ok {
			got = append(got, mr)
		}
	})

	m.handleMessage([]byte(`{"type":"orderbook_update","symbol":"BTC","data":{"Symbol":"BTC"}}`))

	if len(got) != 1 {
		t.Fatalf("want 1 event, got %d", len(got))
	}
	if got[0].Type != MessageTypeOrderbook {
		t.Errorf("type = %q, want %q", got[0].Type, MessageTypeOrderbook)
	}
	if got[0].Symbol != "BTC" {
		t.Errorf("symbol = %q, want BTC", got[0].Symbol)
	}
	if len(got[0].Data) == 0 {
		t.Error("data payload missing")
	}
}
