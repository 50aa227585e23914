package stats

import (
	"sync"
	"time"
)

// latencyWindowSize bounds the rolling latency sample buffer.
const latencyWindowSize = 100

// Stats accumulates connection telemetry. It is safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	totalMessages   int64
	totalErrors     int64
	totalReconnects int64
	bytesReceived   int64
	bytesSent       int64

	latencies []time.Duration

	connectedAt time.Time
	uptime      time.Duration
}

// Snapshot is a point-in-time copy of the accumulated counters.
type Snapshot struct {
	TotalMessages    int64         `json:"total_messages"`
	TotalErrors      int64         `json:"total_errors"`
	TotalReconnects  int64         `json:"total_reconnects"`
	BytesReceived    int64         `json:"bytes_received"`
	BytesSent        int64         `json:"bytes_sent"`
	ConnectionUptime time.Duration `json:"connection_uptime"`
	AverageLatency   time.Duration `json:"average_latency"`
	LatencySamples   int           `json:"latency_samples"`
}

func New() *Stats {
	return &Stats{}
}

// RecordMessage counts one inbound message of the given size.
func (s *Stats) RecordMessage(bytes int) {
	s.mu.Lock()
	s.totalMessages++
	s.bytesReceived += int64(bytes)
	s.mu.Unlock()
}

// RecordSent counts one outbound message of the given size.
func (s *Stats) RecordSent(bytes int) {
	s.mu.Lock()
	s.bytesSent += int64(bytes)
	s.mu.Unlock()
}

func (s *Stats) RecordError() {
	s.mu.Lock()
	s.totalErrors++
	s.mu.Unlock()
}

func (s *Stats) RecordReconnect() {
	s.mu.Lock()
	s.totalReconnects++
	s.mu.Unlock()
}

// RecordLatency pushes a heartbeat round-trip sample into the rolling
// window, evicting the oldest sample once the window is full.
func (s *Stats) RecordLatency(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	if len(s.latencies) > latencyWindowSize {
		s.latencies = append(s.latencies[:0], s.latencies[len(s.latencies)-latencyWindowSize:]...)
	}
	s.mu.Unlock()
}

// ConnectionOpened marks the start of a connected interval.
func (s *Stats) ConnectionOpened(at time.Time) {
	s.mu.Lock()
	s.connectedAt = at
	s.mu.Unlock()
}

// ConnectionClosed folds the finished connected interval into the uptime
// total. Calling it without a matching ConnectionOpened is a no-op.
func (s *Stats) ConnectionClosed(at time.Time) {
	s.mu.Lock()
	if !s.connectedAt.IsZero() {
		s.uptime += at.Sub(s.connectedAt)
		s.connectedAt = time.Time{}
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters. Uptime includes the
// in-progress connected interval, if any.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalMessages:    s.totalMessages,
		TotalErrors:      s.totalErrors,
		TotalReconnects:  s.totalReconnects,
		BytesReceived:    s.bytesReceived,
		BytesSent:        s.bytesSent,
		ConnectionUptime: s.uptime,
		LatencySamples:   len(s.latencies),
	}
	if !s.connectedAt.IsZero() {
		snap.ConnectionUptime += time.Since(s.connectedAt)
	}
	if len(s.latencies) > 0 {
		var total time.Duration
		for _, d := range s.latencies {
			total += d
		}
		snap.AverageLatency = total / time.Duration(len(s.latencies))
	}
	return snap
}
