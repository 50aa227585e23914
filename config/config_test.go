package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a configuration file with the given content and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `orderflow:
  name: "TestApp"
feed:
  enabled: true
  url: "wss://feed.example.com/ws"
rest:
  base_url: "https://api.example.com"
symbols:
  - BTCUSDT
  - ETHUSDT
`)
	defer os.Remove(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Feed.ConnectTimeout() != 10*time.Second {
		t.Fatalf("unexpected connect timeout: %v", cfg.Feed.ConnectTimeout())
	}
	if cfg.Feed.ReconnectBaseDelay() != 3*time.Second || cfg.Feed.ReconnectMaxDelay() != 30*time.Second {
		t.Fatalf("unexpected reconnect delays: %v / %v", cfg.Feed.ReconnectBaseDelay(), cfg.Feed.ReconnectMaxDelay())
	}
	if cfg.Rest.CacheTTL() != 5*time.Second {
		t.Fatalf("unexpected cache TTL: %v", cfg.Rest.CacheTTL())
	}
	if cfg.Store.StaleAfter() != 10*time.Second {
		t.Fatalf("unexpected stale threshold: %v", cfg.Store.StaleAfter())
	}
	if len(cfg.Symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(cfg.Symbols))
	}
}

func TestLoadRejectsMissingFeedURL(t *testing.T) {
	path := writeTempConfig(t, `feed:
  enabled: true
rest:
  base_url: "https://api.example.com"
`)
	defer os.Remove(path)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing feed url")
	}
}

func TestLoadRejectsMissingRestBaseURL(t *testing.T) {
	path := writeTempConfig(t, `feed:
  enabled: false
`)
	defer os.Remove(path)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing rest base_url")
	}
}

func TestLoadRejectsInvertedBackoffBounds(t *testing.T) {
	path := writeTempConfig(t, `feed:
  enabled: true
  url: "wss://feed.example.com/ws"
  reconnect_base_delay_ms: 60000
  reconnect_max_delay_ms: 5000
rest:
  base_url: "https://api.example.com"
`)
	defer os.Remove(path)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for inverted backoff bounds")
	}
}
