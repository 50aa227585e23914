package logger

import (
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := New()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := New()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := New()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWithFieldsChaining(t *testing.T) {
	log := New()
	entry := log.WithComponent("feed").WithFields(Fields{"symbol": "BTCUSDT"})
	if entry.Entry.Data["component"] != "feed" || entry.Entry.Data["symbol"] != "BTCUSDT" {
		t.Fatalf("fields not propagated: %v", entry.Entry.Data)
	}
}
