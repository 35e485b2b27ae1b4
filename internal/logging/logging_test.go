package logging

import (
	"testing"

	"odin-sync/internal/config"
)

func TestNewLoggerAcceptsKnownLevels(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected a non-nil logger")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "not-a-level"})
	if err == nil {
		t.Errorf("expected an error for an unrecognized log level")
	}
}
