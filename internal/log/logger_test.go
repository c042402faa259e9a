package log

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"backtester/internal/config"
)

func TestNewLogger_BuildsWithConfiguredLevel(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{
		Level:    "debug",
		Encoding: "json",
	})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer logger.Sync()

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("debug level should be enabled")
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "verbose", Encoding: "json"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
