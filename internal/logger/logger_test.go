package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewConfigStampsService(t *testing.T) {
	cfg, err := newConfig("prod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.InitialFields["service"]; got != serviceName {
		t.Errorf("service field = %v, want %q", got, serviceName)
	}
}

func TestNewLoggerUnknownEnv(t *testing.T) {
	if _, err := NewLogger("staging"); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestNewLoggerLevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Error("debug override not applied")
	}

	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	base := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), base)
	if got := FromContext(ctx); got != base {
		t.Error("context did not return the stored logger")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Error("missing logger must fall back to a nop, not nil")
	}
}
