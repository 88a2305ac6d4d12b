package logging

import "testing"

func TestNewDefaultsToInfo(t *testing.T) {
	logger := New("bogus")
	if logger == nil || logger.Logger == nil {
		t.Fatal("expected a usable logger for unknown levels")
	}
}

func TestComponentOnNilLogger(t *testing.T) {
	var logger *Logger
	child := logger.Component("worker")
	if child == nil || child.Logger == nil {
		t.Fatal("expected Component to fall back to a default logger")
	}
}
