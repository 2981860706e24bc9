package logger

import "testing"

func TestWith_doesNotMutateParent(t *testing.T) {
	base := New(false)
	child := base.With("pid", 1234)

	if base == child {
		t.Error("With() should return a distinct *Logger, not mutate in place")
	}
}

func TestNew_debugGating(t *testing.T) {
	// Debug and info loggers must not panic on construction or on any
	// leveled call, regardless of the gate.
	for _, debug := range []bool{true, false} {
		l := New(debug)
		l.Debug("debug message %d", 1)
		l.Info("info message %s", "x")
		l.Warn("warn message")
		l.Error("error message: %v", nil)
	}
}
