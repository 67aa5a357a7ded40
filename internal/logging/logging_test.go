package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Info("hidden")
	l.Warn("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 1") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestLoggerFieldsSortedAndShared(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelInfo, Output: &buf, Prefix: "test"})
	child := root.WithComponent("manager").WithPlugin("lyrics")

	root.SetLevel(LevelDebug)
	child.Debug("loaded")

	out := buf.String()
	if !strings.Contains(out, "test: loaded {component=manager, plugin=lyrics}") {
		t.Errorf("unexpected line: %q", out)
	}
}

func TestNullLogger(t *testing.T) {
	if OrNull(nil) != NullLogger {
		t.Error("OrNull(nil) should return NullLogger")
	}
	if NullLogger.Enabled(LevelError) {
		t.Error("NullLogger should not be enabled")
	}
	// Must not panic.
	NullLogger.WithField("k", "v").Error("ignored")
}
