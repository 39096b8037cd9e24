package logger

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Config{Level: level, Output: &buf})
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newTestLogger(WARN)

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Messages below WARN leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") {
		t.Errorf("Missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("Missing error line: %q", out)
	}
}

func TestWithPrefixSharesOutput(t *testing.T) {
	l, buf := newTestLogger(DEBUG)
	child := l.With("[listen]")

	child.Infof("tick")
	l.SetLevel(ERROR)
	child.Infof("dropped")

	out := buf.String()
	if !strings.Contains(out, "[listen] tick") {
		t.Errorf("Expected prefixed line, got %q", out)
	}
	if strings.Contains(out, "dropped") {
		t.Error("Child logger should follow the parent's level")
	}
}

func TestFatalExits(t *testing.T) {
	l, buf := newTestLogger(INFO)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatalf("boom")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] boom") {
		t.Errorf("Missing fatal line: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{" Info ", INFO, false},
		{"warning", WARN, false},
		{"ERROR", ERROR, false},
		{"fatal", FATAL, false},
		{"loud", INFO, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Errorf("nothing to see")
}
