package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
		{"warn at info level", log.InfoLevel, func(l *log.Logger) { l.Warn("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("got log output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, LogInfo)
	c.Logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %q", buf.String())
	}
	c.SetLogLevel(LogDebug)
	c.Logger.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug not logged after SetLogLevel: %q", buf.String())
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Formatter
		wantErr bool
	}{
		{"", log.TextFormatter, false},
		{"text", log.TextFormatter, false},
		{"JSON", log.JSONFormatter, false},
		{"logfmt", log.LogfmtFormatter, false},
		{"xml", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLogFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogFormat(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLogFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONLogFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, log.InfoLevel)
	f, err := parseLogFormat("json")
	if err != nil {
		t.Fatal(err)
	}
	l.SetFormatter(f)
	l.Info("agent spawned", "resource", "api")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["resource"] != "api" || line["msg"] != "agent spawned" {
		t.Errorf("line = %v", line)
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(10 * time.Millisecond)
	prog.done("Analyzed 3 resources")

	out := buf.String()
	if !strings.Contains(out, "Analyzed 3 resources (") {
		t.Errorf("progress output = %q", out)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("empty context should yield the default logger")
	}
	if loggerFromContext(nil) != log.Default() {
		t.Error("nil context should yield the default logger")
	}

	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)
	ctx := withLogger(context.Background(), custom)
	if loggerFromContext(ctx) != custom {
		t.Fatal("loggerFromContext should return the attached logger")
	}
	loggerFromContext(ctx).Info("test")
	if buf.Len() == 0 {
		t.Error("attached logger should write to its buffer")
	}
}
