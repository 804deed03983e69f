package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatLog(t *testing.T) {
	cases := []struct {
		tag     string
		message string
		want    string
	}{
		{"BOOT", "service ready", "[BOOT] service ready"},
		{"PIPELINE", "x.jpg processed", "[PIPELINE] x.jpg processed"},
		{"", "no tag", "no tag"},
	}
	for _, tc := range cases {
		if got := FormatLog(tc.tag, tc.message); got != tc.want {
			t.Errorf("FormatLog(%q, %q) = %q, want %q", tc.tag, tc.message, got, tc.want)
		}
	}
}

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "debug", Dir: dir, Filename: "test.log"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.InfoTag("HTTP", "GET /health -> %d", 200)
	logger.WarnFields("slow request", map[string]interface{}{"duration_ms": 1200})
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[HTTP] GET /health -> 200") {
		t.Errorf("tagged message missing from log file: %s", content)
	}
	if !strings.Contains(content, "duration_ms") {
		t.Errorf("structured field missing from log file: %s", content)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Debug("ignored")
	l.InfoTag("BOOT", "ignored")
	l.Error("ignored %d", 1)
	l.WarnFields("ignored", map[string]interface{}{"k": "v"})
}
