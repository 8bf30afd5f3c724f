package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "bot"))
	log.Info("login ok", Int("attempt", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "bot" || m["message"] != "login ok" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["attempt"] != float64(2) {
		t.Fatalf("attempt = %v", m["attempt"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("dropped")
}

func TestTailFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "woonbot.log")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := TailFile(path, 4)
	if err != nil {
		t.Fatalf("TailFile: %v", err)
	}
	if got != "6789" {
		t.Fatalf("tail = %q", got)
	}
	all, _ := TailFile(path, 100)
	if all != "0123456789" {
		t.Fatalf("short file tail = %q", all)
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	got := formatTelegramJSON([]byte(`{"level":"warn","message":"apply failed","listing":"123"}`))
	if !strings.HasPrefix(got, "[WARN] apply failed") || !strings.Contains(got, "listing=123") {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)
	log.Info("hello file")
	log.Debug("filtered")
	tail, err := svc.Tail(1000)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	_ = svc.Close()
	if !strings.Contains(tail, "hello file") || strings.Contains(tail, "filtered") {
		t.Fatalf("unexpected tail: %q", tail)
	}
}
