package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "woonbot/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestManagerLoadJSONAndYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	js := writeFile(t, dir, "a.json", `{"bot":{"count":3},"schedule":{"apply_at":"20:00"}}`)
	ym := writeFile(t, dir, "b.yaml", "bot:\n  count: 3\nschedule:\n  apply_at: \"20:00\"\n")

	for _, p := range []string{js, ym} {
		m := NewManager(p)
		cfg, err := m.Load()
		if err != nil {
			t.Fatalf("%s: load: %v", filepath.Base(p), err)
		}
		if cfg.Bot.Count != 3 || cfg.Schedule.ApplyAt != "20:00" {
			t.Fatalf("%s: unexpected cfg %+v", filepath.Base(p), cfg)
		}
		if m.Get() != cfg {
			t.Fatalf("Get did not return committed config")
		}
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown":  `{"bot":{"count":1},"nope":true}`,
		"trailing": `{"bot":{"count":1}} {}`,
	}
	for name, body := range cases {
		if _, err := Decode("c.json", []byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Decode("c.yml", []byte("bot:\n  cnt: 1\n")); err == nil {
		t.Fatalf("yaml unknown field: expected error")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"schedule":{"window_start":"21:00","apply_at":"20:00"}}`)
	m := NewManager(p)
	if _, err := m.Load(); err == nil {
		t.Fatalf("expected window ordering error")
	}
	if m.Get() != nil {
		t.Fatalf("invalid config must not be committed")
	}
}

func TestSubscribeDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{AppDir: "a"}, &Config{AppDir: "b"}
	m.publish(a)
	m.publish(b)
	select {
	case got := <-ch:
		if got != b {
			t.Fatalf("expected latest config, got %q", got.AppDir)
		}
	default:
		t.Fatalf("expected a pending update")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestWatchPublishesChange(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"bot":{"count":1}}`)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := contextWithTimeout(t, 5*time.Second)
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "c.json", `{"bot":{"count":2}}`)

	select {
	case cfg := <-ch:
		if cfg.Bot.Count != 2 {
			t.Fatalf("count=%d, want 2", cfg.Bot.Count)
		}
	case <-ctx.Done():
		t.Fatalf("no config published")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d := cfg.WithDefaults(); d.Schedule.ApplyAt != DefaultApplyAt || d.Site.BaseURL != DefaultBaseURL {
		t.Fatalf("defaults not applied: %+v", d.Schedule)
	}
}

func TestWatchPicksUpCreatedFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := contextWithTimeout(t, 5*time.Second)
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"bot":{"count":5}}`)

	select {
	case cfg := <-ch:
		if cfg.Bot.Count != 5 {
			t.Fatalf("count=%d, want 5", cfg.Bot.Count)
		}
	case <-ctx.Done():
		t.Fatalf("created config not published")
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	o := &Config{Telegram: &TelegramConfig{Token: "old"}}
	n := &Config{Telegram: &TelegramConfig{Token: "secret-token"}, Bot: BotConfig{Count: 4}}
	changed, attrs := SummarizeChange(o, n)
	joined := strings.Join(changed, ",")
	if !strings.Contains(joined, "telegram") || !strings.Contains(joined, "bot") {
		t.Fatalf("changed=%v", changed)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("config changed", attrs...)
	if strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"telegram.token_set":true`) {
		t.Fatalf("missing token_set flag: %s", buf.String())
	}
}

func contextWithTimeout(t *testing.T, d time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), d)
}
