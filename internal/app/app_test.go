package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"woonbot/internal/bot"
	"woonbot/internal/config"
	"woonbot/internal/credentials"
	"woonbot/internal/eventbus"
	"woonbot/internal/scheduler"
	"woonbot/internal/storage"
	"woonbot/internal/woonnet"
	logx "woonbot/pkg/logx"
)

func TestResolveSelection(t *testing.T) {
	t.Parallel()
	cfg := config.BotConfig{Count: 2, ListingIDs: []string{"9"}}
	cases := []struct {
		name  string
		flags RunFlags
		prefs storage.Prefs
		want  bot.Selection
	}{
		{"config only", RunFlags{}, storage.Prefs{}, bot.Selection{Count: 2, IDs: []string{"9"}}},
		{"prefs over config", RunFlags{}, storage.Prefs{Count: 3}, bot.Selection{Count: 3}},
		{"flags over prefs", RunFlags{Count: 5, CountSet: true}, storage.Prefs{Count: 3, Max: true}, bot.Selection{Count: 5, Max: true}},
		{"explicit ids forced", RunFlags{IDs: []string{"1, 2", " "}, IDsSet: true}, storage.Prefs{}, bot.Selection{Count: 2, IDs: []string{"1", "2"}, Force: true}},
		{"zero count", RunFlags{Count: 0, CountSet: true, Reapply: true}, storage.Prefs{}, bot.Selection{Count: 1, Reapply: true}},
		{"count flag drops saved ids", RunFlags{Count: 3, CountSet: true}, storage.Prefs{Count: 1, ListingIDs: []string{"123"}}, bot.Selection{Count: 3}},
		{"max flag drops config ids", RunFlags{Max: true, MaxSet: true}, storage.Prefs{}, bot.Selection{Count: 2, Max: true}},
		{"ids flag with count", RunFlags{Count: 4, CountSet: true, IDs: []string{"7"}, IDsSet: true}, storage.Prefs{ListingIDs: []string{"123"}}, bot.Selection{Count: 4, IDs: []string{"7"}, Force: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := resolveSelection(tc.flags, tc.prefs, cfg)
			if got.Count != tc.want.Count || got.Max != tc.want.Max || got.Force != tc.want.Force ||
				got.Reapply != tc.want.Reapply || strings.Join(got.IDs, ",") != strings.Join(tc.want.IDs, ",") {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestMapping(t *testing.T) {
	t.Parallel()
	cfg := (&config.Config{
		AppDir:   "/tmp/woonbot-test",
		Schedule: config.ScheduleConfig{WindowStart: "18:30", PollInterval: "30s"},
		Telegram: &config.TelegramConfig{Token: "t", ChatID: -100},
		Notifier: &config.NotifierConfig{Enabled: true, RetryBase: "2s"},
		Logging:  config.LoggingConfig{Telegram: config.LoggingTelegram{Enabled: true}},
	}).WithDefaults()

	w, err := mapWindow(cfg)
	if err != nil {
		t.Fatalf("mapWindow: %v", err)
	}
	if w.Start.String() != "18:30" || w.ApplyAt.String() != "20:00" || w.Loc.String() != "Europe/Amsterdam" {
		t.Fatalf("window: %+v", w)
	}
	if tm := mapTiming(cfg); tm.PollInterval != 30*time.Second || tm.PrepareLead != 2*time.Minute {
		t.Fatalf("timing: %+v", tm)
	}
	if n := mapNotifierConfig(cfg); !n.Enabled || n.RetryBase != 2*time.Second {
		t.Fatalf("notifier: %+v", n)
	}
	if st := mapStorageConfig(cfg); st.Driver != "file" || st.Path != filepath.Join("/tmp/woonbot-test", "store") {
		t.Fatalf("storage: %+v", st)
	}
	lc := mapLogConfig(cfg, "debug")
	if lc.Level != "debug" || !lc.Telegram.Enabled || lc.Telegram.ChatID != -100 {
		t.Fatalf("log: %+v", lc)
	}

	noChat := cfg.WithDefaults()
	noChat.Telegram = &config.TelegramConfig{Token: "t"}
	if mapNotifierConfig(noChat).Enabled || mapLogConfig(noChat, "").Telegram.Enabled {
		t.Fatalf("telegram outputs enabled without a chat id")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewAndCommands(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	path := writeConfig(t, `{
		"app_dir": "`+filepath.ToSlash(dir)+`",
		"credentials": {"backend": "keyring"},
		"logging": {"level": "error"}
	}`)

	a, err := New(Options{ConfigPath: path, Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.close()
	if a.tg != nil || a.notif.Enabled() {
		t.Fatalf("telegram should be off without a token")
	}
	if a.store == nil {
		t.Fatalf("default file storage not opened")
	}

	ctx := context.Background()
	a.rememberSelection(ctx, bot.ModeScheduled, bot.Selection{Count: 3})
	if p := a.Prefs(ctx); p.Mode != bot.ModeScheduled || p.Count != 3 {
		t.Fatalf("prefs: %+v", p)
	}
	if sel := a.selection(ctx, RunFlags{}); sel.Count != 3 {
		t.Fatalf("selection from prefs: %+v", sel)
	}
	a.rememberSelection(ctx, bot.ModeNow, bot.Selection{Count: 1, IDs: []string{"123"}, Force: true})
	if p := a.Prefs(ctx); len(p.ListingIDs) != 0 || p.Count != 1 {
		t.Fatalf("forced ids must not be saved: %+v", p)
	}

	if got, _ := a.historyText(ctx, 5); got != "No applications recorded." {
		t.Fatalf("history: %q", got)
	}
	_ = a.store.RecordApplication(ctx, storage.Application{ListingID: "77", Address: "Blaak 2", At: time.Now(), OK: true})
	if got, _ := a.historyText(ctx, 5); !strings.Contains(got, "77") || !strings.Contains(got, "ok") {
		t.Fatalf("history: %q", got)
	}
	if got := a.listingsText(); got != "No listings seen yet." {
		t.Fatalf("listings: %q", got)
	}

	sched, _ := scheduler.New("Europe/Amsterdam", logx.Nop())
	if got := a.statusText(sched); !strings.Contains(got, "Idle") || !strings.Contains(got, "Next apply") {
		t.Fatalf("status: %q", got)
	}
}

func TestOpenCredentialsIgnoresEnv(t *testing.T) {
	keyring.MockInit()
	t.Setenv(config.EnvUsername, "env-user")
	t.Setenv(config.EnvPassword, "env-pass")
	path := writeConfig(t, `{"credentials": {"backend": "keyring"}, "logging": {"level": "error"}}`)

	st, err := OpenCredentials(path)
	if err != nil {
		t.Fatalf("OpenCredentials: %v", err)
	}
	ctx := context.Background()
	if err := st.Save(ctx, credentials.Credentials{Username: "jan", Password: "geheim"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	c, err := st.Get(ctx)
	if err != nil || c.Username != "jan" {
		t.Fatalf("Get = %+v, %v", c, err)
	}
}

func TestBotEventsBecomeNotifications(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop(), bus: eventbus.New()}
	// Without a running notifier the forwarder must be a no-op.
	a.notif = nil
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("onBotEvent panicked: %v", r)
		}
	}()
	if got := listingLabel(woonnet.Listing{ID: "1", Address: "Meent 3", PriceText: "€ 700,00"}); got != "1 (Meent 3, € 700,00)" {
		t.Fatalf("label: %q", got)
	}
	a.onBotEvent(context.Background(), eventbus.Event{Type: "bot.other", Data: 42})
}
