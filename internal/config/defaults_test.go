package config

import (
	"testing"
)

func TestParseClock(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in     string
		hh, mm int
		ok     bool
	}{
		{"20:00", 20, 0, true},
		{"8:05", 8, 5, true},
		{" 18:30 ", 18, 30, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"1200", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		hh, mm, err := ParseClock(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("%q: err=%v ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && (hh != tc.hh || mm != tc.mm) {
			t.Fatalf("%q: got %d:%d", tc.in, hh, mm)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()
	cfg := (&Config{AppDir: "/tmp/wb", Storage: &StorageConfig{Driver: "sqlite"}}).WithDefaults()
	if cfg.Site.BaseURL != DefaultBaseURL {
		t.Fatalf("base url %q", cfg.Site.BaseURL)
	}
	if cfg.Schedule.ApplyAt != "20:00" || cfg.Schedule.WindowStart != "18:00" {
		t.Fatalf("schedule defaults %+v", cfg.Schedule)
	}
	if cfg.Bot.Count != 1 {
		t.Fatalf("count %d", cfg.Bot.Count)
	}
	if cfg.Storage.Path != "/tmp/wb/woonbot.db" {
		t.Fatalf("storage path %q", cfg.Storage.Path)
	}
	if cfg.Site.HTMLFallback == nil || !*cfg.Site.HTMLFallback {
		t.Fatalf("html fallback should default to true")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := map[string]*Config{
		"bad url":      {Site: SiteConfig{BaseURL: "ftp://x"}},
		"bad tz":       {Schedule: ScheduleConfig{Timezone: "Mars/Olympus"}},
		"bad duration": {Schedule: ScheduleConfig{PollInterval: "soon"}},
		"neg count":    {Bot: BotConfig{Count: -1}},
		"empty id":     {Bot: BotConfig{ListingIDs: []string{"1", " "}}},
		"backend":      {Credentials: CredentialsConfig{Backend: "vault"}},
		"driver":       {Storage: &StorageConfig{Driver: "postgres"}},
	}
	for name, cfg := range cases {
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := Validate(&Config{}); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
}

func TestApplyEnvTelegramToken(t *testing.T) {
	t.Setenv(EnvTelegramToken, "tok")
	cfg := &Config{}
	ApplyEnv(cfg)
	if cfg.Telegram == nil || cfg.Telegram.Token != "tok" {
		t.Fatalf("token not applied: %+v", cfg.Telegram)
	}
}
