package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultBaseURL       = "https://www.woonnetrijnmond.nl"
	DefaultTimezone      = "Europe/Amsterdam"
	DefaultWindowStart   = "18:00"
	DefaultApplyAt       = "20:00"
	DefaultDaemonTrigger = "45 17 * * *"
	DefaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	appName = "WoonnetBot"
)

// DefaultAppDir mirrors where the desktop build kept its state:
// <user config dir>/WoonnetBot, or ~/.WoonnetBot when there is none.
func DefaultAppDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, appName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "."+appName)
	}
	return "." + appName
}

// WithDefaults returns a copy of cfg with omitted values filled in. The
// result is never written back to disk.
func (c *Config) WithDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if strings.TrimSpace(out.AppDir) == "" {
		out.AppDir = DefaultAppDir()
	}

	s := &out.Site
	s.BaseURL = strings.TrimRight(orDefault(s.BaseURL, DefaultBaseURL), "/")
	s.UserAgent = orDefault(s.UserAgent, DefaultUserAgent)
	s.RequestTimeout = orDefault(s.RequestTimeout, "15s")
	if s.RequestsPerSec <= 0 {
		s.RequestsPerSec = 2
	}
	if s.PageSize <= 0 {
		s.PageSize = 100
	}
	if s.HTMLFallback == nil {
		t := true
		s.HTMLFallback = &t
	}

	if out.Bot.Count <= 0 {
		out.Bot.Count = 1
	}

	sc := &out.Schedule
	sc.Timezone = orDefault(sc.Timezone, DefaultTimezone)
	sc.WindowStart = orDefault(sc.WindowStart, DefaultWindowStart)
	sc.ApplyAt = orDefault(sc.ApplyAt, DefaultApplyAt)
	sc.PollInterval = orDefault(sc.PollInterval, "1m")
	sc.IdleCheck = orDefault(sc.IdleCheck, "5m")
	sc.PrepareLead = orDefault(sc.PrepareLead, "2m")
	sc.SpinLead = orDefault(sc.SpinLead, "250ms")
	sc.SubmitRetryFor = orDefault(sc.SubmitRetryFor, "30s")
	sc.DaemonTrigger = orDefault(sc.DaemonTrigger, DefaultDaemonTrigger)

	b := &out.Browser
	b.ProfileDir = orDefault(b.ProfileDir, filepath.Join(out.AppDir, "chrome_profile"))
	b.ElementTimeout = orDefault(b.ElementTimeout, "10s")
	b.NavigationTimeout = orDefault(b.NavigationTimeout, "30s")

	cr := &out.Credentials
	cr.Backend = strings.ToLower(orDefault(cr.Backend, "auto"))
	cr.Path = orDefault(cr.Path, filepath.Join(out.AppDir, "credentials.age"))

	lg := &out.Logging
	lg.Level = orDefault(lg.Level, "info")
	if lg.File.Enabled {
		lg.File.Path = orDefault(lg.File.Path, filepath.Join(out.AppDir, "woonbot.log"))
	}

	out.Report.Timeout = orDefault(out.Report.Timeout, "15s")

	if out.Storage != nil {
		st := *out.Storage
		d := strings.ToLower(strings.TrimSpace(st.Driver))
		switch d {
		case "sqlite", "sqlite3":
			st.Path = orDefault(st.Path, filepath.Join(out.AppDir, "woonbot.db"))
		case "file":
			st.Path = orDefault(st.Path, filepath.Join(out.AppDir, "store"))
		}
		out.Storage = &st
	}
	return &out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseClock parses "HH:MM" (24h) into hour and minute.
func ParseClock(raw string) (int, int, error) {
	m := reClock.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid clock %q (want HH:MM)", raw)
	}
	hh := int(m[1][0] - '0')
	if len(m[1]) == 2 {
		hh = hh*10 + int(m[1][1]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if hh > 23 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid clock %q (out of range)", raw)
	}
	return hh, mm, nil
}

// Validate checks a defaulted config. It is also the hot-reload gate: a
// config that fails here is never committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	c := cfg.WithDefaults()

	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		return fmt.Errorf("site.base_url: must be an http(s) URL, got %q", c.Site.BaseURL)
	}
	if _, err := ParseDurationField("site.request_timeout", c.Site.RequestTimeout); err != nil {
		return err
	}
	if cfg.Bot.Count < 0 {
		return fmt.Errorf("bot.count must be >= 0")
	}
	for i, id := range c.Bot.ListingIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("bot.listing_ids[%d] is empty", i)
		}
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: invalid %q: %w", c.Schedule.Timezone, err)
	}
	sh, sm, err := ParseClock(c.Schedule.WindowStart)
	if err != nil {
		return fmt.Errorf("schedule.window_start: %w", err)
	}
	ah, am, err := ParseClock(c.Schedule.ApplyAt)
	if err != nil {
		return fmt.Errorf("schedule.apply_at: %w", err)
	}
	if sh*60+sm > ah*60+am {
		return fmt.Errorf("schedule.window_start (%s) must not be after schedule.apply_at (%s)", c.Schedule.WindowStart, c.Schedule.ApplyAt)
	}
	durations := map[string]string{
		"schedule.poll_interval":     c.Schedule.PollInterval,
		"schedule.idle_check":        c.Schedule.IdleCheck,
		"schedule.prepare_lead":      c.Schedule.PrepareLead,
		"schedule.spin_lead":         c.Schedule.SpinLead,
		"schedule.submit_retry_for":  c.Schedule.SubmitRetryFor,
		"browser.element_timeout":    c.Browser.ElementTimeout,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"report.timeout":             c.Report.Timeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	switch c.Credentials.Backend {
	case "auto", "keyring", "file":
	default:
		return fmt.Errorf("credentials.backend: unknown %q (want auto, keyring or file)", c.Credentials.Backend)
	}

	if t := c.Telegram; t != nil {
		if _, err := ParseDurationField("telegram.poll_timeout", t.PollTimeout); err != nil {
			return err
		}
	}
	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RetryMax < 0 {
			return fmt.Errorf("notifier: workers, queue_size and retry_max must be >= 0")
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				return err
			}
		}
	}
	if st := c.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown %q", st.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
