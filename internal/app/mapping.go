package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"woonbot/internal/bot"
	"woonbot/internal/browser"
	"woonbot/internal/config"
	"woonbot/internal/credentials"
	"woonbot/internal/notifier"
	"woonbot/internal/storage"
	"woonbot/internal/timing"
	"woonbot/internal/woonnet"
	logx "woonbot/pkg/logx"
)

// The map* helpers turn a validated, defaulted config into component
// options.

func mapLogConfig(cfg *config.Config, levelOverride string) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if strings.TrimSpace(levelOverride) != "" {
		lc.Level = levelOverride
	}
	if t := cfg.Telegram; t != nil && t.Token != "" && t.ChatID != 0 {
		lc.Telegram.Enabled = cfg.Logging.Telegram.Enabled
		lc.Telegram.ChatID = t.ChatID
		lc.Telegram.ThreadID = t.ThreadID
	}
	return lc
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	if n == nil || cfg.Telegram == nil || cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return notifier.Config{}
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       config.MustDuration(n.RetryBase, 0),
		RetryMaxDelay:   config.MustDuration(n.RetryMaxDelay, 0),
		DedupWindow:     config.MustDuration(n.DedupWindow, 0),
		DedupMaxEntries: n.DedupMaxEntries,
	}
}

// mapStorageConfig defaults to the file driver under the app dir so run
// history and preferences survive restarts. "none" turns it off.
func mapStorageConfig(cfg *config.Config) storage.Config {
	st := cfg.Storage
	if st == nil {
		return storage.Config{Driver: "file", Path: filepath.Join(cfg.AppDir, "store")}
	}
	return storage.Config{
		Driver:      st.Driver,
		Path:        st.Path,
		BusyTimeout: config.MustDuration(st.BusyTimeout, 5*time.Second),
	}
}

func mapSiteOptions(cfg *config.Config, log logx.Logger) woonnet.Options {
	return woonnet.Options{
		BaseURL:        cfg.Site.BaseURL,
		UserAgent:      cfg.Site.UserAgent,
		Timeout:        config.MustDuration(cfg.Site.RequestTimeout, 15*time.Second),
		RequestsPerSec: cfg.Site.RequestsPerSec,
		PageSize:       cfg.Site.PageSize,
		Log:            log,
	}
}

func mapBrowserOptions(cfg *config.Config, log logx.Logger) browser.Options {
	return browser.Options{
		BaseURL:           cfg.Site.BaseURL,
		Headless:          cfg.Browser.Headless,
		Bin:               cfg.Browser.Bin,
		ControlURL:        cfg.Browser.ControlURL,
		ProfileDir:        cfg.Browser.ProfileDir,
		ElementTimeout:    config.MustDuration(cfg.Browser.ElementTimeout, 10*time.Second),
		NavigationTimeout: config.MustDuration(cfg.Browser.NavigationTimeout, 30*time.Second),
		Log:               log,
	}
}

func mapCredentialOptions(cfg *config.Config, log logx.Logger) credentials.Options {
	return credentials.Options{
		Backend:     cfg.Credentials.Backend,
		Path:        cfg.Credentials.Path,
		Passphrase:  os.Getenv(config.EnvPassphrase),
		EnvUsername: config.EnvUsername,
		EnvPassword: config.EnvPassword,
		Log:         log,
	}
}

func mapWindow(cfg *config.Config) (timing.Window, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return timing.Window{}, err
	}
	sh, sm, err := config.ParseClock(cfg.Schedule.WindowStart)
	if err != nil {
		return timing.Window{}, err
	}
	ah, am, err := config.ParseClock(cfg.Schedule.ApplyAt)
	if err != nil {
		return timing.Window{}, err
	}
	return timing.Window{
		Start:   timing.TimeOfDay{Hour: sh, Minute: sm},
		ApplyAt: timing.TimeOfDay{Hour: ah, Minute: am},
		Loc:     loc,
	}, nil
}

func mapTiming(cfg *config.Config) bot.Timing {
	s := cfg.Schedule
	return bot.Timing{
		PollInterval:   config.MustDuration(s.PollInterval, time.Minute),
		IdleCheck:      config.MustDuration(s.IdleCheck, 5*time.Minute),
		PrepareLead:    config.MustDuration(s.PrepareLead, 2*time.Minute),
		SpinLead:       config.MustDuration(s.SpinLead, 250*time.Millisecond),
		SubmitRetryFor: config.MustDuration(s.SubmitRetryFor, 30*time.Second),
	}
}
