package config

import (
	"reflect"
	"strings"

	logx "woonbot/pkg/logx"
)

// SummarizeChange returns the top-level sections that differ between two
// configs and log-safe attrs describing the new values. Secrets (telegram
// token, report proxy URL) are reported only as "set" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := oldCfg.WithDefaults(), newCfg.WithDefaults()

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(o.Site, n.Site) {
		changed = append(changed, "site")
		attrs = append(attrs,
			logx.String("site.base_url", n.Site.BaseURL),
			logx.Int("site.requests_per_sec", n.Site.RequestsPerSec),
		)
	}
	if !reflect.DeepEqual(o.Bot, n.Bot) {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.Int("bot.count", n.Bot.Count),
			logx.Bool("bot.max", n.Bot.Max),
			logx.Int("bot.listing_ids", len(n.Bot.ListingIDs)),
		)
	}
	if o.Schedule != n.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.window_start", n.Schedule.WindowStart),
			logx.String("schedule.apply_at", n.Schedule.ApplyAt),
			logx.String("schedule.daemon_trigger", n.Schedule.DaemonTrigger),
		)
	}
	if o.Browser != n.Browser {
		changed = append(changed, "browser")
		attrs = append(attrs, logx.Bool("browser.headless", n.Browser.Headless))
	}
	if o.Credentials != n.Credentials {
		changed = append(changed, "credentials")
		attrs = append(attrs, logx.String("credentials.backend", n.Credentials.Backend))
	}
	if o.Logging != n.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
		)
	}
	if o.Report != n.Report {
		changed = append(changed, "report")
		attrs = append(attrs, logx.Bool("report.proxy_set", strings.TrimSpace(n.Report.ProxyURL) != ""))
	}
	if !reflect.DeepEqual(o.Telegram, n.Telegram) {
		changed = append(changed, "telegram")
		if n.Telegram != nil {
			attrs = append(attrs,
				logx.Bool("telegram.token_set", strings.TrimSpace(n.Telegram.Token) != ""),
				logx.Int("telegram.owner_count", len(n.Telegram.OwnerUserIDs)),
			)
		}
	}
	if !reflect.DeepEqual(o.Notifier, n.Notifier) {
		changed = append(changed, "notifier")
	}
	if !reflect.DeepEqual(o.Storage, n.Storage) {
		changed = append(changed, "storage")
		if n.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", n.Storage.Driver))
		}
	}
	return changed, attrs
}
