package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "1m"). Clock values are
// "HH:MM" in schedule.timezone.
type Config struct {
	// AppDir holds the browser profile, log file, prefs and database when
	// their paths are not set explicitly. Defaults to the user config dir.
	AppDir string `json:"app_dir,omitempty"`

	Site        SiteConfig        `json:"site"`
	Bot         BotConfig         `json:"bot"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Browser     BrowserConfig     `json:"browser"`
	Credentials CredentialsConfig `json:"credentials"`
	Logging     LoggingConfig     `json:"logging"`
	Report      ReportConfig      `json:"report"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

// SiteConfig points the API client at WoonnetRijnmond.
type SiteConfig struct {
	BaseURL        string `json:"base_url,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	// RequestsPerSec throttles API polling (token bucket, burst = rate).
	RequestsPerSec int `json:"requests_per_sec,omitempty"`
	PageSize       int `json:"page_size,omitempty"`
	// HTMLFallback parses the discovery page when the API call fails.
	HTMLFallback *bool `json:"html_fallback,omitempty"`
}

// BotConfig is the default target selection for a run. CLI flags and saved
// preferences override it.
type BotConfig struct {
	// Count is how many of the cheapest listings to apply to.
	Count int `json:"count,omitempty"`
	// Max applies to every discovered listing.
	Max bool `json:"max,omitempty"`
	// ListingIDs are explicit picks, applied in this order.
	ListingIDs []string `json:"listing_ids,omitempty"`
	// Reapply allows targets that storage says were applied to already.
	Reapply bool `json:"reapply,omitempty"`
}

type ScheduleConfig struct {
	Timezone    string `json:"timezone,omitempty"`     // default Europe/Amsterdam
	WindowStart string `json:"window_start,omitempty"` // default 18:00
	ApplyAt     string `json:"apply_at,omitempty"`     // default 20:00

	PollInterval string `json:"poll_interval,omitempty"` // default 1m
	IdleCheck    string `json:"idle_check,omitempty"`    // default 5m
	PrepareLead  string `json:"prepare_lead,omitempty"`  // default 2m
	// SpinLead is how long before the apply moment the coarse timer hands
	// over to fine-grained waiting.
	SpinLead string `json:"spin_lead,omitempty"` // default 250ms
	// SubmitRetryFor keeps reloading a "can't apply yet" page after the
	// apply moment for at most this long.
	SubmitRetryFor string `json:"submit_retry_for,omitempty"` // default 30s

	// DaemonTrigger is the cron spec that starts the daily scheduled run in
	// daemon mode.
	DaemonTrigger string `json:"daemon_trigger,omitempty"` // default "45 17 * * *"
}

type BrowserConfig struct {
	Headless   bool   `json:"headless"`
	Bin        string `json:"bin,omitempty"`
	ControlURL string `json:"control_url,omitempty"`
	ProfileDir string `json:"profile_dir,omitempty"`
	// ElementTimeout bounds waits for form fields and buttons.
	ElementTimeout    string `json:"element_timeout,omitempty"`    // default 10s
	NavigationTimeout string `json:"navigation_timeout,omitempty"` // default 30s
}

type CredentialsConfig struct {
	// Backend: "auto" (default), "keyring" or "file".
	Backend string `json:"backend,omitempty"`
	// Path of the age-encrypted file used by the file backend.
	Path string `json:"path,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ReportConfig controls crash reports sent to the webhook proxy.
type ReportConfig struct {
	ProxyURL string `json:"proxy_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // default 15s
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	ChatID       int64   `json:"chat_id"`
	ThreadID     int     `json:"thread_id,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./woonbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
