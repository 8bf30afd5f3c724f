package app

import (
	"woonbot/internal/config"
	"woonbot/internal/credentials"
	logx "woonbot/pkg/logx"
)

// OpenCredentials opens the configured credential store without starting
// anything else.
func OpenCredentials(cfgPath string) (credentials.Store, error) {
	if err := config.LoadEnv(config.EnvFiles(cfgPath)...); err != nil {
		return nil, err
	}
	raw, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	cfg := raw.WithDefaults()
	opts := mapCredentialOptions(cfg, logx.NewConsole(cfg.Logging.Level))
	// Managing the stored entry must not be shadowed by the env override.
	opts.EnvUsername, opts.EnvPassword = "", ""
	return credentials.Open(opts)
}
