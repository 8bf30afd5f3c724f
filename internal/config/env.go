package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvUsername      = "WOONBOT_USERNAME"
	EnvPassword      = "WOONBOT_PASSWORD"
	EnvTelegramToken = "WOONBOT_TELEGRAM_TOKEN"
	EnvPassphrase    = "WOONBOT_CREDENTIALS_PASSPHRASE"
)

// LoadEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// EnvFiles lists the .env candidates for a config path: one next to the
// config file and one in the working directory.
func EnvFiles(configPath string) []string {
	out := []string{".env"}
	if configPath != "" {
		side := filepath.Join(filepath.Dir(configPath), ".env")
		if abs, err := filepath.Abs(side); err == nil {
			if cwd, err := filepath.Abs(".env"); err != nil || cwd != abs {
				out = append([]string{side}, out...)
			}
		}
	}
	return out
}

// ApplyEnv overlays secrets from the environment onto cfg.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if tok := strings.TrimSpace(os.Getenv(EnvTelegramToken)); tok != "" {
		if cfg.Telegram == nil {
			cfg.Telegram = &TelegramConfig{}
		}
		cfg.Telegram.Token = tok
	}
}
