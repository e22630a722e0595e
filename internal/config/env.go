package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides applied after the file is decoded.
const (
	EnvTelegramToken = "VAULTWATCH_TELEGRAM_TOKEN"
	EnvDebugToken    = "VAULTWATCH_DEBUG_TOKEN"
)

// LoadEnv reads .env style files into the process environment. Missing files
// are ignored; variables already set are never overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDebugToken)); v != "" {
		cfg.Debug.Token = v
	}
}
