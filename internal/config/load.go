package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// LoadSettings reads settings.json from the config home. The file is
// hand-edited, so json5 is used: comments and trailing commas are fine.
// A missing file yields defaults (empty agent registry).
func LoadSettings(p Paths) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(p.SettingsFile())
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := json5.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.applyDefaults()
	return s, nil
}

// LoadCredentials reads credentials.json and overlays env vars.
// Env always wins so tokens never have to touch disk.
func LoadCredentials(p Paths) (*Credentials, error) {
	c := &Credentials{}

	data, err := os.ReadFile(p.CredentialsFile())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
	}

	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Discord.BotToken = v
	}
	return c, nil
}

// LoadDotEnv loads a .env file beside the config home into the process
// environment, if one exists. Existing env vars are never overwritten.
func LoadDotEnv(p Paths) {
	path := filepath.Join(p.ConfigHome, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}
