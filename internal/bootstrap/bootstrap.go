// Package bootstrap performs the startup shared by every tinyclaw
// process: logging, env loading, directory layout, and settings.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// Setup is the resolved process environment.
type Setup struct {
	Paths    config.Paths
	Settings *config.Settings
}

// Init configures slog, loads .env, ensures the directory tree and reads
// settings. configHome overrides the env/default resolution when set.
func Init(configHome string, verbose bool) (*Setup, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	var p config.Paths
	if configHome != "" {
		p = config.PathsAt(configHome)
	} else {
		p = config.ResolvePaths()
	}
	config.LoadDotEnv(p)

	if err := p.EnsureTree(); err != nil {
		return nil, fmt.Errorf("create config tree: %w", err)
	}

	settings, err := config.LoadSettings(p)
	if err != nil {
		return nil, err
	}
	return &Setup{Paths: p, Settings: settings}, nil
}
