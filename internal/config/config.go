// Package config loads the tailview configuration from a TOML file,
// applying defaults for every missing field.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config carries everything the engine and transport consume at
// construction time.
type Config struct {
	// Monitor settings
	Path     string        // log file to tail
	Capacity int           // cache window size in records; 0 is unbounded
	PollMin  time.Duration // fastest poll interval
	PollMax  time.Duration // backoff ceiling

	// Server settings
	Listen       string // HTTP listen address
	WebDir       string // static viewer assets; empty disables
	PasswordHash string // bcrypt hash; empty disables auth
}

const (
	defaultPath     = "application.log"
	defaultCapacity = 10000
	defaultPollMin  = 100 * time.Millisecond
	defaultPollMax  = 10 * time.Second
	defaultListen   = ":5000"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Path:     defaultPath,
		Capacity: defaultCapacity,
		PollMin:  defaultPollMin,
		PollMax:  defaultPollMax,
		Listen:   defaultListen,
	}
}

// Load parses the config file at path, falling back to defaults when
// the file is missing. An empty path means "defaults only".
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Monitor struct {
			Path     string `toml:"path"`
			Capacity *int   `toml:"capacity"`
			PollMin  string `toml:"poll_min"`
			PollMax  string `toml:"poll_max"`
		} `toml:"monitor"`
		Server struct {
			Listen       string `toml:"listen"`
			WebDir       string `toml:"web_dir"`
			PasswordHash string `toml:"password_hash"`
		} `toml:"server"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if raw.Monitor.Path != "" {
		cfg.Path = raw.Monitor.Path
	}
	if raw.Monitor.Capacity != nil {
		if *raw.Monitor.Capacity < 0 {
			return Config{}, fmt.Errorf("monitor.capacity must be >= 0, got %d", *raw.Monitor.Capacity)
		}
		cfg.Capacity = *raw.Monitor.Capacity
	}
	if raw.Monitor.PollMin != "" {
		d, err := time.ParseDuration(raw.Monitor.PollMin)
		if err != nil {
			return Config{}, fmt.Errorf("parse monitor.poll_min: %w", err)
		}
		cfg.PollMin = d
	}
	if raw.Monitor.PollMax != "" {
		d, err := time.ParseDuration(raw.Monitor.PollMax)
		if err != nil {
			return Config{}, fmt.Errorf("parse monitor.poll_max: %w", err)
		}
		cfg.PollMax = d
	}
	if cfg.PollMax < cfg.PollMin {
		return Config{}, fmt.Errorf("monitor.poll_max %v is below poll_min %v", cfg.PollMax, cfg.PollMin)
	}

	if raw.Server.Listen != "" {
		cfg.Listen = raw.Server.Listen
	}
	cfg.WebDir = raw.Server.WebDir
	cfg.PasswordHash = raw.Server.PasswordHash

	return cfg, nil
}
