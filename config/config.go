// Package config loads process settings for an agora server from the
// environment. An optional .env file in the working directory is loaded
// first; variables already set in the environment take precedence.
//
//	cfg := config.MustLoad()
//	server := agora.MustNewServer(agora.Config{
//	    Port:       cfg.Port,
//	    PrefixPath: cfg.PrefixPath,
//	    Origins:    cfg.Origins,
//	    Logger:     cfg.NewLogger(os.Stderr),
//	    Routes:     routes,
//	})
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the environment driven settings.
type Config struct {
	Port       int      `env:"AGORA_PORT" envDefault:"3030"`
	PrefixPath string   `env:"AGORA_PREFIX_PATH" envDefault:"/"`
	Origins    []string `env:"AGORA_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel   string   `env:"AGORA_LOG_LEVEL" envDefault:"info"`
	LogFormat  string   `env:"AGORA_LOG_FORMAT" envDefault:"text"`
}

// Load reads the .env file at the given paths (".env" when none are given)
// and parses the environment into a Config. Missing .env files are ignored.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics on failure. Useful at startup.
func MustLoad(envFiles ...string) Config {
	cfg, err := Load(envFiles...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Level returns the configured slog level.
func (c Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// NewLogger builds a slog logger writing to w with the configured level and
// format ("text" or "json").
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
