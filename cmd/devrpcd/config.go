package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the resolved devrpcd runtime settings.
type Config struct {
	Addr     string
	Key      string
	LogLevel string
}

func defaultConfig() Config {
	return Config{
		Addr:     "127.0.0.1:9190",
		Key:      "devrpcd",
		LogLevel: "info",
	}
}

// devrpcd config.toml key mapping.
type fileConfig struct {
	Addr     string `toml:"addr"`
	Key      string `toml:"key"`
	LogLevel string `toml:"log_level"`
}

// loadConfig reads a TOML config with a defaults overlay: only keys present
// in the file override the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load devrpcd config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("key") {
		cfg.Key = strings.TrimSpace(raw.Key)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	if cfg.Addr == "" {
		return Config{}, fmt.Errorf("load devrpcd config: addr must not be empty")
	}
	if cfg.Key == "" {
		return Config{}, fmt.Errorf("load devrpcd config: key must not be empty")
	}
	return cfg, nil
}
