package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hexlantern/devrpc"
)

func initLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "devrpcd").Logger()
}

func main() {
	cfgPath := flag.String("config", "", "path to devrpcd config.toml (optional)")
	addr := flag.String("addr", "", "listen address, overrides config")
	key := flag.String("key", "", "server identity key, overrides config")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *key != "" {
		cfg.Key = *key
	}

	logger := initLogger(cfg.LogLevel)

	reg := devrpc.NewRegistry()
	if err := registerBuiltins(reg, logger); err != nil {
		logger.Error().Err(err).Msg("builtin registration failed")
		os.Exit(1)
	}

	lis, err := devrpc.Listen(cfg.Addr, cfg.Key, reg, &devrpc.Options{Logger: &logger})
	if err != nil {
		logger.Error().Err(err).Msg("listen failed")
		os.Exit(1)
	}
	logger.Info().
		Str("addr", lis.Addr().String()).
		Str("key", cfg.Key).
		Strs("procs", reg.Names()).
		Msg("devrpcd listening")

	if err := lis.Serve(); err != nil {
		logger.Error().Err(err).Msg("serve failed")
		os.Exit(1)
	}
}
