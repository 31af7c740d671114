// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/feeledger, cmd/feeledger-worker and cmd/feeledgerctl.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"feeledger/internal/config"
	"feeledger/internal/log"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the default logger.
func SetupLogger(cfg *config.Config) *log.Logger {
	level, err := cfg.SlogLevel()
	logger := log.New(log.Config{
		Level:     level,
		Component: log.ComponentApp,
		Handler:   log.NewHandler(os.Stdout, cfg.LogFormat, level),
	})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info logging", log.FieldError, err.Error())
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// A missing file is not an error; a malformed one is reported.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// LoadConfig loads .env and the environment. It exits the process when
// .env exists but cannot be parsed.
func LoadConfig() *config.Config {
	if err := LoadEnvFile(); err != nil {
		log.Default().Error("Failed to load .env file", log.FieldError, err.Error())
		os.Exit(1)
	}
	return config.Load()
}

// MustValidate exits the process when validate reports a problem.
func MustValidate(logger *log.Logger, validate func() error) {
	if err := validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
