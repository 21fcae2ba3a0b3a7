// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"fmt"
	"os"

	"github.com/ManuGH/nlbridge/internal/config"
	"github.com/ManuGH/nlbridge/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// polling: the data directory and every enabled sink directory must be
// writable.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := CheckWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	logger.Info().Str(log.FieldPath, cfg.DataDir).Msg("data directory is writable")

	if cfg.Sinks.Dir != "" {
		if err := os.MkdirAll(cfg.Sinks.Dir, 0o750); err != nil {
			return fmt.Errorf("create sink dir: %w", err)
		}
		if err := CheckWritableDir(cfg.Sinks.Dir); err != nil {
			return fmt.Errorf("sink directory check failed: %w", err)
		}
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}
