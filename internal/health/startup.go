// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/ragbox/internal/config"
	"github.com/ManuGH/ragbox/internal/log"
)

// PerformStartupChecks validates the environment before the server starts.
func PerformStartupChecks(cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkWritableDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(logger, filepath.Dir(cfg.Database.Path)); err != nil {
		return fmt.Errorf("database directory check failed: %w", err)
	}
	checkPromptDir(logger, cfg.Prompts.Dir)

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}

// checkPromptDir only warns; missing templates fall back to a generic prompt.
func checkPromptDir(logger zerolog.Logger, path string) {
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		logger.Warn().
			Str(log.FieldPath, path).
			Msg("prompt directory missing, generic prompts will be used (run 'ragbox init-prompts')")
	}
}
