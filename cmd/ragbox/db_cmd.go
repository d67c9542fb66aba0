// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ragbox/internal/persistence/sqlite"
)

// errCorrupt is returned when the integrity check reports problems.
var errCorrupt = errors.New("database integrity check failed")

func newDBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(newDBVerifyCmd(opts))
	return cmd
}

func newDBVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		path string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check database integrity",
		Long: `Run SQLite's quick_check (default) or integrity_check against the
database. Without --path the configured database is verified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode = strings.ToLower(strings.TrimSpace(mode))
			if mode != sqlite.VerifyQuick && mode != sqlite.VerifyFull {
				return fmt.Errorf("invalid mode %q: use %q or %q", mode, sqlite.VerifyQuick, sqlite.VerifyFull)
			}
			if path == "" {
				cfg, _, err := opts.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Database.Path
			}

			errOut := cmd.ErrOrStderr()
			_, _ = fmt.Fprintf(errOut, "🔍 Verifying integrity of %s (mode: %s)...\n", path, mode)
			issues, err := sqlite.VerifyIntegrity(cmd.Context(), path, mode)
			if err != nil {
				return fmt.Errorf("verification interrupted: %w", err)
			}
			if len(issues) > 0 {
				_, _ = fmt.Fprintln(errOut, "🚨 CORRUPTION DETECTED!")
				for _, issue := range issues {
					_, _ = fmt.Fprintf(errOut, "  - %s\n", issue)
				}
				return errCorrupt
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "✅ Integrity Verified: ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the SQLite database file")
	cmd.Flags().StringVar(&mode, "mode", sqlite.VerifyQuick, "verification mode: quick or full")
	return cmd
}
