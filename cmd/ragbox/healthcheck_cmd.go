// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newHealthcheckCmd probes a running server, for container HEALTHCHECKs.
func newHealthcheckCmd() *cobra.Command {
	var (
		mode    string
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe /readyz or /healthz of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/healthz"
			switch mode {
			case "ready":
				path = "/readyz"
			case "live":
			default:
				return fmt.Errorf("invalid mode %q: use ready or live", mode)
			}

			base := strings.TrimRight(addr, "/")
			if !strings.Contains(base, "://") {
				base = "http://" + base
			}
			client := http.Client{Timeout: timeout}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+path, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("healthcheck failed (network): %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Healthcheck successful (%s)\n", mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "ready", "healthcheck mode: ready or live")
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "check timeout")
	return cmd
}
