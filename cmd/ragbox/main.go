// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command ragbox parses documents into typed chunks, summarizes them with a
// local vision model and serves the results over HTTP.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ragbox/internal/config"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ragbox",
		Short:         "Document ingestion for retrieval augmented generation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML); defaults to $RAGBOX_CONFIG")

	root.AddCommand(
		newServeCmd(opts),
		newParseCmd(opts),
		newSummarizeCmd(opts),
		newInitPromptsCmd(),
		newDBCmd(opts),
		newHealthcheckCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the config path, loads the configuration and
// reconfigures the global logger from it.
func (o *rootOptions) loadConfig() (config.Config, *config.Loader, error) {
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "ragbox",
		Version: version.Version,
		Output:  os.Stderr,
	})

	path := strings.TrimSpace(o.configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}

	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	xglog.Reconfigure(xglog.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
		Output:  os.Stderr,
	})

	logger := xglog.WithComponent("cli")
	if path != "" {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file").
			Str(xglog.FieldPath, path).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}
	return cfg, loader, nil
}
