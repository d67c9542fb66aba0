// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ragbox/internal/prompt"
)

func newInitPromptsCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-prompts DIR",
		Short: "Write the built-in prompt templates into DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := prompt.WriteDefaults(args[0], force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(written) == 0 {
				_, _ = fmt.Fprintf(out, "templates already present in %s (use --force to overwrite)\n", args[0])
				return nil
			}
			for _, path := range written {
				_, _ = fmt.Fprintf(out, "wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing templates")
	return cmd
}
