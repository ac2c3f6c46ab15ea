// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/config"
)

func newInitCmd() *cobra.Command {
	var home string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Create the switchboard home directory with its sessions and skills
subdirectories and a default switchboard.yaml. An existing file is left
untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, created, err := config.EnsureDefaults(config.ExpandHome(home))
			if err != nil {
				return NewConfigError(err, path)
			}
			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "Created %s\n", path)
			} else {
				fmt.Fprintf(out, "Configuration already exists at %s\n", path)
			}
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Set the API key environment variable for your provider")
			fmt.Fprintln(out, "  2. Add skills under the skills/ directory")
			fmt.Fprintln(out, "  3. Run 'switchboard serve'")
			return nil
		},
	}
	cmd.Flags().StringVar(&home, "home", config.DefaultHome(), "switchboard home directory")
	return cmd
}
