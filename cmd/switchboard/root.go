// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	profile    string
	sets       []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard routes chat messages to AI agents",
		Long: `Switchboard is a message gateway: it receives messages from the terminal and
a web chat, picks an agent through tiered bindings, keeps per-session
transcripts and runs one turn at a time per session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.switchboard/switchboard.yaml)")
	flags.StringVar(&opts.profile, "profile", "", "config profile overlay, e.g. dev")
	flags.StringArrayVar(&opts.sets, "set", nil, "override a config key, key=value (repeatable)")

	root.AddCommand(
		newServeCmd(opts),
		newInitCmd(),
		newValidateCmd(opts),
		newRouteCmd(opts),
		newSkillsCmd(opts),
		newSessionsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// resolvedPath returns the explicit --config value or the default file when it
// exists.
func (o *rootOptions) resolvedPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if _, err := os.Stat(config.DefaultPath()); err == nil {
		return config.DefaultPath()
	}
	return ""
}

func (o *rootOptions) load() (*config.Config, string, error) {
	path := o.resolvedPath()
	cfg, err := config.LoadWith(config.LoadOptions{Path: path, Profile: o.profile, Sets: o.sets})
	if err != nil {
		return nil, path, NewConfigError(err, path)
	}
	return cfg, path, nil
}

// loadValid loads the configuration and fails on validation problems.
func (o *rootOptions) loadValid() (*config.Config, string, error) {
	cfg, path, err := o.load()
	if err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, NewConfigError(err, path)
	}
	return cfg, path, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "switchboard %s\n", version)
		},
	}
}
