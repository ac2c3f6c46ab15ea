// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/session"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted session transcripts",
	}
	cmd.AddCommand(newSessionsListCmd(root), newSessionsShowCmd(root))
	return cmd
}

// openLoader opens the configured session backend for reading. The returned
// close function is never nil when err is nil.
func openLoader(root *rootOptions) (session.Loader, func() error, error) {
	cfg, path, err := root.load()
	if err != nil {
		return nil, nil, err
	}
	p, closeFn, err := session.OpenPersister(cfg.Session.Backend, cfg.Session.Store)
	if err != nil {
		return nil, nil, NewConfigError(err, path)
	}
	loader, ok := p.(session.Loader)
	if !ok {
		_ = closeFn()
		e := errors.Newf(errors.CodeConfig, "session backend %q cannot be read back", cfg.Session.Backend)
		return nil, nil, NewCLIError(e, "")
	}
	return loader, closeFn, nil
}

func newSessionsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, closeFn, err := openLoader(root)
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := loader.Keys(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "No persisted sessions")
				return nil
			}
			for _, k := range keys {
				fmt.Fprintln(out, k)
			}
			return nil
		},
	}
}

func newSessionsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Print a persisted transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, closeFn, err := openLoader(root)
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return NewNotFoundError("session", args[0])
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "[%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Role, e.Content)
			}
			return nil
		},
	}
}
