// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/skills"
)

func newSkillsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect the skill catalog",
	}
	cmd.AddCommand(newSkillsListCmd(root), newSkillsShowCmd(root))
	return cmd
}

func openCatalog(cmd *cobra.Command, root *rootOptions) (*skills.Catalog, error) {
	cfg, _, err := root.load()
	if err != nil {
		return nil, err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return skills.NewCatalog(cmd.Context(), cfg.Skills.Dir, skills.WithLogger(quiet)), nil
}

func newSkillsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := openCatalog(cmd, root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			list := catalog.Skills()
			if len(list) == 0 {
				fmt.Fprintf(out, "No skills found in %s\n", catalog.Dir())
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION\tDIR")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, truncate(s.Description, 60), s.Dir)
			}
			return w.Flush()
		},
	}
}

func newSkillsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print the instructions of a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := openCatalog(cmd, root)
			if err != nil {
				return err
			}
			skill, ok := catalog.Get(args[0])
			if !ok {
				return NewNotFoundError("skill", args[0])
			}
			body, err := catalog.LoadBody(skill)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n\n%s\n\n", skill.Name, skill.Description)
			if len(skill.AllowedTools) > 0 {
				fmt.Fprintf(out, "Allowed tools: %s\n\n", strings.Join(skill.AllowedTools, ", "))
			}
			fmt.Fprintln(out, strings.TrimSpace(body))
			return nil
		},
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
