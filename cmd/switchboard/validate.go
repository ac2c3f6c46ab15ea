// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/skills"
)

type validateResult struct {
	Config  checkResult   `json:"config"`
	Agents  []checkResult `json:"agents"`
	Skills  checkResult   `json:"skills"`
	Overall string        `json:"overall"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // ok, warn, error, skip
	Message string `json:"message,omitempty"`
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := runValidate(cmd, root)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printValidateResult(out, result)
			}
			if result.Overall == "error" {
				return errors.New(errors.CodeConfig, "validation failed", nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runValidate(cmd *cobra.Command, root *rootOptions) validateResult {
	result := validateResult{Agents: []checkResult{}}

	cfg, path, err := root.load()
	if err != nil {
		result.Config = checkResult{Name: "config", Status: "error", Message: fmt.Sprintf("failed to load: %v", err)}
		result.Skills = checkResult{Name: "skills", Status: "skip", Message: "config not loaded"}
		result.Overall = "error"
		return result
	}
	source := path
	if source == "" {
		source = "built-in defaults"
	}
	if err := cfg.Validate(); err != nil {
		result.Config = checkResult{Name: "config", Status: "error", Message: configProblems(err)}
	} else {
		result.Config = checkResult{Name: "config", Status: "ok", Message: source}
	}

	for _, a := range cfg.Agents.List {
		result.Agents = append(result.Agents, checkAgent(cfg, a))
	}
	result.Skills = checkSkills(cmd, cfg.Skills.Dir)

	result.Overall = "ok"
	for _, c := range append([]checkResult{result.Config, result.Skills}, result.Agents...) {
		switch c.Status {
		case "error":
			result.Overall = "error"
		case "warn":
			if result.Overall == "ok" {
				result.Overall = "warn"
			}
		}
	}
	return result
}

func configProblems(err error) string {
	if e := errors.As(err); e != nil {
		if problems, ok := e.Context["problems"].([]string); ok {
			return strings.Join(problems, "; ")
		}
	}
	return err.Error()
}

func checkAgent(cfg *config.Config, a config.AgentConfig) checkResult {
	name := "agent:" + a.ID
	var notes []string
	if a.ID == cfg.Agents.Default {
		notes = append(notes, "default")
	}
	desc := a.Provider
	if a.Model != "" {
		desc += "/" + a.Model
	}
	notes = append([]string{desc}, notes...)
	if len(a.Skills) > 0 {
		notes = append(notes, "skills: "+strings.Join(a.Skills, ","))
	}
	if a.APIKeyEnv != "" && os.Getenv(a.APIKeyEnv) == "" {
		return checkResult{Name: name, Status: "warn", Message: fmt.Sprintf("%s is not set", a.APIKeyEnv)}
	}
	return checkResult{Name: name, Status: "ok", Message: strings.Join(notes, ", ")}
}

func checkSkills(cmd *cobra.Command, dir string) checkResult {
	if dir == "" {
		return checkResult{Name: "skills", Status: "skip", Message: "no skills directory configured"}
	}
	if _, err := os.Stat(dir); err != nil {
		return checkResult{Name: "skills", Status: "warn", Message: fmt.Sprintf("%s does not exist", dir)}
	}
	catalog := skills.NewCatalog(cmd.Context(), dir, skills.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return checkResult{Name: "skills", Status: "ok", Message: fmt.Sprintf("%d skills in %s", catalog.Len(), dir)}
}

func printValidateResult(w io.Writer, result validateResult) {
	icons := map[string]string{"ok": "✓", "warn": "⚠", "error": "✗", "skip": "○"}
	printCheck := func(c checkResult) {
		if c.Message != "" {
			fmt.Fprintf(w, "%s %s: %s\n", icons[c.Status], c.Name, c.Message)
			return
		}
		fmt.Fprintf(w, "%s %s\n", icons[c.Status], c.Name)
	}

	fmt.Fprintln(w, "Switchboard Configuration Validation")
	fmt.Fprintln(w, "====================================")
	fmt.Fprintln(w)
	printCheck(result.Config)
	for _, a := range result.Agents {
		printCheck(a)
	}
	printCheck(result.Skills)
	fmt.Fprintln(w)
	switch result.Overall {
	case "ok":
		fmt.Fprintln(w, "✓ All checks passed")
	case "warn":
		fmt.Fprintln(w, "⚠ Passed with warnings")
	default:
		fmt.Fprintln(w, "✗ Validation failed")
	}
}
