// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"strings"

	"github.com/jllopis/switchboard/pkg/skills"
)

// DefaultInstruction is used for agents configured without one.
const DefaultInstruction = "You are a helpful assistant."

const skillsHeader = "## Available Skills\n" +
	"You have access to the following skills. When a task matches a skill, " +
	"read its full instructions from the skill directory before proceeding.\n"

// BuildInstruction appends the skill catalog listing to the base instruction.
// Only names and descriptions are included; bodies are loaded on demand.
func BuildInstruction(base string, available []skills.Skill) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultInstruction
	}
	if len(available) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(skillsHeader)
	for _, s := range available {
		b.WriteString("- ")
		b.WriteString(s.Name)
		b.WriteString(": ")
		b.WriteString(s.Description)
		b.WriteString(" (")
		b.WriteString(s.Dir)
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
