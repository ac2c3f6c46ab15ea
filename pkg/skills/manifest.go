// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/switchboard/pkg/errors"
)

// ManifestFile is the file that marks a directory as a skill.
const ManifestFile = "SKILL.md"

const delimiter = "---"

// Skill is the indexed metadata of one skill. The body is not held in
// memory; use LoadBody.
type Skill struct {
	Name          string
	Description   string
	Dir           string
	Path          string
	License       string
	Compatibility string
	Metadata      map[string]string
	AllowedTools  []string
}

type frontmatter struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	License       string            `yaml:"license"`
	Compatibility string            `yaml:"compatibility"`
	Metadata      map[string]string `yaml:"metadata"`
	AllowedTools  any               `yaml:"allowed-tools"`
}

var (
	errNoFrontmatter   = stderrors.New("missing front-matter block")
	errOpenFrontmatter = stderrors.New("front-matter block is not closed")
)

// ParseManifest reads the front-matter of the SKILL.md at path.
// name and description are required; a manifest that breaks either rule or
// has no front-matter fails with CodeSkillInvalid.
func ParseManifest(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	fm, _, err := splitFrontmatter(string(data))
	if err != nil {
		return Skill{}, invalidManifest(path, err)
	}

	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		// Hand-written manifests often carry unquoted colons in the
		// description; fall back to plain key: value lines.
		parsed = scanFrontmatter(fm)
	}

	skill := Skill{
		Name:          strings.TrimSpace(parsed.Name),
		Description:   strings.TrimSpace(parsed.Description),
		Dir:           filepath.Dir(path),
		Path:          path,
		License:       strings.TrimSpace(parsed.License),
		Compatibility: strings.TrimSpace(parsed.Compatibility),
		Metadata:      parsed.Metadata,
		AllowedTools:  normalizeAllowedTools(parsed.AllowedTools),
	}
	if skill.Name == "" {
		return Skill{}, invalidManifest(path, stderrors.New("name is required"))
	}
	if skill.Description == "" {
		return Skill{}, invalidManifest(path, stderrors.New("description is required"))
	}
	return skill, nil
}

func invalidManifest(path string, cause error) error {
	return errors.New(errors.CodeSkillInvalid, "invalid skill manifest "+path, cause).
		WithAttribute("skill.path", path)
}

// LoadBody re-reads the manifest of skill and returns the trimmed text after
// the front-matter block.
func LoadBody(skill Skill) (string, error) {
	data, err := os.ReadFile(skill.Path)
	if err != nil {
		return "", fmt.Errorf("load skill %s: %w", skill.Name, err)
	}
	_, body, err := splitFrontmatter(string(data))
	if err != nil {
		return "", fmt.Errorf("load skill %s: %w", skill.Name, err)
	}
	return strings.TrimSpace(body), nil
}

// splitFrontmatter returns the text between the first two lines that are
// exactly "---" and the text after the second one. Leading blank lines are
// allowed before the opening delimiter.
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	lines := strings.SplitAfter(content, "\n")

	open := -1
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if open < 0 {
			if strings.TrimSpace(trimmed) == "" {
				continue
			}
			if trimmed != delimiter {
				return "", "", errNoFrontmatter
			}
			open = i
			continue
		}
		if trimmed == delimiter {
			fm := strings.Join(lines[open+1:i], "")
			body := strings.Join(lines[i+1:], "")
			return fm, body, nil
		}
	}
	if open < 0 {
		return "", "", errNoFrontmatter
	}
	return "", "", errOpenFrontmatter
}

// scanFrontmatter extracts top-level "key: value" pairs line by line.
func scanFrontmatter(fm string) frontmatter {
	var out frontmatter
	scanner := bufio.NewScanner(strings.NewReader(fm))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = unquote(strings.TrimSpace(value))
		switch strings.TrimSpace(key) {
		case "name":
			out.Name = value
		case "description":
			out.Description = value
		case "license":
			out.License = value
		case "compatibility":
			out.Compatibility = value
		}
	}
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			if s, err := strconv.Unquote(v); err == nil {
				return s
			}
			return v[1 : len(v)-1]
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
		}
	}
	return v
}

func normalizeAllowedTools(value any) []string {
	var items []string
	switch v := value.(type) {
	case string:
		items = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case []string:
		items = v
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
