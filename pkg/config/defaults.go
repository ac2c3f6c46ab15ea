// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultFileName is the config file created under the home directory.
const DefaultFileName = "switchboard.yaml"

// DefaultAdminToken is the built-in sessions API token. Files written by
// EnsureDefaults carry a random token instead.
const DefaultAdminToken = "switchboard-admin"

// DefaultHome returns ~/.switchboard.
func DefaultHome() string {
	return ExpandHome("~/.switchboard")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultHome(), DefaultFileName)
}

// EnsureDefaults creates home with its sessions and skills subdirectories and
// writes DefaultYAML to home/switchboard.yaml unless a file is already there.
// The written file gets a freshly generated admin token. It returns the config
// path and whether it was created.
func EnsureDefaults(home string) (string, bool, error) {
	for _, dir := range []string{home, filepath.Join(home, "sessions"), filepath.Join(home, "skills")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	path := filepath.Join(home, DefaultFileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", false, err
	}
	content := strings.Replace(DefaultYAML, "admin_token: "+DefaultAdminToken, "admin_token: "+uuid.NewString(), 1)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", false, fmt.Errorf("write default config: %w", err)
	}
	return path, true, nil
}

// DefaultYAML is the configuration written on first run.
const DefaultYAML = `# Switchboard gateway configuration

log:
  level: info
  format: text

gateway:
  port: 8080
  admin_token: switchboard-admin
  agent_timeout: 60s
  shutdown_timeout: 10s
  channels: [cli, webchat]
  # grpc_health_addr: ":9090"

agents:
  default: assistant
  max_concurrent: 4
  retry:
    max_attempts: 2
    initial_delay: 500ms
  list:
    - id: assistant
      provider: gemini
      model: gemini-2.5-flash
      # api_key_env: GOOGLE_API_KEY
      instruction: |
        You are a helpful AI assistant.
      workspace: ~/.switchboard/workspace/assistant
      # skills: [all]

bindings:
  - id: webchat-assistant
    agent_id: assistant
    match:
      channel: webchat

session:
  store: ~/.switchboard/sessions
  dm_scope: main
  backend: jsonl

skills:
  dir: ~/.switchboard/skills
  watch: true
  debounce: 250ms
`
