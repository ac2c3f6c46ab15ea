// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/errors"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	skillsDir := filepath.Join(root, "skills")
	require.NoError(t, os.MkdirAll(filepath.Join(skillsDir, "weather"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillsDir, "weather", "SKILL.md"),
		[]byte("---\nname: weather\ndescription: Look up forecasts\nallowed-tools: [http]\n---\nCall the forecast API.\n"), 0o644))

	content := fmt.Sprintf(`log:
  level: error
gateway:
  agent_timeout: 5s
  shutdown_timeout: 1s
agents:
  default: assistant
  list:
    - id: assistant
      provider: mock
    - id: support
      provider: mock
      skills: [weather]
bindings:
  - id: web
    agent_id: support
    match:
      channel: webchat
  - id: vip
    agent_id: support
    match:
      channel: discord
      peer_id: alice
session:
  store: %s
  dm_scope: per-channel-peer
skills:
  dir: %s
  watch: false
`, filepath.Join(root, "sessions"), skillsDir)
	path := filepath.Join(root, "switchboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "switchboard dev\n", out)
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "init", "validate", "route", "skills", "sessions", "version"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("set"))
}

func TestInitWritesDefaults(t *testing.T) {
	home := filepath.Join(t.TempDir(), "sb")
	out, err := execute(t, "", "init", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+filepath.Join(home, config.DefaultFileName))
	assert.DirExists(t, filepath.Join(home, "sessions"))
	assert.DirExists(t, filepath.Join(home, "skills"))

	out, err = execute(t, "", "init", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestValidate(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "", "--config", path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ config: "+path)
	assert.Contains(t, out, "✓ agent:assistant: mock, default")
	assert.Contains(t, out, "1 skills in")
	assert.Contains(t, out, "All checks passed")
}

func TestValidateReportsProblems(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "", "--config", path, "--set", "agents.default=ghost", "validate")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeConfig))
	assert.Contains(t, out, `agents.default "ghost" is not declared`)
	assert.Contains(t, out, "Validation failed")
}

func TestRoute(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "", "--config", path, "route", "--channel", "webchat", "--peer", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "support")
	assert.Contains(t, out, "channel")
	assert.Contains(t, out, "agent:support:webchat:direct:bob")

	out, err = execute(t, "", "--config", path, "route", "--channel", "discord", "--peer", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "peer")
	assert.Contains(t, out, "vip")

	out, err = execute(t, "", "--config", path, "route", "--channel", "slack", "--peer-kind", "group", "--peer", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "agent:assistant:slack:group:ops")

	_, err = execute(t, "", "--config", path, "route", "--channel", "slack", "--peer-kind", "room")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))
}

func TestSkills(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "", "--config", path, "skills", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "weather")
	assert.Contains(t, out, "Look up forecasts")

	out, err = execute(t, "", "--config", path, "skills", "show", "weather")
	require.NoError(t, err)
	assert.Contains(t, out, "# weather")
	assert.Contains(t, out, "Allowed tools: http")
	assert.Contains(t, out, "Call the forecast API.")

	_, err = execute(t, "", "--config", path, "skills", "show", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestServeCLIOnly(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "hello\nquit\n", "--config", path, "serve", "--cli-only")
	require.NoError(t, err)
	assert.Contains(t, out, "Agent > [assistant] hello")
	assert.Contains(t, out, "Bye.")

	sessions := filepath.Join(filepath.Dir(path), "sessions")
	entries, err := os.ReadDir(sessions)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSessions(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "", "--config", path, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No persisted sessions")

	_, err = execute(t, "hello\nquit\n", "--config", path, "serve", "--cli-only")
	require.NoError(t, err)

	out, err = execute(t, "", "--config", path, "sessions", "list")
	require.NoError(t, err)
	keys := strings.Fields(out)
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "agent_assistant_cli_direct_"))

	out, err = execute(t, "", "--config", path, "sessions", "show", keys[0])
	require.NoError(t, err)
	assert.Contains(t, out, "user: hello")
	assert.Contains(t, out, "assistant: [assistant] hello")

	_, err = execute(t, "", "--config", path, "sessions", "show", "agent:ghost:main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestServeRejectsBothOnlyFlags(t *testing.T) {
	path := writeConfig(t)
	_, err := execute(t, "", "--config", path, "serve", "--cli-only", "--webchat-only")
	require.Error(t, err)
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, NewNotFoundError("skill", "x"))
	assert.Equal(t, "Error [NOT_FOUND]: skill 'x' not found\n  Hint: run 'switchboard skills list' to see what is available\n", buf.String())

	buf.Reset()
	printError(&buf, fmt.Errorf("plain failure"))
	assert.Equal(t, "Error: plain failure\n", buf.String())

	buf.Reset()
	printError(&buf, NewConfigError(fmt.Errorf("bad yaml"), ""))
	assert.Equal(t, "Error [CONFIG_ERROR]: configuration error: bad yaml\n  Hint: check your configuration file syntax\n", buf.String())
}
