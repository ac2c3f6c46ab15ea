// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway configuration from defaults, a YAML file,
// SWITCHBOARD_* environment variables and --set command line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. Path segments are
// separated by a double underscore: SWITCHBOARD_GATEWAY__PORT -> gateway.port.
const EnvPrefix = "SWITCHBOARD_"

// Config is the full gateway configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Routing   RoutingConfig   `koanf:"routing"`
	Agents    AgentsConfig    `koanf:"agents"`
	Bindings  []BindingConfig `koanf:"bindings"`
	Session   SessionConfig   `koanf:"session"`
	Skills    SkillsConfig    `koanf:"skills"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter       string        `koanf:"exporter"` // noop, stdout, otlp
	OTLPEndpoint   string        `koanf:"otlp_endpoint"`
	OTLPInsecure   bool          `koanf:"otlp_insecure"`
	OTLPTimeout    time.Duration `koanf:"otlp_timeout"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

type GatewayConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	AdminToken      string        `koanf:"admin_token"`
	AgentTimeout    time.Duration `koanf:"agent_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// GRPCHealthAddr enables the gRPC health service when set, e.g. ":9090".
	GRPCHealthAddr string `koanf:"grpc_health_addr"`
	// Channels lists the transports to start: cli, webchat.
	Channels []string `koanf:"channels"`
}

// Addr returns the webchat listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

type RoutingConfig struct {
	Mode string `koanf:"mode"` // tiered, channel
}

type AgentsConfig struct {
	Default       string        `koanf:"default"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	Retry         RetryConfig   `koanf:"retry"`
	List          []AgentConfig `koanf:"list"`
}

// RetryConfig controls retries of failed provider calls inside a turn.
type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
}

// AgentConfig declares one agent and the model provider backing it.
type AgentConfig struct {
	ID          string   `koanf:"id"`
	Provider    string   `koanf:"provider"` // gemini, openai, anthropic, ollama, mock
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKeyEnv   string   `koanf:"api_key_env"`
	MaxTokens   int      `koanf:"max_tokens"`
	Instruction string   `koanf:"instruction"`
	Workspace   string   `koanf:"workspace"`
	Skills      []string `koanf:"skills"`
}

// BindingConfig maps a match condition to an agent.
type BindingConfig struct {
	ID      string      `koanf:"id"`
	AgentID string      `koanf:"agent_id"`
	Match   MatchConfig `koanf:"match"`
}

type MatchConfig struct {
	Channel   string   `koanf:"channel"`
	AccountID string   `koanf:"account_id"`
	PeerID    string   `koanf:"peer_id"`
	PeerKind  string   `koanf:"peer_kind"`
	GuildID   string   `koanf:"guild_id"`
	TeamID    string   `koanf:"team_id"`
	Roles     []string `koanf:"roles"`
}

type SessionConfig struct {
	Store         string `koanf:"store"`
	DMScope       string `koanf:"dm_scope"` // main, per-channel-peer
	Backend       string `koanf:"backend"`  // jsonl, sqlite
	PersistOnTurn bool   `koanf:"persist_on_turn"`
}

type SkillsConfig struct {
	Dir          string        `koanf:"dir"`
	Watch        bool          `koanf:"watch"`
	Debounce     time.Duration `koanf:"debounce"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "noop")
	k.Set("telemetry.metric_interval", "60s")

	k.Set("gateway.host", "")
	k.Set("gateway.port", 8080)
	k.Set("gateway.admin_token", DefaultAdminToken)
	k.Set("gateway.agent_timeout", "60s")
	k.Set("gateway.shutdown_timeout", "10s")
	k.Set("gateway.channels", []string{"cli", "webchat"})

	k.Set("routing.mode", "tiered")

	k.Set("agents.default", "assistant")
	k.Set("agents.max_concurrent", 4)
	k.Set("agents.retry.max_attempts", 2)
	k.Set("agents.retry.initial_delay", "500ms")

	k.Set("session.store", "~/.switchboard/sessions")
	k.Set("session.dm_scope", "main")
	k.Set("session.backend", "jsonl")
	k.Set("session.persist_on_turn", true)

	k.Set("skills.dir", "~/.switchboard/skills")
	k.Set("skills.watch", true)
	k.Set("skills.debounce", "250ms")
	k.Set("skills.poll_interval", "2s")
}

// Load reads configuration from defaults, the optional YAML file at path and
// the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile is Load plus an optional profile overlay: for
// "switchboard.yaml" and profile "dev", "switchboard.dev.yaml" is merged on
// top of the base file when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load([]string{path}, profile, nil)
}

// LoadWithCLI parses --config, --profile and repeated --set key=value
// arguments and loads configuration with the overrides applied last.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.paths, opts.profile, opts.sets)
}

// LoadOptions is the programmatic form of the command line overrides.
type LoadOptions struct {
	Path    string
	Profile string
	Sets    []string
}

// LoadWith loads configuration from explicit options.
func LoadWith(opts LoadOptions) (*Config, error) {
	sets := make([]setOverride, 0, len(opts.Sets))
	for _, raw := range opts.Sets {
		key, value, err := parseSet(raw)
		if err != nil {
			return nil, err
		}
		sets = append(sets, setOverride{key: key, value: value})
	}
	return load([]string{opts.Path}, opts.Profile, sets)
}

func load(paths []string, profile string, sets []setOverride) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	for _, path := range paths {
		if path == "" {
			continue
		}
		path = ExpandHome(path)
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile %s: %w", overlay, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for _, o := range sets {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, fmt.Errorf("apply --set %s: %w", o.key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// profileConfigPath returns the overlay file for base and profile, or "" when
// either is empty or the overlay does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type setOverride struct {
	key   string
	value interface{}
}

type cliOptions struct {
	paths   []string
	profile string
	sets    []setOverride
}

func parseCLIOverrides(args []string) (cliOptions, error) {
	var opts cliOptions
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "-c", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config", "-c":
			opts.paths = append(opts.paths, value)
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, parsed, err := parseSet(value)
			if err != nil {
				return opts, err
			}
			opts.sets = append(opts.sets, setOverride{key: key, value: parsed})
		}
	}
	return opts, nil
}

// parseSet splits key=value and decodes value as a YAML scalar or a
// JSON/YAML document so numbers, booleans and maps keep their types.
func parseSet(raw string) (string, interface{}, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q: expected key=value", raw)
	}
	var decoded interface{}
	if err := yamlv3.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		return key, value, nil
	}
	return key, decoded, nil
}

func (c *Config) normalize() {
	c.Session.Store = ExpandHome(c.Session.Store)
	c.Skills.Dir = ExpandHome(c.Skills.Dir)
	for i := range c.Agents.List {
		c.Agents.List[i].Provider = strings.ToLower(strings.TrimSpace(c.Agents.List[i].Provider))
		c.Agents.List[i].Workspace = ExpandHome(c.Agents.List[i].Workspace)
	}
	for i := range c.Gateway.Channels {
		c.Gateway.Channels[i] = strings.ToLower(strings.TrimSpace(c.Gateway.Channels[i]))
	}
}

// Agent returns the declaration of the agent with the given id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents.List {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// ChannelEnabled reports whether the named transport should start.
func (c *Config) ChannelEnabled(name string) bool {
	for _, ch := range c.Gateway.Channels {
		if ch == name {
			return true
		}
	}
	return false
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
