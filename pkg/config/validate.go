// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/jllopis/switchboard/pkg/errors"
)

// Supported agent providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Session scopes for direct messages.
const (
	DMScopeMain           = "main"
	DMScopePerChannelPeer = "per-channel-peer"
)

// Routing modes.
const (
	RoutingTiered  = "tiered"
	RoutingChannel = "channel"
)

// Validate checks the configuration and returns a CodeConfig error listing
// every problem found. The environment lookup is used for API key checks.
func (c *Config) Validate() error {
	return c.validate(os.Getenv)
}

// Warnings lists settings that are accepted but unsafe to run with.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Gateway.AdminToken == DefaultAdminToken && c.channelEnabled("webchat") {
		warnings = append(warnings, "gateway.admin_token is the built-in default; set a private token to protect /api/sessions")
	}
	return warnings
}

func (c *Config) channelEnabled(id string) bool {
	if len(c.Gateway.Channels) == 0 {
		return true
	}
	for _, ch := range c.Gateway.Channels {
		if ch == id {
			return true
		}
	}
	return false
}

func (c *Config) validate(getenv func(string) string) error {
	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		addf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Gateway.AgentTimeout <= 0 {
		addf("gateway.agent_timeout must be positive")
	}
	if c.Gateway.ShutdownTimeout < 0 {
		addf("gateway.shutdown_timeout must not be negative")
	}
	for _, ch := range c.Gateway.Channels {
		if ch != "cli" && ch != "webchat" {
			addf("gateway.channels: unknown channel %q", ch)
		}
	}
	if c.Agents.MaxConcurrent <= 0 {
		addf("agents.max_concurrent must be positive, got %d", c.Agents.MaxConcurrent)
	}
	if c.Agents.Retry.MaxAttempts < 1 {
		addf("agents.retry.max_attempts must be at least 1, got %d", c.Agents.Retry.MaxAttempts)
	}

	switch c.Routing.Mode {
	case RoutingTiered, RoutingChannel:
	default:
		addf("routing.mode must be %q or %q, got %q", RoutingTiered, RoutingChannel, c.Routing.Mode)
	}
	switch c.Session.DMScope {
	case DMScopeMain, DMScopePerChannelPeer:
	default:
		addf("session.dm_scope must be %q or %q, got %q", DMScopeMain, DMScopePerChannelPeer, c.Session.DMScope)
	}
	switch c.Session.Backend {
	case "jsonl", "sqlite":
	default:
		addf("session.backend must be jsonl or sqlite, got %q", c.Session.Backend)
	}

	ids := make(map[string]bool, len(c.Agents.List))
	for i, a := range c.Agents.List {
		where := fmt.Sprintf("agents.list[%d]", i)
		if strings.TrimSpace(a.ID) == "" {
			addf("%s: id is required", where)
			continue
		}
		where = fmt.Sprintf("agent %q", a.ID)
		if ids[a.ID] {
			addf("%s: duplicate id", where)
		}
		ids[a.ID] = true
		for _, p := range validateProvider(a, getenv) {
			addf("%s: %s", where, p)
		}
	}
	if c.Agents.Default == "" {
		addf("agents.default is required")
	} else if !ids[c.Agents.Default] {
		addf("agents.default %q is not declared in agents.list", c.Agents.Default)
	}

	for i, b := range c.Bindings {
		where := fmt.Sprintf("bindings[%d]", i)
		if b.ID != "" {
			where = fmt.Sprintf("binding %q", b.ID)
		}
		if b.AgentID == "" {
			addf("%s: agent_id is required", where)
		} else if !ids[b.AgentID] {
			addf("%s: unknown agent %q", where, b.AgentID)
		}
		if k := b.Match.PeerKind; k != "" && k != "direct" && k != "group" {
			addf("%s: peer_kind must be direct or group, got %q", where, k)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(errors.CodeConfig, "invalid configuration", fmt.Errorf("%s", strings.Join(problems, "; "))).
		WithContext("problems", problems)
}

func validateProvider(a AgentConfig, getenv func(string) string) []string {
	var problems []string
	if strings.TrimSpace(a.Model) == "" && a.Provider != ProviderMock {
		problems = append(problems, "model is required")
	}
	switch a.Provider {
	case ProviderGemini, ProviderMock:
		if a.Provider == ProviderGemini && a.APIKeyEnv != "" && getenv(a.APIKeyEnv) == "" {
			problems = append(problems, fmt.Sprintf("environment variable %s is not set", a.APIKeyEnv))
		}
	case ProviderOpenAI, ProviderAnthropic:
		if a.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("provider %s requires base_url", a.Provider))
		}
		if a.APIKeyEnv == "" {
			problems = append(problems, fmt.Sprintf("provider %s requires api_key_env", a.Provider))
		} else if getenv(a.APIKeyEnv) == "" {
			problems = append(problems, fmt.Sprintf("environment variable %s is not set", a.APIKeyEnv))
		}
	case ProviderOllama:
		if a.BaseURL == "" {
			problems = append(problems, "provider ollama requires base_url")
		}
	case "":
		problems = append(problems, "provider is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q (supported: gemini, openai, anthropic, ollama, mock)", a.Provider))
	}
	return problems
}
