// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"os"

	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/llm"
	"github.com/jllopis/switchboard/pkg/llm/anthropic"
	"github.com/jllopis/switchboard/pkg/llm/gemini"
	"github.com/jllopis/switchboard/pkg/llm/openai"
)

// ProviderFactory builds the LLM backend for an agent definition.
type ProviderFactory func(ctx context.Context, def config.AgentConfig) (llm.Provider, error)

// NewProvider is the default ProviderFactory. API keys are read from the
// environment variable named by def.APIKeyEnv.
func NewProvider(ctx context.Context, def config.AgentConfig) (llm.Provider, error) {
	apiKey := ""
	if def.APIKeyEnv != "" {
		apiKey = os.Getenv(def.APIKeyEnv)
	}

	switch def.Provider {
	case config.ProviderMock:
		return llm.EchoProvider{Prefix: "[" + def.ID + "] "}, nil
	case config.ProviderOllama:
		return llm.NewOllama(def.BaseURL, llm.WithOllamaModel(def.Model)), nil
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(def.Model), openai.WithMaxTokens(def.MaxTokens)}
		if def.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(def.BaseURL))
		}
		if apiKey != "" {
			opts = append(opts, openai.WithAPIKey(apiKey))
		}
		return openai.New(opts...), nil
	case config.ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithModel(def.Model), anthropic.WithMaxTokens(def.MaxTokens)}
		if def.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(def.BaseURL))
		}
		if apiKey != "" {
			opts = append(opts, anthropic.WithAPIKey(apiKey))
		}
		return anthropic.New(opts...), nil
	case config.ProviderGemini:
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:    apiKey,
			BaseURL:   def.BaseURL,
			Model:     def.Model,
			MaxTokens: def.MaxTokens,
		})
		if err != nil {
			return nil, errors.New(errors.CodeConfig, "gemini provider for agent "+def.ID, err)
		}
		return p, nil
	default:
		return nil, errors.Newf(errors.CodeConfig, "agent %q: unknown provider %q", def.ID, def.Provider)
	}
}
