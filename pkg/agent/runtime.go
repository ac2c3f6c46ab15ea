// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/llm"
	"github.com/jllopis/switchboard/pkg/resilience"
	"github.com/jllopis/switchboard/pkg/session"
)

// LLMRuntime executes a turn by sending the agent instruction, the prior
// transcript and the new message to the agent's provider.
type LLMRuntime struct {
	logger *slog.Logger
	retry  resilience.Policy
}

// RuntimeOption configures an LLMRuntime.
type RuntimeOption func(*LLMRuntime)

// WithRetry retries failed provider calls within the turn deadline.
func WithRetry(p resilience.Policy) RuntimeOption {
	return func(r *LLMRuntime) { r.retry = p }
}

// NewLLMRuntime creates an LLMRuntime. Provider calls are not retried unless
// WithRetry is given.
func NewLLMRuntime(logger *slog.Logger, opts ...RuntimeOption) *LLMRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &LLMRuntime{logger: logger, retry: resilience.Disabled()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one turn. history must not contain message itself.
func (r *LLMRuntime) Execute(ctx context.Context, h *Handle, sessionKey string, history []session.Entry, message string) (string, error) {
	if h == nil || h.Provider == nil {
		return "", errors.Newf(errors.CodeAgentFailure, "agent has no provider")
	}

	req := llm.ChatRequest{
		Model:     h.Model,
		Messages:  BuildMessages(h.Instruction, history, message),
		MaxTokens: h.MaxTokens,
	}
	policy := r.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.logger.WarnContext(ctx, "agent.provider.retry",
			slog.String("agent_id", h.ID),
			slog.String("provider", h.ProviderName),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	}
	resp, err := resilience.Call(ctx, policy, func(ctx context.Context) (*llm.ChatResponse, error) {
		return h.Provider.Chat(ctx, req)
	})
	if err != nil {
		return "", errors.New(errors.CodeLLMError, "provider "+h.ProviderName+" failed", err).
			WithAttribute("agent_id", h.ID).
			WithRecoverable(true)
	}

	r.logger.DebugContext(ctx, "agent.turn.usage",
		slog.String("agent_id", h.ID),
		slog.String("session_key", sessionKey),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		slog.String("finish_reason", resp.FinishReason),
	)
	return resp.Content, nil
}

// BuildMessages assembles the chat request messages for a turn. Tool entries
// are not replayed.
func BuildMessages(instruction string, history []session.Entry, message string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if instruction != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: instruction})
	}
	for _, e := range history {
		switch e.Role {
		case session.RoleUser:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: e.Content})
		case session.RoleAssistant:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		case session.RoleSystem:
			msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: e.Content})
		}
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}
