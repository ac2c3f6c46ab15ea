// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// EchoProvider answers with the last user message. It backs the "mock"
// provider so a gateway can run without credentials.
type EchoProvider struct {
	Prefix string
}

func (e EchoProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	return &ChatResponse{Content: e.Prefix + last, FinishReason: "stop"}, nil
}

// ScriptedProvider returns a pre-defined sequence of responses and records
// every request it receives.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []string
	requests  []ChatRequest
}

// NewScriptedProvider creates a ScriptedProvider.
func NewScriptedProvider(responses ...string) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Chat pops the next scripted response.
func (s *ScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("scripted provider: no more responses available")
	}
	content := s.responses[0]
	s.responses = s.responses[1:]
	return &ChatResponse{Content: content}, nil
}

// Requests returns a copy of the recorded requests.
func (s *ScriptedProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}
