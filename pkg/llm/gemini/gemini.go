// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini adapts the Google Gemini API to llm.Provider.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/jllopis/switchboard/pkg/llm"
)

// Provider implements llm.Provider for Google Gemini API.
type Provider struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// Config holds connection settings for the Gemini client.
type Config struct {
	// APIKey is optional; the SDK falls back to GOOGLE_API_KEY or
	// GEMINI_API_KEY.
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// New creates a new Gemini provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p := &Provider{
		client: client,
		model:  "gemini-2.5-flash",
	}
	if cfg.Model != "" {
		p.model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		p.maxTokens = int32(cfg.MaxTokens)
	}
	return p, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	system, conversation := llm.SplitSystem(req.Messages)
	contents := convertMessages(conversation)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	switch {
	case req.MaxTokens > 0:
		config.MaxOutputTokens = int32(req.MaxTokens)
	case p.maxTokens > 0:
		config.MaxOutputTokens = p.maxTokens
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}
	candidate := resp.Candidates[0]
	out.FinishReason = string(candidate.FinishReason)
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && !part.Thought {
				out.Content += part.Text
			}
		}
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
