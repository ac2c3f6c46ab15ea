// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jllopis/switchboard/pkg/llm"
)

func TestConvertMessages(t *testing.T) {
	contents := convertMessages([]llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestConvertResponse(t *testing.T) {
	resp := convertResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: "answer"},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     4,
			CandidatesTokenCount: 2,
			TotalTokenCount:      6,
		},
	})
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)

	assert.Empty(t, convertResponse(nil).Content)
	assert.Empty(t, convertResponse(&genai.GenerateContentResponse{}).Content)
}

func TestChatRoundTrip(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "ciao"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 1, "totalTokenCount": 4}
		}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), Config{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-2.5-flash"})
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "speak italian"},
			{Role: llm.RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ciao", resp.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
	assert.Contains(t, path, "gemini-2.5-flash:generateContent")
	assert.Contains(t, got, "systemInstruction")
}
