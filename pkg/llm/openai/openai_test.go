// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/switchboard/pkg/llm"
)

func TestNewDefaults(t *testing.T) {
	p := New(WithAPIKey("test-key"))
	assert.Equal(t, "gpt-4o-mini", p.model)
	assert.Len(t, p.opts, 1)

	p = New(WithModel("gpt-4.1"), WithBaseURL("http://localhost:1/v1/"), WithAPIKey("k"), WithMaxTokens(256))
	assert.Equal(t, "gpt-4.1", p.model)
	assert.Equal(t, int64(256), p.maxTokens)
	assert.Len(t, p.opts, 2)
}

func TestChatRoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "pong"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 1, "total_tokens": 8}
		}`))
	}))
	defer srv.Close()

	p := New(WithBaseURL(srv.URL+"/v1/"), WithAPIKey("sk-test"), WithRequestOptions(option.WithMaxRetries(0)))
	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "ping"},
		},
		MaxTokens: 32,
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 8, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 32, got["max_completion_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := New(WithBaseURL(srv.URL+"/v1/"), WithAPIKey("nope"), WithRequestOptions(option.WithMaxRetries(0)))
	_, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai chat completion failed")
}
