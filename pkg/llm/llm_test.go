// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
}

func TestEchoProvider(t *testing.T) {
	resp, err := EchoProvider{Prefix: "echo: "}.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "reply"},
			{Role: RoleUser, Content: "second"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "echo: second", resp.Content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EchoProvider{}.Chat(ctx, ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptedProvider(t *testing.T) {
	p := NewScriptedProvider("one", "two")
	for _, want := range []string{"one", "two"} {
		resp, err := p.Chat(context.Background(), ChatRequest{Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
	_, err := p.Chat(context.Background(), ChatRequest{})
	assert.Error(t, err)
	assert.Len(t, p.Requests(), 3)
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleSystem, Content: "b"},
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "u"}}, rest)
}

func TestOllamaChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hola"},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL+"/", WithOllamaModel("llama3.1"))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "hola", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.Equal(t, "llama3.1", got.Model)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 64, got.Options["num_predict"])
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")
}
