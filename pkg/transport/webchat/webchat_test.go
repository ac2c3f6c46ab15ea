// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/session"
)

type recorder struct {
	mu   sync.Mutex
	seen []core.Inbound
}

func (r *recorder) inbound() []core.Inbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Inbound(nil), r.seen...)
}

func (r *recorder) handler() core.Handler {
	return func(_ context.Context, in core.Inbound) (string, error) {
		r.mu.Lock()
		r.seen = append(r.seen, in)
		r.mu.Unlock()
		if in.Text == "fail" {
			return "", fmt.Errorf("handler exploded")
		}
		return "echo: " + in.Text, nil
	}
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestChat(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("").Routes(rec.handler()))
	defer srv.Close()

	resp, body := post(t, srv, "/api/chat", `{"message":" hello ","senderId":"alice"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "echo: hello", body["reply"])

	resp, _ = post(t, srv, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	seen := rec.inbound()
	require.Len(t, seen, 2)
	assert.Equal(t, "alice", seen[0].SenderID)
	assert.Equal(t, ChannelID, seen[0].Context.Channel)
	assert.Equal(t, DefaultSenderID, seen[1].SenderID)
}

func TestChatRejectsBadRequests(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("").Routes(rec.handler()))
	defer srv.Close()

	resp, body := post(t, srv, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "message is required", body["error"])

	resp, _ = post(t, srv, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = post(t, srv, "/api/chat", `{"message":"fail"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "handler exploded", body["error"])
	assert.Len(t, rec.inbound(), 1)
}

func TestIndexPage(t *testing.T) {
	srv := httptest.NewServer(New("", WithTitle("Support desk")).Routes(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "<title>Support desk</title>")
	assert.Contains(t, string(raw), "/api/chat")

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShutdownRequiresToken(t *testing.T) {
	called := make(chan struct{}, 1)
	tr := New("", WithAdminToken("s3cret"), WithShutdownHook(func() { called <- struct{}{} }))
	srv := httptest.NewServer(tr.Routes(nil))
	defer srv.Close()

	resp, _ := post(t, srv, "/api/shutdown", `{"adminToken":"wrong"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = post(t, srv, "/api/shutdown", `{}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = post(t, srv, "/api/shutdown", `{"adminToken":"s3cret"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hook not called")
	}
}

func TestShutdownDisabledWithoutToken(t *testing.T) {
	srv := httptest.NewServer(New("", WithShutdownHook(func() { t.Error("hook must not run") })).Routes(nil))
	defer srv.Close()

	resp, _ := post(t, srv, "/api/shutdown", `{"adminToken":""}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionTranscript(t *testing.T) {
	store := session.NewStore()
	store.Append("agent:main:main", session.NewEntry(session.RoleUser, "hi"))
	store.Append("agent:main:main", session.NewEntry(session.RoleAssistant, "hello"))
	tr := New("", WithAdminToken("tok"), WithSessions(store.History))
	srv := httptest.NewServer(tr.Routes(nil))
	defer srv.Close()

	get := func(key, token string) (*http.Response, map[string]any) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions/"+key, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp, out
	}

	resp, _ := get("agent:main:main", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := get("agent:main:main", "tok")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[1].(map[string]any)["content"])

	resp, _ = get("agent:none:main", "tok")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionReset(t *testing.T) {
	store := session.NewStore()
	store.Append("agent:main:main", session.NewEntry(session.RoleUser, "hi"))
	tr := New("", WithAdminToken("tok"), WithSessions(store.History), WithSessionReset(store.Clear))
	srv := httptest.NewServer(tr.Routes(nil))
	defer srv.Close()

	del := func(token string) int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/agent:main:main", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, del("wrong"))
	assert.Equal(t, 1, store.Len("agent:main:main"))

	assert.Equal(t, http.StatusOK, del("tok"))
	assert.Zero(t, store.Len("agent:main:main"))

	plain := httptest.NewServer(New("", WithAdminToken("tok")).Routes(nil))
	defer plain.Close()
	req, err := http.NewRequest(http.MethodDelete, plain.URL+"/api/sessions/k", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	tr := New("", WithHealth(func(context.Context) ([]core.HealthResult, core.HealthStatus) {
		return []core.HealthResult{
			{Component: "agents", Status: core.HealthHealthy, Message: "2 agents"},
			{Component: "skills", Status: core.HealthUnhealthy, Message: "broken"},
		}, core.HealthUnhealthy
	}))
	srv := httptest.NewServer(tr.Routes(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Status     string                       `json:"status"`
		Components map[string]map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "UNHEALTHY", out.Status)
	assert.Equal(t, "2 agents", out.Components["agents"]["message"])
}

func TestStartStop(t *testing.T) {
	tr := New("127.0.0.1:0")
	require.NoError(t, tr.Start(context.Background(), func(_ context.Context, in core.Inbound) (string, error) {
		return "pong", nil
	}))
	assert.Error(t, tr.Start(context.Background(), nil))

	resp, err := http.Post("http://"+tr.Addr()+"/api/chat", "application/json", strings.NewReader(`{"message":"ping"}`))
	require.NoError(t, err)
	var out chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, "pong", out.Reply)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Stop(ctx))
}
