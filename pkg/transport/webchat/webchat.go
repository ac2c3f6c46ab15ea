// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package webchat serves a small browser chat page and its JSON API.
package webchat

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/session"
)

const (
	// ChannelID is the channel name used for routing.
	ChannelID = "webchat"
	// DefaultSenderID is used when a request carries no sender.
	DefaultSenderID = "web-user"

	maxBodyBytes = 1 << 20
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// SessionLookup returns the transcript of a session key.
type SessionLookup func(key string) []session.Entry

// HealthLookup reports component health.
type HealthLookup func(ctx context.Context) ([]core.HealthResult, core.HealthStatus)

// Transport is the webchat HTTP server.
type Transport struct {
	addr       string
	title      string
	adminToken string
	onShutdown func()
	sessions   SessionLookup
	reset      func(key string)
	health     HealthLookup
	logger     *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures the webchat transport.
type Option func(*Transport)

// WithAdminToken sets the token required by the admin endpoints. Admin
// endpoints are disabled when it is empty.
func WithAdminToken(token string) Option {
	return func(t *Transport) { t.adminToken = token }
}

// WithShutdownHook is invoked by POST /api/shutdown.
func WithShutdownHook(fn func()) Option {
	return func(t *Transport) { t.onShutdown = fn }
}

// WithSessions enables GET /api/sessions/{key}.
func WithSessions(fn SessionLookup) Option {
	return func(t *Transport) { t.sessions = fn }
}

// WithSessionReset enables DELETE /api/sessions/{key}.
func WithSessionReset(fn func(key string)) Option {
	return func(t *Transport) { t.reset = fn }
}

// WithHealth enables GET /healthz.
func WithHealth(fn HealthLookup) Option {
	return func(t *Transport) { t.health = fn }
}

// WithTitle sets the chat page title.
func WithTitle(title string) Option {
	return func(t *Transport) { t.title = title }
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a webchat transport listening on addr.
func New(addr string, opts ...Option) *Transport {
	t := &Transport{
		addr:   addr,
		title:  "Switchboard",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID implements core.Transport.
func (t *Transport) ID() string { return ChannelID }

// Addr returns the bound address once started.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return t.addr
	}
	return t.listener.Addr().String()
}

// Start implements core.Transport.
func (t *Transport) Start(_ context.Context, h core.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return fmt.Errorf("webchat transport already started")
	}

	lis, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("webchat listen on %s: %w", t.addr, err)
	}
	t.listener = lis
	t.server = &http.Server{
		Handler:           t.Routes(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			t.logger.Error("webchat.serve_failed", slog.String("error", err.Error()))
		}
	}(t.server)

	display := lis.Addr().String()
	if strings.HasPrefix(t.addr, ":") {
		display = "localhost" + t.addr
	}
	t.logger.Info("webchat.listening", slog.String("url", "http://"+display))
	return nil
}

// Stop implements core.Transport.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Routes returns the HTTP handler serving h.
func (t *Transport) Routes(h core.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", t.handleIndex)
	mux.HandleFunc("POST /api/chat", t.handleChat(h))
	mux.HandleFunc("POST /api/shutdown", t.handleShutdown)
	mux.HandleFunc("GET /api/sessions/{key}", t.handleSession)
	mux.HandleFunc("DELETE /api/sessions/{key}", t.handleSessionReset)
	mux.HandleFunc("GET /healthz", t.handleHealth)
	return cors(mux)
}

type chatRequest struct {
	Message  string `json:"message"`
	SenderID string `json:"senderId"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (t *Transport) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Title    string
		ChatPath string
	}{Title: t.title, ChatPath: "/api/chat"}
	if err := indexTemplate.Execute(w, data); err != nil {
		t.logger.Warn("webchat.render_failed", slog.String("error", err.Error()))
	}
}

func (t *Transport) handleChat(h core.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
			return
		}
		sender := strings.TrimSpace(req.SenderID)
		if sender == "" {
			sender = DefaultSenderID
		}

		reply, err := h(r.Context(), core.Inbound{
			Text:     req.Message,
			SenderID: sender,
			Context:  core.MessageContext{Channel: ChannelID, SenderID: sender},
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	}
}

func (t *Transport) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminToken string `json:"adminToken"`
	}
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if !t.authorized(req.AdminToken) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	if t.onShutdown != nil {
		go t.onShutdown()
	}
}

func (t *Transport) handleSession(w http.ResponseWriter, r *http.Request) {
	if t.sessions == nil {
		http.NotFound(w, r)
		return
	}
	if !t.authorized(bearer(r)) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}
	key := r.PathValue("key")
	entries := t.sessions(key)
	if len(entries) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session " + key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "entries": entries})
}

func (t *Transport) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if t.reset == nil {
		http.NotFound(w, r)
		return
	}
	if !t.authorized(bearer(r)) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}
	key := r.PathValue("key")
	t.reset(key)
	t.logger.InfoContext(r.Context(), "webchat.session.cleared", slog.String("session_key", key))
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "cleared"})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(core.HealthHealthy)})
		return
	}
	results, overall := t.health(r.Context())
	components := make(map[string]map[string]string, len(results))
	for _, res := range results {
		components[res.Component] = map[string]string{"status": string(res.Status), "message": res.Message}
	}
	code := http.StatusOK
	if overall == core.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": overall, "components": components})
}

func (t *Transport) authorized(token string) bool {
	if t.adminToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(t.adminToken)) == 1
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
