// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway ties transports, routing, sessions and the turn scheduler
// into the message handling pipeline.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/routing"
	"github.com/jllopis/switchboard/pkg/runtime"
	"github.com/jllopis/switchboard/pkg/session"
	"github.com/jllopis/switchboard/pkg/telemetry"
)

// ErrorPrefix marks replies that carry an error description.
const ErrorPrefix = "[error] "

// Gateway dispatches inbound messages to agents.
type Gateway struct {
	resolver  *routing.Resolver
	agents    runtime.Agents
	store     *session.Store
	scheduler *runtime.Scheduler

	dmScope         string
	persistOnTurn   bool
	shutdownTimeout time.Duration
	healthAddr      string

	transports []core.Transport
	background []func(ctx context.Context) error
	closers    []func() error
	health     *core.HealthRegistry
	metrics    *telemetry.GatewayMetrics
	logger     *slog.Logger
	tracer     trace.Tracer

	mu        sync.Mutex
	started   bool
	stopped   bool
	cancelBg  context.CancelFunc
	bgDone    sync.WaitGroup
	grpc      *healthServer
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDMScope sets the direct-message session scope.
func WithDMScope(scope string) Option {
	return func(g *Gateway) { g.dmScope = scope }
}

// WithPersistOnTurn exports the session after every turn.
func WithPersistOnTurn(enabled bool) Option {
	return func(g *Gateway) { g.persistOnTurn = enabled }
}

// WithShutdownTimeout sets the grace period for in-flight turns.
func WithShutdownTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.shutdownTimeout = d
		}
	}
}

// WithHealthAddr serves the gRPC health protocol on addr.
func WithHealthAddr(addr string) Option {
	return func(g *Gateway) { g.healthAddr = addr }
}

// WithTransports registers transports started by Start.
func WithTransports(ts ...core.Transport) Option {
	return func(g *Gateway) { g.transports = append(g.transports, ts...) }
}

// WithBackground registers a task run for the lifetime of the gateway.
func WithBackground(fn func(ctx context.Context) error) Option {
	return func(g *Gateway) { g.background = append(g.background, fn) }
}

// WithCloser registers a function called last during Shutdown.
func WithCloser(fn func() error) Option {
	return func(g *Gateway) { g.closers = append(g.closers, fn) }
}

// WithHealthRegistry sets the registry backing health reporting.
func WithHealthRegistry(r *core.HealthRegistry) Option {
	return func(g *Gateway) {
		if r != nil {
			g.health = r
		}
	}
}

// WithMetrics records gateway metrics.
func WithMetrics(m *telemetry.GatewayMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Gateway from its components.
func New(resolver *routing.Resolver, agents runtime.Agents, store *session.Store, scheduler *runtime.Scheduler, opts ...Option) *Gateway {
	g := &Gateway{
		resolver:        resolver,
		agents:          agents,
		store:           store,
		scheduler:       scheduler,
		dmScope:         session.ScopeMain,
		shutdownTimeout: 10 * time.Second,
		health:          core.NewHealthRegistry(),
		logger:          slog.Default(),
		tracer:          otel.Tracer("switchboard/gateway"),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddTransport registers a transport. It must be called before Start.
func (g *Gateway) AddTransport(t core.Transport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transports = append(g.transports, t)
}

// Store returns the session store.
func (g *Gateway) Store() *session.Store { return g.store }

// Resolver returns the route resolver.
func (g *Gateway) Resolver() *routing.Resolver { return g.resolver }

// Health returns the health registry.
func (g *Gateway) Health() *core.HealthRegistry { return g.health }

// Done is closed once a shutdown has been requested.
func (g *Gateway) Done() <-chan struct{} { return g.done }

// RequestShutdown asks the owner of the gateway to shut it down. It is safe
// to call from transports and more than once.
func (g *Gateway) RequestShutdown() {
	g.closeOnce.Do(func() { close(g.done) })
}

// Route resolves the agent and session key for a message context, applying
// transport defaults and the unknown-agent fallback.
func (g *Gateway) Route(msg core.MessageContext) (core.MessageContext, string, string) {
	msg = ApplyDefaults(msg)
	agentID := g.resolver.Resolve(msg)
	if !g.agents.HasAgent(agentID) {
		fallback := g.resolver.DefaultAgent()
		g.logger.Warn("gateway.route.unknown_agent",
			slog.String("agent_id", agentID),
			slog.String("fallback", fallback),
			slog.String("channel", msg.Channel),
		)
		agentID = fallback
	}
	key := session.ResolveSessionKey(agentID, msg.Channel, msg.PeerKind, msg.PeerID, g.dmScope)
	return msg, agentID, key
}

// Handle processes one inbound message from channel and returns the agent
// reply. Errors are returned unrendered; see Handler for the transport form.
func (g *Gateway) Handle(ctx context.Context, channel string, in core.Inbound) (string, error) {
	msg := in.Context
	if msg.Channel == "" {
		msg.Channel = channel
	}
	if msg.SenderID == "" {
		msg.SenderID = in.SenderID
	}
	msg, agentID, key := g.Route(msg)

	ctx, span := g.tracer.Start(ctx, "Gateway.Handle",
		trace.WithAttributes(telemetry.MessageAttributes(msg.Channel, msg.PeerKind)...),
		trace.WithAttributes(
			attribute.String(telemetry.AttrAgentID, agentID),
			attribute.String(telemetry.AttrSessionKey, key),
		),
	)
	defer span.End()

	g.logger.DebugContext(ctx, "gateway.message.received",
		slog.String("channel", msg.Channel),
		slog.String("sender_id", msg.SenderID),
		slog.String("agent_id", agentID),
		slog.String("session_key", key),
	)

	reply, err := g.scheduler.Run(ctx, agentID, key, in.Text)
	if g.persistOnTurn {
		if perr := g.store.Persist(ctx, key); perr != nil {
			g.metrics.RecordError(ctx, perr, "session")
			g.logger.WarnContext(ctx, "gateway.session.persist_failed",
				slog.String("session_key", key),
				slog.String("error", perr.Error()),
			)
		}
	}
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// Handler returns the core.Handler for a transport. Turn failures are
// rendered as "[error] ..." replies so transports always have text to show.
func (g *Gateway) Handler(channel string) core.Handler {
	return func(ctx context.Context, in core.Inbound) (string, error) {
		reply, err := g.Handle(ctx, channel, in)
		if err != nil {
			return ErrorPrefix + Describe(err), nil
		}
		return reply, nil
	}
}

// Describe renders err for end users.
func Describe(err error) string {
	if errors.CodeOf(err) == "" {
		return err.Error()
	}
	e := errors.As(err)
	if e.Err != nil && e.Code != errors.CodeTimeout {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// ApplyDefaults fills the fields transports may leave empty: the default
// account, the sender as peer and a direct peer kind.
func ApplyDefaults(msg core.MessageContext) core.MessageContext {
	if msg.AccountID == "" {
		msg.AccountID = core.DefaultAccountID
	}
	if msg.PeerID == "" {
		msg.PeerID = msg.SenderID
	}
	if msg.PeerKind == "" {
		msg.PeerKind = core.PeerDirect
	}
	return msg
}

// Start runs background tasks, the health endpoint and every transport.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return errors.Newf(errors.CodeInternal, "gateway already started")
	}
	g.started = true

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancelBg = cancel
	for _, fn := range g.background {
		g.bgDone.Add(1)
		go func(fn func(context.Context) error) {
			defer g.bgDone.Done()
			if err := fn(bgCtx); err != nil && bgCtx.Err() == nil {
				g.logger.Error("gateway.background.failed", slog.String("error", err.Error()))
			}
		}(fn)
	}

	if g.healthAddr != "" {
		hs, err := startHealthServer(bgCtx, g.healthAddr, g.health, g.logger)
		if err != nil {
			return err
		}
		g.grpc = hs
	}

	for _, t := range g.transports {
		if err := t.Start(ctx, g.Handler(t.ID())); err != nil {
			return errors.New(errors.CodeInternal, "start transport "+t.ID(), err)
		}
		g.logger.Info("gateway.transport.started", slog.String("transport", t.ID()))
	}
	if g.grpc != nil {
		g.grpc.setServing(true)
	}
	g.logger.Info("gateway.started",
		slog.Int("transports", len(g.transports)),
		slog.Int("max_concurrent", g.scheduler.MaxConcurrent()),
		slog.Duration("agent_timeout", g.scheduler.Timeout()),
	)
	return nil
}

// Shutdown stops transports, drains in-flight turns for up to the shutdown
// timeout, persists sessions and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	g.mu.Unlock()
	g.RequestShutdown()

	if g.grpc != nil {
		g.grpc.setServing(false)
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, t := range g.transports {
		if err := t.Stop(ctx); err != nil {
			g.logger.Warn("gateway.transport.stop_failed", slog.String("transport", t.ID()), slog.String("error", err.Error()))
			keep(err)
		}
	}

	graceCtx, cancel := context.WithTimeout(ctx, g.shutdownTimeout)
	defer cancel()
	keep(g.scheduler.Shutdown(graceCtx))

	if err := g.store.PersistAll(ctx); err != nil {
		g.logger.Warn("gateway.session.persist_failed", slog.String("error", err.Error()))
	}

	if g.cancelBg != nil {
		g.cancelBg()
		g.bgDone.Wait()
	}
	if g.grpc != nil {
		g.grpc.stop()
	}
	for i := len(g.closers) - 1; i >= 0; i-- {
		keep(g.closers[i]())
	}
	g.logger.Info("gateway.stopped")
	return firstErr
}
