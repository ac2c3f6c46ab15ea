// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/switchboard/pkg/agent"
	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/resilience"
	"github.com/jllopis/switchboard/pkg/routing"
	"github.com/jllopis/switchboard/pkg/runtime"
	"github.com/jllopis/switchboard/pkg/session"
	"github.com/jllopis/switchboard/pkg/skills"
	"github.com/jllopis/switchboard/pkg/telemetry"
)

// openPersister is replaced in tests.
var openPersister = session.OpenPersister

// BuildOption adjusts how Build assembles the gateway.
type BuildOption func(*buildOptions)

type buildOptions struct {
	factory  agent.ProviderFactory
	executor runtime.Executor
	metrics  *telemetry.GatewayMetrics
	extra    []Option
}

// WithProviderFactory overrides how agent providers are created.
func WithProviderFactory(f agent.ProviderFactory) BuildOption {
	return func(o *buildOptions) { o.factory = f }
}

// WithExecutor replaces the LLM turn body.
func WithExecutor(e runtime.Executor) BuildOption {
	return func(o *buildOptions) { o.executor = e }
}

// WithGatewayMetrics records metrics in every component.
func WithGatewayMetrics(m *telemetry.GatewayMetrics) BuildOption {
	return func(o *buildOptions) { o.metrics = m }
}

// WithOptions passes options through to New.
func WithOptions(opts ...Option) BuildOption {
	return func(o *buildOptions) { o.extra = append(o.extra, opts...) }
}

// Build assembles a Gateway from a validated configuration: skill catalog and
// watcher, session store and persister, agent directory, scheduler and
// resolver. Transports are added by the caller.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bo := &buildOptions{}
	for _, opt := range opts {
		opt(bo)
	}

	metrics := bo.metrics
	catalog := skills.NewCatalog(ctx, cfg.Skills.Dir,
		skills.WithLogger(telemetry.Component(logger, "skills")),
		skills.WithOnScan(func(version uint64, count int) {
			metrics.RecordSkillsVersion(context.Background(), version)
		}),
	)

	var closers []Option
	var background []Option
	if cfg.Skills.Watch {
		watcher := skills.NewWatcher(catalog,
			skills.WithDebounce(cfg.Skills.Debounce),
			skills.WithPollInterval(cfg.Skills.PollInterval),
			skills.WithWatchLogger(telemetry.Component(logger, "skills.watcher")),
		)
		background = append(background, WithBackground(watcher.Run))
	}

	storeOpts := []session.Option{session.WithLogger(telemetry.Component(logger, "session"))}
	closePersister := func() error { return nil }
	if cfg.Session.Store != "" {
		persister, closeFn, err := openPersister(cfg.Session.Backend, cfg.Session.Store)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, session.WithPersister(persister))
		closers = append(closers, WithCloser(closeFn))
		closePersister = closeFn
	}
	store := session.NewStore(storeOpts...)

	dirOpts := []agent.Option{
		agent.WithSkillSource(catalog),
		agent.WithLogger(telemetry.Component(logger, "agents")),
	}
	if bo.factory != nil {
		dirOpts = append(dirOpts, agent.WithProviderFactory(bo.factory))
	}
	directory, err := agent.NewDirectory(ctx, cfg.Agents.List, dirOpts...)
	if err != nil {
		if cerr := closePersister(); cerr != nil {
			logger.WarnContext(ctx, "gateway.persister.close_failed", slog.String("error", cerr.Error()))
		}
		return nil, err
	}

	executor := bo.executor
	if executor == nil {
		retry := resilience.DefaultPolicy()
		retry.MaxAttempts = cfg.Agents.Retry.MaxAttempts
		if cfg.Agents.Retry.InitialDelay > 0 {
			retry.InitialDelay = cfg.Agents.Retry.InitialDelay
		}
		executor = agent.NewLLMRuntime(telemetry.Component(logger, "agent"), agent.WithRetry(retry))
	}
	scheduler := runtime.NewScheduler(directory, store, executor,
		runtime.WithMaxConcurrent(cfg.Agents.MaxConcurrent),
		runtime.WithTimeout(cfg.Gateway.AgentTimeout),
		runtime.WithLogger(telemetry.Component(logger, "runtime")),
		runtime.WithMetrics(metrics),
	)

	registry := core.NewHealthRegistry()
	registry.Register("agents", agent.NewHealthChecker(directory))
	registry.Register("skills", core.HealthFunc(func(context.Context) core.HealthResult {
		return core.HealthResult{
			Status:  core.HealthHealthy,
			Message: fmt.Sprintf("%d skills at version %d", catalog.Len(), catalog.Version()),
		}
	}))
	registry.Register("scheduler", core.HealthFunc(func(context.Context) core.HealthResult {
		inflight := scheduler.InFlight()
		status := core.HealthHealthy
		if inflight >= scheduler.MaxConcurrent() {
			status = core.HealthDegraded
		}
		return core.HealthResult{
			Status:  status,
			Message: fmt.Sprintf("%d/%d permits in use", inflight, scheduler.MaxConcurrent()),
		}
	}))

	resolver := routing.FromConfig(cfg, telemetry.Component(logger, "routing"))

	gwOpts := []Option{
		WithDMScope(cfg.Session.DMScope),
		WithPersistOnTurn(cfg.Session.PersistOnTurn),
		WithShutdownTimeout(cfg.Gateway.ShutdownTimeout),
		WithHealthAddr(cfg.Gateway.GRPCHealthAddr),
		WithHealthRegistry(registry),
		WithMetrics(metrics),
		WithLogger(telemetry.Component(logger, "gateway")),
	}
	gwOpts = append(gwOpts, background...)
	gwOpts = append(gwOpts, closers...)
	gwOpts = append(gwOpts, bo.extra...)
	return New(resolver, directory, store, scheduler, gwOpts...), nil
}
