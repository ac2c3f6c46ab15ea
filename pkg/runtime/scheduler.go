// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime executes agent turns under per-session ordering and a
// global concurrency ceiling.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/switchboard/pkg/agent"
	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/session"
	"github.com/jllopis/switchboard/pkg/telemetry"
)

// NoResponse replaces an empty agent reply.
const NoResponse = "[no response from agent]"

const (
	DefaultMaxConcurrent = 4
	DefaultTurnTimeout   = 60 * time.Second
)

// Agents resolves agent identifiers to handles.
type Agents interface {
	HasAgent(id string) bool
	Agent(id string) (*agent.Handle, bool)
}

// Executor runs the body of a turn. history is the transcript before the
// user message was recorded.
type Executor interface {
	Execute(ctx context.Context, h *agent.Handle, sessionKey string, history []session.Entry, message string) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, h *agent.Handle, sessionKey string, history []session.Entry, message string) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, h *agent.Handle, sessionKey string, history []session.Entry, message string) (string, error) {
	return f(ctx, h, sessionKey, history, message)
}

// Scheduler runs turns. For a given session key at most one turn executes at a
// time; across all sessions at most maxConcurrent execute at once. The session
// lock is always taken before the global permit.
type Scheduler struct {
	agents   Agents
	store    *session.Store
	executor Executor

	maxConcurrent int
	timeout       time.Duration
	logger        *slog.Logger
	metrics       *telemetry.GatewayMetrics
	tracer        trace.Tracer

	locks   *sessionLocks
	permits permits

	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup
	base    context.Context
	cancel  context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent sets the size of the global permit pool.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithTimeout sets the per-turn execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *telemetry.GatewayMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a Scheduler.
func NewScheduler(agents Agents, store *session.Store, executor Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		agents:        agents,
		store:         store,
		executor:      executor,
		maxConcurrent: DefaultMaxConcurrent,
		timeout:       DefaultTurnTimeout,
		logger:        slog.Default(),
		tracer:        otel.Tracer("switchboard/runtime"),
		locks:         newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.permits = newPermits(s.maxConcurrent)
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Timeout returns the per-turn timeout.
func (s *Scheduler) Timeout() time.Duration { return s.timeout }

// MaxConcurrent returns the size of the global permit pool.
func (s *Scheduler) MaxConcurrent() int { return s.maxConcurrent }

// InFlight returns the number of permits currently held.
func (s *Scheduler) InFlight() int { return s.permits.inUse() }

// ActiveSessions returns the number of session keys holding or waiting for
// their lock.
func (s *Scheduler) ActiveSessions() int { return s.locks.len() }

// Run executes one turn for agentID within sessionKey and returns the trimmed
// reply. Errors are *errors.Error values carrying agent_id and session_key.
func (s *Scheduler) Run(ctx context.Context, agentID, sessionKey, message string) (string, error) {
	turn, err := s.run(ctx, agentID, sessionKey, message)
	if err != nil {
		return "", err
	}
	return turn.Reply, nil
}

func (s *Scheduler) run(ctx context.Context, agentID, sessionKey, message string) (*core.Turn, error) {
	ctx, turnID := core.EnsureTurnID(ctx)
	ctx = core.WithSessionKey(ctx, sessionKey)
	turn := core.NewTurn(turnID, agentID, sessionKey)

	if !s.agents.HasAgent(agentID) {
		err := s.turnError(errors.CodeUnknownAgent, fmt.Sprintf("Unknown agent: %s", agentID), nil, turn)
		s.finish(ctx, turn, core.TurnFailed, telemetry.OutcomeUnknown, err)
		return turn, err
	}

	s.mu.RLock()
	if s.closing {
		s.mu.RUnlock()
		err := s.turnError(errors.CodeShuttingDown, "gateway is shutting down", nil, turn)
		s.finish(ctx, turn, core.TurnCancelled, telemetry.OutcomeRejected, err)
		return turn, err
	}
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	ctx, span := s.tracer.Start(ctx, "Scheduler.Run",
		trace.WithAttributes(telemetry.TurnAttributes(agentID, sessionKey, turnID)...))
	defer span.End()

	unlock, err := s.locks.acquire(ctx, sessionKey)
	if err != nil {
		err = s.waitError(ctx, turn, "session lock", err)
		s.finishSpan(ctx, span, turn, err)
		return turn, err
	}
	defer unlock()

	release, err := s.permits.acquire(ctx)
	if err != nil {
		err = s.waitError(ctx, turn, "concurrency permit", err)
		s.finishSpan(ctx, span, turn, err)
		return turn, err
	}
	defer release()
	s.metrics.TurnStarted(ctx)
	defer s.metrics.TurnFinished(ctx)

	turn.Status = core.TurnRunning
	turn.StartedAt = time.Now().UTC()
	span.AddEvent("turn.started", trace.WithAttributes(attribute.Int64("wait_ms", turn.Waited().Milliseconds())))
	s.logger.InfoContext(ctx, "runtime.turn.start",
		slog.String("agent_id", agentID),
		slog.String("session_key", sessionKey),
		slog.String("turn_id", turnID),
		slog.Duration("waited", turn.Waited()),
	)

	reply, err := s.execute(ctx, turn, message)
	if err != nil {
		s.finishSpan(ctx, span, turn, err)
		return turn, err
	}

	s.store.Append(sessionKey, session.NewEntry(session.RoleAssistant, reply))
	turn.Reply = reply
	outcome := telemetry.OutcomeOK
	if reply == NoResponse {
		outcome = telemetry.OutcomeEmpty
	}
	s.finish(ctx, turn, core.TurnCompleted, outcome, nil)
	span.SetAttributes(attribute.String(telemetry.AttrTurnOutcome, outcome))
	span.SetStatus(codes.Ok, "")
	return turn, nil
}

// execute records the user message and runs the turn body bounded by the
// turn timeout. The session lock and permit are held by the caller.
func (s *Scheduler) execute(ctx context.Context, turn *core.Turn, message string) (string, error) {
	h, ok := s.agents.Agent(turn.AgentID)
	if !ok {
		return "", s.turnError(errors.CodeUnknownAgent, fmt.Sprintf("Unknown agent: %s", turn.AgentID), nil, turn)
	}

	history := s.store.History(turn.SessionKey)
	s.store.Append(turn.SessionKey, session.NewEntry(session.RoleUser, message))

	turnCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		reply, err := s.executor.Execute(turnCtx, h, turn.SessionKey, history, message)
		done <- result{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if turnCtx.Err() != nil {
				return "", s.interrupted(ctx, turnCtx, turn)
			}
			return "", s.turnError(errors.CodeAgentFailure,
				fmt.Sprintf("Agent '%s' failed", turn.AgentID), res.err, turn).WithRecoverable(true)
		}
		reply := strings.TrimSpace(res.reply)
		if reply == "" {
			reply = NoResponse
		}
		return reply, nil
	case <-turnCtx.Done():
		return "", s.interrupted(ctx, turnCtx, turn)
	}
}

// interrupted builds the error for a turn body stopped by its context: the
// turn timeout, the caller going away, or a forced shutdown.
func (s *Scheduler) interrupted(ctx, turnCtx context.Context, turn *core.Turn) *errors.Error {
	if turnCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return s.timeoutError(turn)
	}
	return s.waitError(ctx, turn, "execution", turnCtx.Err())
}

// Shutdown stops accepting turns and waits for in-flight ones until ctx is
// done, then cancels whatever is still running.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.cancel()
		s.logger.Info("runtime.shutdown.drained")
		return nil
	case <-ctx.Done():
		inflight := s.InFlight()
		s.cancel()
		s.logger.Warn("runtime.shutdown.forced", slog.Int("in_flight", inflight))
		return errors.New(errors.CodeShuttingDown, "grace period elapsed with turns in flight", ctx.Err()).
			WithContext("in_flight", inflight)
	}
}

func (s *Scheduler) timeoutError(turn *core.Turn) *errors.Error {
	return s.turnError(errors.CodeTimeout,
		fmt.Sprintf("Agent '%s' timed out after %s", turn.AgentID, formatTimeout(s.timeout)), nil, turn).
		WithContext("timeout", s.timeout.String()).
		WithRecoverable(true)
}

// waitError classifies a context error seen while waiting.
func (s *Scheduler) waitError(ctx context.Context, turn *core.Turn, stage string, cause error) *errors.Error {
	if s.base.Err() != nil {
		return s.turnError(errors.CodeShuttingDown, "turn cancelled by shutdown", cause, turn).
			WithContext("stage", stage)
	}
	code := errors.CodeInternal
	if ctx.Err() == context.DeadlineExceeded {
		code = errors.CodeTimeout
	}
	return s.turnError(code, "turn cancelled while waiting for "+stage, cause, turn).
		WithContext("stage", stage).
		WithRecoverable(true)
}

func (s *Scheduler) turnError(code errors.ErrorCode, msg string, cause error, turn *core.Turn) *errors.Error {
	return errors.New(code, msg, cause).
		WithAttribute("agent_id", turn.AgentID).
		WithAttribute("session_key", turn.SessionKey).
		WithAttribute("turn_id", turn.ID)
}

func (s *Scheduler) finishSpan(ctx context.Context, span trace.Span, turn *core.Turn, err error) {
	status, outcome := classify(err)
	s.finish(ctx, turn, status, outcome, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(telemetry.AttrTurnOutcome, outcome))
}

func (s *Scheduler) finish(ctx context.Context, turn *core.Turn, status core.TurnStatus, outcome string, err error) {
	turn.Status = status
	turn.FinishedAt = time.Now().UTC()
	s.metrics.RecordTurn(ctx, turn.AgentID, outcome, turn.FinishedAt.Sub(turn.CreatedAt))

	attrs := []any{
		slog.String("agent_id", turn.AgentID),
		slog.String("session_key", turn.SessionKey),
		slog.String("turn_id", turn.ID),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", turn.Elapsed()),
	}
	if err == nil {
		s.logger.InfoContext(ctx, "runtime.turn.complete", attrs...)
		return
	}
	turn.Error = err.Error()
	s.metrics.RecordError(ctx, err, "scheduler")
	s.logger.ErrorContext(ctx, "runtime.turn.error", append(attrs, slog.String("error", err.Error()))...)
}

func classify(err error) (core.TurnStatus, string) {
	switch errors.CodeOf(err) {
	case errors.CodeTimeout:
		return core.TurnTimedOut, telemetry.OutcomeTimeout
	case errors.CodeUnknownAgent:
		return core.TurnFailed, telemetry.OutcomeUnknown
	case errors.CodeShuttingDown, errors.CodeInternal:
		return core.TurnCancelled, telemetry.OutcomeCancelled
	default:
		return core.TurnFailed, telemetry.OutcomeError
	}
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return d.String()
}
