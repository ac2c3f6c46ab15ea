// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/switchboard/pkg/errors"
)

const meterName = "switchboard/gateway"

// GatewayMetrics records turn throughput, latency and failures.
// All methods are safe on a nil receiver so callers may run without metrics.
type GatewayMetrics struct {
	turns         metric.Int64Counter
	timeouts      metric.Int64Counter
	duration      metric.Float64Histogram
	inflight      metric.Int64UpDownCounter
	skillsVersion metric.Int64Gauge
	errorCounter  metric.Int64Counter
}

// NewGatewayMetrics creates the gateway instruments on the global meter provider.
func NewGatewayMetrics() (*GatewayMetrics, error) {
	meter := otel.Meter(meterName)

	turns, err := meter.Int64Counter(
		"switchboard.turns.total",
		metric.WithDescription("Agent turns by agent and outcome"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter(
		"switchboard.turns.timeouts",
		metric.WithDescription("Agent turns that exceeded the turn timeout"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"switchboard.turn.duration_ms",
		metric.WithDescription("Turn latency including lock and permit waits"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	inflight, err := meter.Int64UpDownCounter(
		"switchboard.turns.inflight",
		metric.WithDescription("Turns currently holding a concurrency permit"),
	)
	if err != nil {
		return nil, err
	}

	skillsVersion, err := meter.Int64Gauge(
		"switchboard.skills.version",
		metric.WithDescription("Current skill catalog version"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"switchboard.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &GatewayMetrics{
		turns:         turns,
		timeouts:      timeouts,
		duration:      duration,
		inflight:      inflight,
		skillsVersion: skillsVersion,
		errorCounter:  errorCounter,
	}, nil
}

// RecordTurn records a finished turn.
func (m *GatewayMetrics) RecordTurn(ctx context.Context, agentID, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrTurnOutcome, outcome),
	)
	m.turns.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	if outcome == OutcomeTimeout {
		m.timeouts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAgentID, agentID)))
	}
}

// TurnStarted marks a permit as taken.
func (m *GatewayMetrics) TurnStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.inflight.Add(ctx, 1)
}

// TurnFinished marks a permit as returned.
func (m *GatewayMetrics) TurnFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.inflight.Add(ctx, -1)
}

// RecordSkillsVersion publishes the current catalog version.
func (m *GatewayMetrics) RecordSkillsVersion(ctx context.Context, version uint64) {
	if m == nil {
		return
	}
	m.skillsVersion.Record(ctx, int64(version))
}

// RecordError increments the error counter for err's code and the component.
func (m *GatewayMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	recoverable := "unknown"
	if code == "" {
		code = "UNKNOWN"
	} else {
		recoverable = errors.As(err).RecoverableString()
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrErrorCode, code),
			attribute.String(AttrComponent, component),
			attribute.String("recoverable", recoverable),
		),
	)
}
