// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans, metrics and log records.
const (
	AttrAgentID    = "switchboard.agent.id"
	AttrAgentModel = "switchboard.agent.model"
	AttrProvider   = "gen_ai.system"

	AttrSessionKey  = "switchboard.session.key"
	AttrTurnID      = "switchboard.turn.id"
	AttrTurnOutcome = "switchboard.turn.outcome"
	AttrChannel     = "switchboard.channel"
	AttrPeerKind    = "switchboard.peer.kind"

	AttrSkillsVersion = "switchboard.skills.version"
	AttrSkillsCount   = "switchboard.skills.count"
	AttrSkillsDir     = "switchboard.skills.dir"

	AttrErrorCode = "error.code"
	AttrComponent = "component"
)

// Turn outcomes recorded on spans and metrics.
const (
	OutcomeOK        = "ok"
	OutcomeEmpty     = "empty"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
	OutcomeUnknown   = "unknown_agent"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// TurnAttributes returns the attributes for a scheduler turn span.
func TurnAttributes(agentID, sessionKey, turnID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrSessionKey, sessionKey),
	}
	if turnID != "" {
		attrs = append(attrs, attribute.String(AttrTurnID, turnID))
	}
	return attrs
}

// MessageAttributes returns the attributes describing an inbound message.
func MessageAttributes(channel, peerKind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrChannel, channel)}
	if peerKind != "" {
		attrs = append(attrs, attribute.String(AttrPeerKind, peerKind))
	}
	return attrs
}

// CatalogAttributes returns the attributes for a skill catalog scan.
func CatalogAttributes(dir string, version uint64, count int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSkillsDir, dir),
		attribute.Int64(AttrSkillsVersion, int64(version)),
		attribute.Int(AttrSkillsCount, count),
	}
}
