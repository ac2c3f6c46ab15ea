// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package core

import "time"

// TurnStatus describes the lifecycle state of a turn.
type TurnStatus string

const (
	TurnQueued    TurnStatus = "queued"
	TurnRunning   TurnStatus = "running"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnTimedOut  TurnStatus = "timed_out"
	TurnCancelled TurnStatus = "cancelled"
)

// Turn is the record of one (agent, session, message) execution.
type Turn struct {
	ID         string
	AgentID    string
	SessionKey string
	Status     TurnStatus
	Reply      string
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewTurn creates a queued turn.
func NewTurn(id, agentID, sessionKey string) *Turn {
	return &Turn{
		ID:         id,
		AgentID:    agentID,
		SessionKey: sessionKey,
		Status:     TurnQueued,
		CreatedAt:  time.Now().UTC(),
	}
}

// Waited returns how long the turn queued for its lock and permit.
func (t *Turn) Waited() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	return t.StartedAt.Sub(t.CreatedAt)
}

// Elapsed returns the wall time from creation to completion.
func (t *Turn) Elapsed() time.Duration {
	if t.FinishedAt.IsZero() {
		return time.Since(t.CreatedAt)
	}
	return t.FinishedAt.Sub(t.CreatedAt)
}
